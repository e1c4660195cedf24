package access

import (
	"context"
	"time"

	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/rolestore"
)

const signOutTimeout = 10 * time.Second

// withTimeout runs fn bounded by d (no bound when d <= 0). It returns on expiry even if fn ignores ctx.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func initPersistence(ctx context.Context, p identity.Provider, d time.Duration) error {
	_, err := withTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.InitPersistence(ctx)
	})
	return err
}

func fetchRecord(ctx context.Context, s rolestore.Store, d time.Duration, principalID string) (rolestore.Record, error) {
	return withTimeout(ctx, d, func(ctx context.Context) (rolestore.Record, error) {
		return s.GetRoleRecord(ctx, principalID)
	})
}

// resolveRole turns a role fetch outcome into a role or a rejection.
func resolveRole(rec rolestore.Record, err error, verificationMsg string) (role.Role, *Error) {
	if err != nil {
		return "", classifyFetchError(err, verificationMsg)
	}
	if !rec.Exists {
		return "", errNoRoleAssigned()
	}
	r, ok := role.Normalize(rec.Role)
	if !ok {
		return "", errInvalidRole(rec.Role)
	}
	return r, nil
}

// signOut is the terminal action of a rejection; it outlives the guard or flow that triggered it.
func signOut(p identity.Provider) error {
	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	return p.SignOut(ctx)
}
