// Package identity defines the session provider contract consumed by the access guard and the login flow.
package identity

import "context"

// Principal is an authenticated identity handle. The access code treats it as opaque.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// StateListener receives the current principal, or nil when there is none.
type StateListener func(p *Principal)

// Provider is an identity backend bound to one client session.
type Provider interface {
	// InitPersistence restores any persisted session. It is idempotent and must complete before
	// the first state emission is trusted. Failures are not fatal to callers.
	InitPersistence(ctx context.Context) error

	// SignIn authenticates with credentials. Failures are *Error values carrying a Code.
	SignIn(ctx context.Context, identifier, secret string) (Principal, error)

	SignOut(ctx context.Context) error

	// OnAuthStateChange registers cb; the current state is delivered asynchronously, then every change.
	// The returned func unsubscribes and is safe to call more than once.
	OnAuthStateChange(cb StateListener) (unsubscribe func())
}
