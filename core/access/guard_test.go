package access

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/rolestore"
)

func mountGuard(t *testing.T, p *fakeProvider, s *fakeStore, allowed ...role.Role) *Guard {
	t.Helper()
	g := NewGuard(GuardDeps{Provider: p, Store: s, Logger: nopLogger{}, Timeout: time.Second}, allowed...)
	t.Cleanup(g.Close)
	p.waitSubscribed(t)
	return g
}

func waitSettled(t *testing.T, g *Guard) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	st := g.Wait(ctx)
	require.True(t, st.Settled(), "guard did not settle, status = %v", st.Status)
	return st
}

func TestGuard_authenticated(t *testing.T) {
	tests := []struct {
		name     string
		raw      interface{}
		allowed  []role.Role
		wantRole role.Role
		want     Decision
	}{
		{
			name: "principal allowed", raw: "Principal", allowed: []role.Role{role.Principal},
			wantRole: role.Principal, want: Decision{Action: ActionRender},
		},
		{
			name: "principal on admin view", raw: "Principal", allowed: []role.Role{role.Admin},
			wantRole: role.Principal, want: Decision{Action: ActionRedirect, Location: "/principal/dashboard"},
		},
		{
			name: "admin on principal view", raw: " ADMIN ", allowed: []role.Role{role.Principal},
			wantRole: role.Admin, want: Decision{Action: ActionRedirect, Location: "/admin/dashboard"},
		},
		{
			name: "front office among many", raw: "front_office", allowed: []role.Role{role.Admin, role.FrontOffice},
			wantRole: role.FrontOffice, want: Decision{Action: ActionRender},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: true, Role: tt.raw}})
			g := mountGuard(t, p, s, tt.allowed...)

			p.emit(&identity.Principal{ID: "u1", Email: "u1@college.test"})
			st := waitSettled(t, g)

			assert.Equal(t, StatusAuthenticated, st.Status)
			assert.Equal(t, tt.wantRole, st.Role)
			assert.Equal(t, "u1", st.Principal.ID)

			d := g.Decide("/somewhere")
			assert.Equal(t, tt.want.Action, d.Action)
			assert.Equal(t, tt.want.Location, d.Location)
			assert.Equal(t, 0, p.signOutCount())
		})
	}
}

func TestGuard_failClosed(t *testing.T) {
	tests := []struct {
		name    string
		rec     rolestore.Record
		absent  bool
		kind    Kind
		wantMsg string
	}{
		{name: "no record", absent: true, kind: KindNoRoleAssigned, wantMsg: "no role assigned"},
		{name: "unknown role", rec: rolestore.Record{Exists: true, Role: "superuser"}, kind: KindInvalidRole, wantMsg: "`superuser`"},
		{name: "numeric role", rec: rolestore.Record{Exists: true, Role: 123}, kind: KindInvalidRole, wantMsg: "`123`"},
		{name: "empty role", rec: rolestore.Record{Exists: true, Role: ""}, kind: KindInvalidRole, wantMsg: "valid roles are: principal, admin, front_office"},
		{name: "missing role field", rec: rolestore.Record{Exists: true}, kind: KindInvalidRole, wantMsg: "invalid role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := map[string]rolestore.Record{}
			if !tt.absent {
				records["u2"] = tt.rec
			}
			p := newFakeProvider()
			g := mountGuard(t, p, newFakeStore(records), role.Admin)

			p.emit(&identity.Principal{ID: "u2"})
			st := waitSettled(t, g)

			require.Equal(t, StatusError, st.Status)
			assert.Equal(t, tt.kind, st.Err.Kind)
			assert.False(t, st.Err.Recoverable())
			assert.Contains(t, strings.ToLower(st.Err.Message), strings.ToLower(tt.wantMsg))
			assert.Eventually(t, func() bool { return p.signOutCount() == 1 }, waitFor, 5*time.Millisecond)

			// the "no principal" emission from our own sign out keeps the error panel
			assert.Equal(t, StatusError, g.State().Status)
			d := g.Decide("/admin/dashboard")
			assert.Equal(t, ActionShowError, d.Action)
			assert.Empty(t, d.Location)

			time.Sleep(20 * time.Millisecond)
			assert.Equal(t, 1, p.signOutCount())
		})
	}
}

func TestGuard_storageBlockedPreservesSession(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(nil)
	s.err = rolestore.NewError(rolestore.KindQuota, "get", errors.New("QuotaExceededError: quota exceeded"))
	g := mountGuard(t, p, s, role.Admin)

	p.emit(&identity.Principal{ID: "u1"})
	st := waitSettled(t, g)

	require.Equal(t, StatusError, st.Status)
	assert.Equal(t, KindStorageBlocked, st.Err.Kind)
	assert.True(t, st.Err.Recoverable())
	assert.Contains(t, st.Err.Message, "private browsing")
	assert.Equal(t, ActionShowError, g.Decide("/admin/dashboard").Action)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, p.signOutCount())
}

func TestGuard_verificationFailed(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "untyped", err: errors.New("connection reset")},
		{name: "unavailable", err: rolestore.NewError(rolestore.KindUnavailable, "get", errors.New("db closed"))},
		{name: "internal", err: rolestore.NewError(rolestore.KindInternal, "get", errors.New("bad document"))},
		// the storage words alone do not make an error recoverable
		{name: "untyped storage text", err: errors.New("storage quota access")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			s := newFakeStore(nil)
			s.err = tt.err
			g := mountGuard(t, p, s, role.Admin)

			p.emit(&identity.Principal{ID: "u1"})
			st := waitSettled(t, g)

			require.Equal(t, StatusError, st.Status)
			assert.Equal(t, KindVerificationFailed, st.Err.Kind)
			assert.Equal(t, msgGuardVerificationFailed, st.Err.Message)
			assert.Eventually(t, func() bool { return p.signOutCount() == 1 }, waitFor, 5*time.Millisecond)
		})
	}
}

func TestGuard_fetchTimeout(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: true, Role: "admin"}})
	s.ignoreCtx = true
	release := s.block("u1")
	defer close(release)

	g := NewGuard(GuardDeps{Provider: p, Store: s, Logger: nopLogger{}, Timeout: 50 * time.Millisecond}, role.Admin)
	defer g.Close()
	p.waitSubscribed(t)

	p.emit(&identity.Principal{ID: "u1"})
	st := waitSettled(t, g)

	require.Equal(t, StatusError, st.Status)
	assert.Equal(t, KindVerificationFailed, st.Err.Kind)
	assert.Eventually(t, func() bool { return p.signOutCount() == 1 }, waitFor, 5*time.Millisecond)
}

func TestGuard_timedOutStorageErrorIsNotRecoverable(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(nil)
	s.err = rolestore.NewError(rolestore.KindStorage, "get", context.DeadlineExceeded)
	g := mountGuard(t, p, s, role.Admin)

	p.emit(&identity.Principal{ID: "u1"})
	st := waitSettled(t, g)

	require.Equal(t, StatusError, st.Status)
	assert.Equal(t, KindVerificationFailed, st.Err.Kind)
}

func TestGuard_unauthenticated(t *testing.T) {
	p := newFakeProvider()
	g := mountGuard(t, p, newFakeStore(nil), role.Admin)

	assert.Equal(t, ActionLoading, g.Decide("/admin/dashboard").Action)

	p.emit(nil)
	st := waitSettled(t, g)
	assert.Equal(t, StatusUnauthenticated, st.Status)

	d := g.Decide("/admin/dashboard?tab=news")
	assert.Equal(t, ActionRedirect, d.Action)
	assert.Equal(t, "/login?next=%2Fadmin%2Fdashboard%3Ftab%3Dnews", d.Location)
	assert.Equal(t, 0, p.signOutCount())
}

func TestGuard_loadingWhileChecking(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: true, Role: "admin"}})
	release := s.block("u1")
	g := mountGuard(t, p, s, role.Admin)

	p.emit(&identity.Principal{ID: "u1"})
	assert.Equal(t, StatusChecking, g.State().Status)
	d := g.Decide("/admin/dashboard")
	assert.Equal(t, ActionLoading, d.Action)
	assert.Empty(t, d.Location)

	close(release)
	assert.Equal(t, StatusAuthenticated, waitSettled(t, g).Status)
}

func TestGuard_closeBeforeFetchResolves(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: false}})
	s.ignoreCtx = true
	release := s.block("u1")

	var changes int32
	g := NewGuard(GuardDeps{
		Provider: p,
		Store:    s,
		Logger:   nopLogger{},
		OnChange: func(State) { atomic.AddInt32(&changes, 1) },
	}, role.Admin)
	p.waitSubscribed(t)

	p.emit(&identity.Principal{ID: "u1"})
	require.Equal(t, StatusChecking, g.State().Status)
	seen := atomic.LoadInt32(&changes)

	g.Close()
	assert.Equal(t, 0, p.listenerCount())

	close(release)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, StatusChecking, g.State().Status)
	assert.Equal(t, seen, atomic.LoadInt32(&changes))
	assert.Equal(t, 0, p.signOutCount())

	// emissions after unmount are ignored too
	p.emit(nil)
	assert.Equal(t, StatusChecking, g.State().Status)
}

func TestGuard_newerEmissionSupersedesFetch(t *testing.T) {
	p := newFakeProvider()
	s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: true, Role: "admin"}})
	release := s.block("u1")
	g := mountGuard(t, p, s, role.Admin)

	p.emit(&identity.Principal{ID: "u1"})
	p.emit(nil)
	close(release)
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, StatusUnauthenticated, g.State().Status)
}

func TestGuard_persistenceInitFailureIsNotFatal(t *testing.T) {
	p := newFakeProvider()
	p.initErr = errors.New("indexedDB unavailable")
	s := newFakeStore(map[string]rolestore.Record{"u1": {Exists: true, Role: "admin"}})
	g := mountGuard(t, p, s, role.Admin)

	p.emit(&identity.Principal{ID: "u1"})
	assert.Equal(t, StatusAuthenticated, waitSettled(t, g).Status)
}

func TestGuard_persistenceInitTimeout(t *testing.T) {
	p := newFakeProvider()
	p.initBlock = make(chan struct{})
	defer close(p.initBlock)

	g := NewGuard(GuardDeps{Provider: p, Store: newFakeStore(nil), Logger: nopLogger{}, Timeout: 30 * time.Millisecond}, role.Admin)
	defer g.Close()

	st := waitSettled(t, g)
	require.Equal(t, StatusError, st.Status)
	assert.Equal(t, KindVerificationFailed, st.Err.Kind)
	assert.Equal(t, 0, p.listenerCount())
}

func TestGuard_closeIsIdempotent(t *testing.T) {
	p := newFakeProvider()
	g := mountGuard(t, p, newFakeStore(nil), role.Admin)
	g.Close()
	g.Close()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	assert.Equal(t, StatusInitializing, g.Wait(ctx).Status)
}

func TestDecide(t *testing.T) {
	errState := State{Status: StatusError, Err: errNoRoleAssigned()}
	tests := []struct {
		name    string
		st      State
		allowed []role.Role
		from    string
		want    Decision
	}{
		{name: "initializing", st: State{Status: StatusInitializing}, want: Decision{Action: ActionLoading}},
		{name: "checking", st: State{Status: StatusChecking}, want: Decision{Action: ActionLoading}},
		{name: "error", st: errState, want: Decision{Action: ActionShowError, Err: errState.Err}},
		{name: "unauthenticated no from", st: State{Status: StatusUnauthenticated}, want: Decision{Action: ActionRedirect, Location: "/login"}},
		{
			name: "unauthenticated with from", st: State{Status: StatusUnauthenticated}, from: "/reception/dashboard",
			want: Decision{Action: ActionRedirect, Location: "/login?next=%2Freception%2Fdashboard"},
		},
		{
			name: "unauthenticated external from", st: State{Status: StatusUnauthenticated}, from: "//evil.test/x",
			want: Decision{Action: ActionRedirect, Location: "/login"},
		},
		{
			name: "allowed", st: State{Status: StatusAuthenticated, Role: role.Admin}, allowed: []role.Role{role.Admin},
			want: Decision{Action: ActionRender},
		},
		{
			name: "no roles allowed", st: State{Status: StatusAuthenticated, Role: role.Admin},
			want: Decision{Action: ActionRedirect, Location: "/admin/dashboard"},
		},
		{name: "unknown status", st: State{Status: Status(42)}, want: Decision{Action: ActionRedirect, Location: "/login"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decide(tt.st, tt.allowed, tt.from)
			assert.Equal(t, tt.want.Action, got.Action)
			assert.Equal(t, tt.want.Location, got.Location)
			assert.Equal(t, tt.want.Err, got.Err)
		})
	}
}

func TestSafeNext(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{next: "/admin/dashboard", want: "/admin/dashboard"},
		{next: "/admin/pages?id=3", want: "/admin/pages?id=3"},
		{next: "", want: ""},
		{next: "admin", want: ""},
		{next: "//evil.test", want: ""},
		{next: "/\\evil.test", want: ""},
		{next: "https://evil.test/admin", want: ""},
		{next: "/login", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeNext(tt.next))
		})
	}
}
