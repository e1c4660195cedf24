// Package access decides who may see the back office views: the Guard gates a view by role and the
// LoginFlow turns credentials into a navigation to the role's home.
package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/rolestore"
)

type GuardDeps struct {
	Provider identity.Provider
	Store    rolestore.Store
	Logger   core.Logger

	// Timeout bounds the persistence init and every role fetch. Zero means no bound.
	Timeout time.Duration

	// OnChange is called after each transition, never after Close returns. It must not call Close.
	OnChange func(State)
}

// Guard is the access state machine of one mounted view. NewGuard mounts it, Close unmounts it.
type Guard struct {
	deps    GuardDeps
	allowed []role.Role

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	gen         uint64 // bumped on every auth state emission; stale fetches compare against it
	closed      bool
	unsubscribe func()
	changed     chan struct{}

	notifyMu sync.Mutex
}

// NewGuard starts the session setup in the background and returns immediately in StatusInitializing.
func NewGuard(deps GuardDeps, allowed ...role.Role) *Guard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Guard{
		deps:    deps,
		allowed: allowed,
		ctx:     ctx,
		cancel:  cancel,
		state:   State{Status: StatusInitializing},
		changed: make(chan struct{}),
	}
	go g.init()
	return g
}

func (g *Guard) init() {
	if err := initPersistence(g.ctx, g.deps.Provider, g.deps.Timeout); err != nil {
		if g.isClosed() {
			return
		}
		if core.IsTimeout(err) {
			g.reject(g.currentGen(), identity.Principal{}, errVerificationFailed(msgGuardVerificationFailed, err))
			return
		}
		g.deps.Logger.Warn(fmt.Sprintf("access guard: session persistence init: %v", err), err)
	}

	unsubscribe := g.deps.Provider.OnAuthStateChange(g.onAuthStateChange)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		unsubscribe()
		return
	}
	g.unsubscribe = unsubscribe
	g.mu.Unlock()
}

func (g *Guard) onAuthStateChange(p *identity.Principal) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.gen++
	gen := g.gen

	if p == nil {
		// our own sign out after a rejection must not replace the error panel
		if g.state.Status == StatusError && !g.state.Err.Recoverable() {
			g.mu.Unlock()
			return
		}
		g.setLocked(State{Status: StatusUnauthenticated})
		g.mu.Unlock()
		g.emit()
		return
	}

	principal := *p
	g.setLocked(State{Status: StatusChecking, Principal: principal})
	g.mu.Unlock()
	g.emit()

	go g.verify(gen, principal)
}

func (g *Guard) verify(gen uint64, p identity.Principal) {
	rec, err := fetchRecord(g.ctx, g.deps.Store, g.deps.Timeout, p.ID)
	r, rej := resolveRole(rec, err, msgGuardVerificationFailed)
	if rej != nil {
		g.reject(gen, p, rej)
		return
	}

	g.mu.Lock()
	if g.closed || gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.setLocked(State{Status: StatusAuthenticated, Principal: p, Role: r})
	g.mu.Unlock()
	g.emit()
}

// reject moves to StatusError and signs out unless the failure is a blocked storage environment.
func (g *Guard) reject(gen uint64, p identity.Principal, rej *Error) {
	g.mu.Lock()
	if g.closed || gen != g.gen {
		g.mu.Unlock()
		return
	}
	g.setLocked(State{Status: StatusError, Principal: p, Err: rej})
	g.mu.Unlock()

	g.deps.Logger.Warn(fmt.Sprintf("access guard: %s: %s", rej.Kind, rej.Message), rej.Err, p)
	if !rej.Recoverable() {
		if err := signOut(g.deps.Provider); err != nil {
			g.deps.Logger.Error(fmt.Sprintf("access guard: sign out: %v", err), err, p)
		}
	}
	g.emit()
}

func (g *Guard) setLocked(st State) {
	g.state = st
	close(g.changed)
	g.changed = make(chan struct{})
}

func (g *Guard) emit() {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()

	g.mu.Lock()
	closed, st := g.closed, g.state
	g.mu.Unlock()
	if closed || g.deps.OnChange == nil {
		return
	}
	g.deps.OnChange(st)
}

func (g *Guard) currentGen() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gen
}

func (g *Guard) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// State returns the current access state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Decide evaluates the render policy for the current state; from is the location being rendered.
func (g *Guard) Decide(from string) Decision {
	return decide(g.State(), g.allowed, from)
}

// Wait blocks until the state is settled, the guard is closed or ctx is done, and returns the state.
func (g *Guard) Wait(ctx context.Context) State {
	for {
		g.mu.Lock()
		st, closed, changed := g.state, g.closed, g.changed
		g.mu.Unlock()
		if st.Settled() || closed {
			return st
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return g.State()
		}
	}
}

// Close unmounts the guard: the subscription is released, in-flight work is cancelled and its
// results dropped. OnChange is not called once Close has returned. Close is idempotent.
func (g *Guard) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	close(g.changed)
	g.changed = make(chan struct{})
	g.mu.Unlock()

	g.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}

	// wait out an OnChange call already in progress
	g.notifyMu.Lock()
	g.notifyMu.Unlock() //nolint:staticcheck
}
