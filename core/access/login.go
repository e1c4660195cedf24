package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/rolestore"
)

// Navigator performs a client navigation. replace drops the current history entry.
type Navigator interface {
	Navigate(path string, replace bool)
}

type NavigatorFunc func(path string, replace bool)

func (f NavigatorFunc) Navigate(path string, replace bool) { f(path, replace) }

type LoginDeps struct {
	Provider  identity.Provider
	Store     rolestore.Store
	Navigator Navigator
	Logger    core.Logger

	// Timeout bounds the persistence init, the wait for the first auth state and every role fetch.
	Timeout time.Duration

	// Next is where to go after login instead of the role home. Anything but a local path is ignored.
	Next string
}

// LoginState is a snapshot of a LoginFlow.
type LoginState struct {
	Checking   bool   // existing session check still running
	Redirected bool   // the one navigation of this mount happened
	Location   string // where it went
	Err        *Error // last rejection shown on the form
}

// LoginResult is the outcome of one credential submission. Location is set when it navigated.
type LoginResult struct {
	Location string
	Err      *Error
}

// LoginFlow backs one mounted login view. It navigates at most once per mount.
type LoginFlow struct {
	deps LoginDeps
	next string

	ctx    context.Context
	cancel context.CancelFunc

	submitMu sync.Mutex // one credential submission at a time

	mu           sync.Mutex
	closed       bool
	redirected   bool
	location     string
	submitting   bool
	staleSession bool // a rejected existing session is waiting for the in-flight submission
	err          *Error
	unsubscribe  func()
	checkDone    chan struct{}
}

// NewLoginFlow mounts the login view and starts the one-shot existing session check.
func NewLoginFlow(deps LoginDeps) *LoginFlow {
	ctx, cancel := context.WithCancel(context.Background())
	f := &LoginFlow{
		deps:      deps,
		next:      SafeNext(deps.Next),
		ctx:       ctx,
		cancel:    cancel,
		checkDone: make(chan struct{}),
	}
	go f.checkExistingSession()
	return f
}

func (f *LoginFlow) checkExistingSession() {
	defer close(f.checkDone)

	if err := initPersistence(f.ctx, f.deps.Provider, f.deps.Timeout); err != nil {
		if f.isClosed() {
			return
		}
		// the form stays usable; a real storage problem shows up again on the role fetch
		f.deps.Logger.Warn(fmt.Sprintf("login: session persistence init: %v", err), err)
		if core.IsTimeout(err) {
			return
		}
	}

	first := make(chan *identity.Principal, 1)
	var once sync.Once
	unsubscribe := f.deps.Provider.OnAuthStateChange(func(p *identity.Principal) {
		once.Do(func() { first <- p })
	})
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		unsubscribe()
		return
	}
	f.unsubscribe = unsubscribe
	f.mu.Unlock()

	var timeout <-chan time.Time
	if f.deps.Timeout > 0 {
		timer := time.NewTimer(f.deps.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var p *identity.Principal
	select {
	case p = <-first:
	case <-timeout:
		f.deps.Logger.Warn("login: no auth state received before timeout")
	case <-f.ctx.Done():
	}
	f.releaseSubscription()
	if p == nil {
		return
	}

	rec, err := fetchRecord(f.ctx, f.deps.Store, f.deps.Timeout, p.ID)
	if f.isClosed() {
		return
	}
	r, rej := resolveRole(rec, err, msgLoginVerificationFailed)
	if rej == nil {
		f.navigate(f.target(r.Home()))
		return
	}

	f.mu.Lock()
	if f.closed || f.redirected {
		f.mu.Unlock()
		return
	}
	if f.submitting {
		// the submission owns the session now; it signs out if it does not replace it
		f.staleSession = true
		f.mu.Unlock()
		return
	}
	f.err = rej
	f.mu.Unlock()

	f.deps.Logger.Warn(fmt.Sprintf("login: existing session rejected: %s", rej.Kind), rej.Err, *p)
	if err := signOut(f.deps.Provider); err != nil {
		f.deps.Logger.Error(fmt.Sprintf("login: sign out: %v", err), err, *p)
	}
}

// Submit signs in with credentials and verifies the account role. Every rejection after a
// successful sign in signs the principal out again; only a valid role navigates.
func (f *LoginFlow) Submit(ctx context.Context, identifier, secret string) LoginResult {
	f.submitMu.Lock()
	defer f.submitMu.Unlock()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return LoginResult{}
	}
	if f.redirected {
		loc := f.location
		f.mu.Unlock()
		return LoginResult{Location: loc}
	}
	f.submitting = true
	f.err = nil
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	p, err := f.deps.Provider.SignIn(ctx, identifier, secret)
	if err != nil {
		if f.takeStaleSession() {
			if err := signOut(f.deps.Provider); err != nil {
				f.deps.Logger.Error(fmt.Sprintf("login: sign out: %v", err), err)
			}
		}
		return f.fail(errCredentialRejected(err), nil)
	}
	f.takeStaleSession()

	rec, err := fetchRecord(ctx, f.deps.Store, f.deps.Timeout, p.ID)
	r, rej := resolveRole(rec, err, msgLoginVerificationFailed)
	if rej != nil {
		// the session was opened by this submission, so it is revoked even
		// when nobody is left to show the error
		f.deps.Logger.Warn(fmt.Sprintf("login: %s: %s", rej.Kind, rej.Message), rej.Err, p)
		if err := signOut(f.deps.Provider); err != nil {
			f.deps.Logger.Error(fmt.Sprintf("login: sign out: %v", err), err, p)
		}
		if f.isClosed() {
			return LoginResult{}
		}
		return f.fail(rej, &p)
	}
	if f.isClosed() {
		return LoginResult{}
	}

	loc := f.target(r.Home())
	if f.navigate(loc) {
		return LoginResult{Location: loc}
	}
	// the existing session check got there first
	st := f.State()
	return LoginResult{Location: st.Location}
}

func (f *LoginFlow) fail(rej *Error, p *identity.Principal) LoginResult {
	f.mu.Lock()
	if !f.closed {
		f.err = rej
	}
	f.mu.Unlock()
	if rej.Kind == KindCredentialRejected {
		f.deps.Logger.Info(fmt.Sprintf("login: %s", rej.Code))
	}
	return LoginResult{Err: rej}
}

func (f *LoginFlow) takeStaleSession() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	stale := f.staleSession
	f.staleSession = false
	return stale
}

func (f *LoginFlow) target(home string) string {
	if f.next != "" {
		return f.next
	}
	return home
}

// navigate flips the redirect latch; only the first caller of a mount navigates.
func (f *LoginFlow) navigate(loc string) bool {
	f.mu.Lock()
	if f.closed || f.redirected {
		f.mu.Unlock()
		return false
	}
	f.redirected = true
	f.location = loc
	f.err = nil
	f.mu.Unlock()

	f.deps.Navigator.Navigate(loc, true /* replace */)
	return true
}

func (f *LoginFlow) releaseSubscription() {
	f.mu.Lock()
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (f *LoginFlow) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// State returns a snapshot of the flow.
func (f *LoginFlow) State() LoginState {
	f.mu.Lock()
	defer f.mu.Unlock()

	checking := true
	select {
	case <-f.checkDone:
		checking = false
	default:
	}
	return LoginState{
		Checking:   checking,
		Redirected: f.redirected,
		Location:   f.location,
		Err:        f.err,
	}
}

// CheckDone is closed once the existing session check has finished.
func (f *LoginFlow) CheckDone() <-chan struct{} { return f.checkDone }

// Close unmounts the login view. Late results of the session check or of a submission are dropped.
func (f *LoginFlow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()

	f.cancel()
	f.releaseSubscription()
}
