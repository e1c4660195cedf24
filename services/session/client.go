package sessionsvc

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/user"
)

type listener struct {
	cb     identity.StateListener
	primed bool // received the current state; gets every change from now on
}

// Client is the session of one browser. It implements identity.Provider.
type Client struct {
	m *Manager

	initOnce sync.Once
	initDone chan struct{}
	initErr  error

	emitMu sync.Mutex // orders deliveries to listeners

	mu        sync.Mutex
	sid       string
	claims    *Claims // restored from the cookie, nil for a new session
	token     string
	principal *identity.Principal
	listeners map[int]*listener
	nextID    int
}

var _ identity.Provider = (*Client)(nil)

func newClient(m *Manager, sid string, claims *Claims) *Client {
	return &Client{
		m:         m,
		sid:       sid,
		claims:    claims,
		initDone:  make(chan struct{}),
		listeners: make(map[int]*listener),
	}
}

// InitPersistence restores the principal from the session cookie. The restore runs once per client;
// later calls wait for its result.
func (c *Client) InitPersistence(ctx context.Context) error {
	c.startInit()
	select {
	case <-c.initDone:
		return c.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) startInit() {
	c.initOnce.Do(func() { go c.restore() })
}

func (c *Client) restore() {
	defer close(c.initDone)

	c.mu.Lock()
	claims := c.claims
	c.mu.Unlock()
	if claims == nil {
		return
	}

	ctx := context.Background()
	if c.m.persistTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.m.persistTimeout)
		defer cancel()
	}

	usr, err := c.m.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			c.m.revoke(claims.SessionID)
			return
		}
		// not cached, the next request of this browser tries again
		c.m.clients.Remove(claims.SessionID)
		c.initErr = errors.Wrap(err, "restoring session")
		return
	}
	if !usr.IsActive {
		c.m.revoke(claims.SessionID)
		return
	}

	c.mu.Lock()
	// a sign in or sign out while restoring wins
	if c.sid == claims.SessionID && c.principal == nil && !c.m.isRevoked(claims.SessionID) {
		c.principal = &identity.Principal{ID: usr.ID, Email: usr.Email}
	}
	c.mu.Unlock()
}

// SignIn checks the credentials of an account and starts a new session for it.
func (c *Client) SignIn(ctx context.Context, identifier, secret string) (identity.Principal, error) {
	email := core.CleanString(identifier, true /* lower */)
	if err := c.m.validate.Var(email, "required,email"); err != nil {
		return identity.Principal{}, identity.NewError(identity.CodeInvalidEmail, err)
	}
	if !c.m.allowAttempt(email) {
		return identity.Principal{}, identity.NewError(identity.CodeTooManyRequests)
	}
	if secret == "" {
		return identity.Principal{}, identity.NewError(identity.CodeInvalidCredential)
	}

	usr, err := c.m.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return identity.Principal{}, identity.NewError(identity.CodeUserNotFound)
		}
		return identity.Principal{}, identity.NewError(identity.CodeNetworkRequestFailed, errors.Wrap(err, "finding user by email"))
	}
	if err := usr.CheckPassword(secret); err != nil {
		return identity.Principal{}, identity.NewError(identity.CodeWrongPassword)
	}
	if !usr.IsActive {
		return identity.Principal{}, identity.NewError(identity.CodeUserDisabled)
	}
	if usr, err = c.m.accounts.SetLastLogin(ctx, usr); err != nil {
		return identity.Principal{}, identity.NewError(identity.CodeNetworkRequestFailed, errors.Wrap(err, "setting last login"))
	}

	sid := uuid.NewString()
	token, err := c.m.issueToken(sid, usr)
	if err != nil {
		return identity.Principal{}, identity.NewError(identity.CodeInternal, err)
	}
	p := identity.Principal{ID: usr.ID, Email: usr.Email}

	c.mu.Lock()
	oldSID, hadPrincipal := c.sid, c.principal != nil
	c.sid = sid
	c.claims = nil
	c.token = token
	c.principal = &p
	c.mu.Unlock()

	if hadPrincipal {
		c.m.revoke(oldSID)
	}
	c.m.clients.Add(sid, c)
	c.emit()
	return p, nil
}

// SignOut ends the session; its cookie is rejected from now on.
func (c *Client) SignOut(context.Context) error {
	c.mu.Lock()
	oldSID := c.sid
	c.sid = uuid.NewString()
	c.claims = nil
	c.token = ""
	c.principal = nil
	c.mu.Unlock()

	c.m.revoke(oldSID)
	c.emit()
	return nil
}

// OnAuthStateChange delivers the current state once persistence init is done, then every change.
func (c *Client) OnAuthStateChange(cb identity.StateListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	l := &listener{cb: cb}
	c.listeners[id] = l
	c.mu.Unlock()

	c.startInit()
	go func() {
		<-c.initDone

		c.emitMu.Lock()
		defer c.emitMu.Unlock()
		c.mu.Lock()
		if _, ok := c.listeners[id]; !ok {
			c.mu.Unlock()
			return
		}
		l.primed = true
		p := c.currentLocked()
		c.mu.Unlock()
		cb(p)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// emit delivers the current state to the listeners that already got their first state.
func (c *Client) emit() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	p := c.currentLocked()
	cbs := make([]identity.StateListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.primed {
			cbs = append(cbs, l.cb)
		}
	}
	c.mu.Unlock()

	for _, cb := range cbs {
		cb(p)
	}
}

func (c *Client) currentLocked() *identity.Principal {
	if c.principal == nil {
		return nil
	}
	p := *c.principal
	return &p
}

// Principal returns the signed in principal, nil when there is none.
func (c *Client) Principal() *identity.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentLocked()
}

// Token returns the signed cookie value of a session started by SignIn, empty otherwise.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Client) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("session(%s)", c.sid)
}
