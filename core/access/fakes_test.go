package access

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/rolestore"
)

const waitFor = 2 * time.Second

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// fakeProvider never emits on its own; tests drive it with emit.
type fakeProvider struct {
	mu         sync.Mutex
	principal  *identity.Principal
	listeners  map[int]identity.StateListener
	nextID     int
	signOuts   int
	signIn     func(identifier, secret string) (identity.Principal, error)
	initErr    error
	initBlock  chan struct{}
	subscribed chan struct{}
}

var _ identity.Provider = (*fakeProvider)(nil)

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		listeners:  make(map[int]identity.StateListener),
		subscribed: make(chan struct{}, 16),
	}
}

func (p *fakeProvider) InitPersistence(ctx context.Context) error {
	if p.initBlock != nil {
		select {
		case <-p.initBlock:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.initErr
}

func (p *fakeProvider) SignIn(_ context.Context, identifier, secret string) (identity.Principal, error) {
	principal, err := p.signIn(identifier, secret)
	if err != nil {
		return identity.Principal{}, err
	}
	p.emit(&principal)
	return principal, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	p.signOuts++
	p.mu.Unlock()
	p.emit(nil)
	return nil
}

func (p *fakeProvider) OnAuthStateChange(cb identity.StateListener) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = cb
	p.mu.Unlock()
	p.subscribed <- struct{}{}

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func (p *fakeProvider) emit(principal *identity.Principal) {
	p.mu.Lock()
	p.principal = principal
	listeners := make([]identity.StateListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()
	for _, l := range listeners {
		l(principal)
	}
}

func (p *fakeProvider) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case <-p.subscribed:
	case <-time.After(waitFor):
		t.Fatal("provider: no subscription")
	}
}

func (p *fakeProvider) signOutCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signOuts
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type fakeStore struct {
	records   map[string]rolestore.Record
	err       error
	blocks    map[string]chan struct{} // fetches for these IDs wait for the channel to close
	ignoreCtx bool
	calls     int32
}

var _ rolestore.Store = (*fakeStore)(nil)

func newFakeStore(records map[string]rolestore.Record) *fakeStore {
	return &fakeStore{records: records, blocks: make(map[string]chan struct{})}
}

func (s *fakeStore) block(id string) chan struct{} {
	ch := make(chan struct{})
	s.blocks[id] = ch
	return ch
}

func (s *fakeStore) GetRoleRecord(ctx context.Context, id string) (rolestore.Record, error) {
	atomic.AddInt32(&s.calls, 1)
	if ch, ok := s.blocks[id]; ok {
		if s.ignoreCtx {
			<-ch
		} else {
			select {
			case <-ch:
			case <-ctx.Done():
				return rolestore.Record{}, ctx.Err()
			}
		}
	}
	if s.err != nil {
		return rolestore.Record{}, s.err
	}
	return s.records[id], nil
}

type navigation struct {
	path    string
	replace bool
}

type fakeNavigator struct {
	mu   sync.Mutex
	navs []navigation
}

func (n *fakeNavigator) Navigate(path string, replace bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navs = append(n.navs, navigation{path: path, replace: replace})
}

func (n *fakeNavigator) all() []navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]navigation(nil), n.navs...)
}
