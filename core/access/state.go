package access

import (
	"net/url"
	"strings"

	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
)

type Status int

const (
	StatusInitializing Status = iota
	StatusChecking
	StatusAuthenticated
	StatusUnauthenticated
	StatusError
)

var statusNames = map[Status]string{
	StatusInitializing:    "initializing",
	StatusChecking:        "checking",
	StatusAuthenticated:   "authenticated",
	StatusUnauthenticated: "unauthenticated",
	StatusError:           "error",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

// State is the access state of one guard. Principal is set while Checking and once Authenticated;
// Role only once Authenticated; Err only in StatusError.
type State struct {
	Status    Status
	Principal identity.Principal
	Role      role.Role
	Err       *Error
}

// Settled reports whether the state no longer waits on the provider or the store.
func (s State) Settled() bool {
	return s.Status != StatusInitializing && s.Status != StatusChecking
}

type Action int

const (
	ActionLoading Action = iota
	ActionShowError
	ActionRedirect
	ActionRender
)

var actionNames = map[Action]string{
	ActionLoading:   "loading",
	ActionShowError: "error",
	ActionRedirect:  "redirect",
	ActionRender:    "render",
}

func (a Action) String() string { return actionNames[a] }

// Decision is what a guarded view must do on this render.
type Decision struct {
	Action   Action
	Location string // ActionRedirect
	Err      *Error // ActionShowError
	State    State
}

// decide is the render policy. Loading and error never redirect.
func decide(st State, allowed []role.Role, from string) Decision {
	d := Decision{State: st}
	switch st.Status {
	case StatusInitializing, StatusChecking:
		d.Action = ActionLoading
	case StatusError:
		d.Action = ActionShowError
		d.Err = st.Err
	case StatusUnauthenticated:
		d.Action = ActionRedirect
		d.Location = LoginLocation(from)
	case StatusAuthenticated:
		if st.Role.In(allowed) {
			d.Action = ActionRender
		} else {
			d.Action = ActionRedirect
			d.Location = st.Role.Home()
		}
	default:
		d.Action = ActionRedirect
		d.Location = role.LoginPath
	}
	return d
}

// LoginLocation is the login path carrying the requested location for the post-login return.
func LoginLocation(from string) string {
	from = SafeNext(from)
	if from == "" {
		return role.LoginPath
	}
	return role.LoginPath + "?" + url.Values{"next": {from}}.Encode()
}

// SafeNext returns next when it is a local absolute path other than the login page, "" otherwise.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" || u.Scheme != "" || u.Path == role.LoginPath {
		return ""
	}
	return next
}
