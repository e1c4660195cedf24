// Package role holds the closed set of back office roles and the only way to obtain one: Normalize.
package role

import (
	"strings"

	"github.com/trezcool/college/core"
)

// Role is a normalized, lowercase role value. Values outside the set below are never produced by this package.
type Role string

const (
	Principal   Role = "principal"
	Admin       Role = "admin"
	FrontOffice Role = "front_office"
)

// LoginPath is where unauthenticated visitors are sent.
const LoginPath = "/login"

var (
	All = []Role{Principal, Admin, FrontOffice}

	homes = map[Role]string{
		Principal:   "/principal/dashboard",
		Admin:       "/admin/dashboard",
		FrontOffice: "/reception/dashboard",
	}

	titles = map[Role]string{
		Principal:   "Principal",
		Admin:       "Admin",
		FrontOffice: "Front Office",
	}
)

// Normalize maps an untrusted raw value to a Role.
// Non-string values (nil included) are rejected; strings are trimmed and lowercased before the membership check.
func Normalize(raw interface{}) (Role, bool) {
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	r := Role(core.CleanString(s, true /* lower */))
	if _, ok := homes[r]; !ok {
		return "", false
	}
	return r, true
}

// Home is the role's default landing path.
func (r Role) Home() string {
	if h, ok := homes[r]; ok {
		return h
	}
	return LoginPath
}

func (r Role) Title() string { return titles[r] }

func (r Role) String() string { return string(r) }

// In reports whether r is one of roles. Both sides are already normalized so this is an exact match.
func (r Role) In(roles []Role) bool {
	for _, allowed := range roles {
		if r == allowed {
			return true
		}
	}
	return false
}

// ValidList renders the role set for user-facing messages.
func ValidList() string {
	names := make([]string, 0, len(All))
	for _, r := range All {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}
