// Package rolestore defines the read side of the per-principal role records.
package rolestore

import "context"

// Record is the authorization record of a principal.
// Role is whatever the document holds; it is untrusted and must go through role.Normalize.
type Record struct {
	Exists bool
	Role   interface{}
}

type Store interface {
	GetRoleRecord(ctx context.Context, principalID string) (Record, error)
}

// Writer is implemented by stores the admin tooling can write records to.
type Writer interface {
	SetRole(ctx context.Context, principalID string, raw interface{}) error
	DeleteRole(ctx context.Context, principalID string) error
}
