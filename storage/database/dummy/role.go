package dummydb

import (
	"context"

	"github.com/trezcool/college/core/rolestore"
)

type RoleStore struct {
	db *roleTable
}

// NewRoleStore returns a store over the in-memory role table. A record exists once SetRole
// was called for the principal, even with a nil role.
func NewRoleStore(db *DB) *RoleStore {
	return &RoleStore{db: db.role}
}

func (s *RoleStore) GetRoleRecord(ctx context.Context, principalID string) (rolestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return rolestore.Record{}, err
	}

	s.db.RLock()
	defer s.db.RUnlock()

	if s.db.err != nil {
		return rolestore.Record{}, s.db.err
	}
	raw, ok := s.db.table[principalID]
	if !ok {
		return rolestore.Record{}, nil
	}
	return rolestore.Record{Exists: true, Role: raw}, nil
}

func (s *RoleStore) SetRole(_ context.Context, principalID string, raw interface{}) error {
	s.db.Lock()
	defer s.db.Unlock()
	s.db.table[principalID] = raw
	return nil
}

func (s *RoleStore) DeleteRole(_ context.Context, principalID string) error {
	s.db.Lock()
	defer s.db.Unlock()
	delete(s.db.table, principalID)
	return nil
}
