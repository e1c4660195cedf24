// Package dummydb is an in-memory storage used by tests and the "memory" role store driver.
package dummydb

import (
	"sync"

	"github.com/trezcool/college/core/rolestore"
	"github.com/trezcool/college/core/user"
)

type (
	DB struct {
		user *userTable
		role *roleTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	roleTable struct {
		sync.RWMutex
		table map[string]interface{}
		err   error // returned by every read when set
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		role: &roleTable{table: make(map[string]interface{})},
	}
}

// FailRoleReads makes role reads fail with err until called again with nil.
func (db *DB) FailRoleReads(err error) {
	db.role.Lock()
	db.role.err = err
	db.role.Unlock()
}

// Reset empties every table.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.Unlock()

	db.role.Lock()
	db.role.table = make(map[string]interface{})
	db.role.err = nil
	db.role.Unlock()
}

var (
	_ user.Repository  = (*userRepository)(nil) // interface compliance check
	_ rolestore.Store  = (*RoleStore)(nil)
	_ rolestore.Writer = (*RoleStore)(nil)
)
