// Package storage opens the role store the configuration asks for.
package storage

import (
	"github.com/pkg/errors"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/rolestore"
	dummydb "github.com/trezcool/college/storage/database/dummy"
	sqlxrepos "github.com/trezcool/college/storage/database/sqlx"
	badgerstore "github.com/trezcool/college/storage/docstore/badger"
)

// RoleStore is a role store both the access checks and the admin tooling can use.
type RoleStore interface {
	rolestore.Store
	rolestore.Writer
}

var (
	_ RoleStore = (*dummydb.RoleStore)(nil)
	_ RoleStore = (*sqlxrepos.RoleStore)(nil)
	_ RoleStore = (*badgerstore.RoleStore)(nil)
)

func nopClose() error { return nil }

// OpenRoleStore opens the role store of conf.RoleStore.Driver. db is only used by the postgres driver.
// The returned func releases the store.
func OpenRoleStore(conf *core.Config, db core.DBExecutor) (RoleStore, func() error, error) {
	switch conf.RoleStore.Driver {
	case core.RoleStoreMemory:
		return dummydb.NewRoleStore(dummydb.Open()), nopClose, nil
	case core.RoleStoreBadger:
		s, err := badgerstore.Open(conf.RoleStore.BadgerPath)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "opening badger role store at %q", conf.RoleStore.BadgerPath)
		}
		return s, s.Close, nil
	case core.RoleStorePostgres, "":
		if db == nil {
			return nil, nil, errors.New("postgres role store: no database")
		}
		return sqlxrepos.NewRoleStore(db), nopClose, nil
	}
	return nil, nil, errors.Errorf("unknown role store driver %q", conf.RoleStore.Driver)
}
