// Package badgerstore keeps the role documents in an embedded badger database.
package badgerstore

import (
	"context"
	"encoding/json"
	"io/fs"
	"syscall"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/college/core/rolestore"
)

const rolePrefix = "roles/"

// roleDoc is the stored document. Role keeps whatever JSON value was written.
type roleDoc struct {
	Role interface{} `json:"role"`
}

type RoleStore struct {
	db *badger.DB
}

var (
	_ rolestore.Store  = (*RoleStore)(nil)
	_ rolestore.Writer = (*RoleStore)(nil)
)

// Open opens the database at path, in memory when path is empty.
func Open(path string) (*RoleStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(classify("open", err), "opening badger role store")
	}
	return &RoleStore{db: db}, nil
}

func (s *RoleStore) Close() error {
	return s.db.Close()
}

func keyRole(principalID string) []byte {
	return []byte(rolePrefix + principalID)
}

func (s *RoleStore) GetRoleRecord(ctx context.Context, principalID string) (rolestore.Record, error) {
	if err := ctx.Err(); err != nil {
		return rolestore.Record{}, err
	}

	var rec rolestore.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyRole(principalID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var doc roleDoc
			if err := json.Unmarshal(val, &doc); err != nil {
				return rolestore.NewError(rolestore.KindInternal, "get", errors.Wrap(err, "decoding role document"))
			}
			rec = rolestore.Record{Exists: true, Role: doc.Role}
			return nil
		})
	})
	if err != nil {
		return rolestore.Record{}, classify("get", err)
	}
	return rec, nil
}

func (s *RoleStore) SetRole(ctx context.Context, principalID string, raw interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(roleDoc{Role: raw})
	if err != nil {
		return errors.Wrap(err, "encoding role document")
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(keyRole(principalID), val)
	})
	return classify("set", err)
}

func (s *RoleStore) DeleteRole(ctx context.Context, principalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(keyRole(principalID))
	})
	return classify("delete", err)
}

// classify maps badger and filesystem failures to store error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *rolestore.Error
	if errors.As(err, &storeErr) {
		return err
	}

	kind := rolestore.KindInternal
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, fs.ErrPermission):
		kind = rolestore.KindAccess
	case errors.Is(err, syscall.ENOSPC):
		kind = rolestore.KindQuota
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrBlockedWrites):
		kind = rolestore.KindUnavailable
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.EROFS):
		kind = rolestore.KindStorage
	}
	return rolestore.NewError(kind, op, err)
}
