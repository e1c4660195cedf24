package badgerstore

import (
	"context"
	"io/fs"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/college/core/rolestore"
)

func openStore(t *testing.T, path string) *RoleStore {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRoleStore(t *testing.T) {
	s := openStore(t, "")
	ctx := context.Background()

	tests := []struct {
		name    string
		raw     interface{}
		wantRec rolestore.Record
	}{
		{name: "string", raw: " Front_Office ", wantRec: rolestore.Record{Exists: true, Role: " Front_Office "}},
		{name: "null role", raw: nil, wantRec: rolestore.Record{Exists: true}},
		{name: "number", raw: 42, wantRec: rolestore.Record{Exists: true, Role: float64(42)}},
		{name: "object", raw: map[string]interface{}{"name": "admin"}, wantRec: rolestore.Record{Exists: true, Role: map[string]interface{}{"name": "admin"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, s.SetRole(ctx, "u1", tt.raw))
			rec, err := s.GetRoleRecord(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantRec, rec)
		})
	}

	t.Run("absent", func(t *testing.T) {
		require.NoError(t, s.DeleteRole(ctx, "u1"))
		rec, err := s.GetRoleRecord(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, rolestore.Record{}, rec)
	})
}

func TestRoleStore_persisted(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.SetRole(ctx, "u1", "principal"))
	require.NoError(t, s.Close())

	s = openStore(t, dir)
	rec, err := s.GetRoleRecord(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, rolestore.Record{Exists: true, Role: "principal"}, rec)
}

func TestRoleStore_closed(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetRoleRecord(context.Background(), "u1")
	assert.Equal(t, rolestore.KindUnavailable, rolestore.KindOf(err))
	assert.False(t, rolestore.IsStorageBlocked(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want rolestore.Kind
	}{
		{name: "permission", err: &fs.PathError{Op: "open", Path: "/data/roles", Err: fs.ErrPermission}, want: rolestore.KindAccess},
		{name: "disk full", err: errors.Wrap(syscall.ENOSPC, "writing value log"), want: rolestore.KindQuota},
		{name: "read only fs", err: &fs.PathError{Op: "open", Path: "/data/roles", Err: syscall.EROFS}, want: rolestore.KindStorage},
		{name: "other", err: errors.New("corrupted manifest"), want: rolestore.KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rolestore.KindOf(classify("get", tt.err)))
		})
	}

	assert.Nil(t, classify("get", nil))
	assert.Equal(t, context.DeadlineExceeded, classify("get", context.DeadlineExceeded))
}
