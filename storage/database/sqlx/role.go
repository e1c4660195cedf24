package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/rolestore"
)

// Postgres error codes the role store classifies.
const (
	pqDiskFull              = "53100"
	pqInsufficientPrivilege = "42501"
	pqClassResources        = "53"
	pqClassSystem           = "58"
	pqClassConnection       = "08"
	pqClassAdminShutdown    = "57"
)

type roleRow struct {
	UserID string      `db:"user_id"`
	Role   null.String `db:"role"`
}

// RoleStore reads and writes the user_roles table. A NULL role is a record without a role.
type RoleStore struct {
	db core.DBExecutor
}

var (
	_ rolestore.Store  = (*RoleStore)(nil)
	_ rolestore.Writer = (*RoleStore)(nil)
)

func NewRoleStore(db core.DBExecutor) *RoleStore {
	return &RoleStore{db: db}
}

func (s *RoleStore) GetRoleRecord(ctx context.Context, principalID string) (rolestore.Record, error) {
	var row roleRow
	err := s.db.GetContext(ctx, &row, `SELECT user_id, role FROM user_roles WHERE user_id = $1`, principalID)
	if err == sql.ErrNoRows {
		return rolestore.Record{}, nil
	}
	if err != nil {
		return rolestore.Record{}, classify("get", err)
	}

	rec := rolestore.Record{Exists: true}
	if row.Role.Valid {
		rec.Role = row.Role.String
	}
	return rec, nil
}

// SetRole stores raw as text; strings are kept verbatim, other values as their JSON form.
func (s *RoleStore) SetRole(ctx context.Context, principalID string, raw interface{}) error {
	role, err := roleText(raw)
	if err != nil {
		return err
	}
	const q = `INSERT INTO user_roles (user_id, role, updated_at) VALUES (:user_id, :role, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`

	_, err = s.db.NamedExecContext(ctx, q, map[string]interface{}{
		"user_id":    principalID,
		"role":       role,
		"updated_at": time.Now().UTC(),
	})
	return classify("set", err)
}

func (s *RoleStore) DeleteRole(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, principalID)
	return classify("delete", err)
}

func roleText(raw interface{}) (null.String, error) {
	switch v := raw.(type) {
	case nil:
		return null.String{}, nil
	case string:
		return null.StringFrom(v), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return null.String{}, errors.Wrap(err, "encoding role")
	}
	return null.StringFrom(string(b)), nil
}

// classify maps driver failures to store error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		kind := rolestore.KindInternal
		switch {
		case pqErr.Code == pqDiskFull:
			kind = rolestore.KindQuota
		case pqErr.Code == pqInsufficientPrivilege:
			kind = rolestore.KindAccess
		case pqErr.Code.Class() == pqClassSystem:
			kind = rolestore.KindStorage
		case pqErr.Code.Class() == pqClassResources,
			pqErr.Code.Class() == pqClassConnection,
			pqErr.Code.Class() == pqClassAdminShutdown:
			// memory and connection slot exhaustion clear up on their own
			kind = rolestore.KindUnavailable
		}
		return rolestore.NewError(kind, op, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		if netErr != nil && netErr.Timeout() {
			return err
		}
		return rolestore.NewError(rolestore.KindUnavailable, op, err)
	}
	return rolestore.NewError(rolestore.KindInternal, op, err)
}
