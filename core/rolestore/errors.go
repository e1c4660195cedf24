package rolestore

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies store failures. Storage, Quota and Access are problems with the client's
// storage environment and leave the session usable once fixed.
type Kind int

const (
	KindInternal Kind = iota
	KindStorage
	KindQuota
	KindAccess
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindInternal:    "internal",
	KindStorage:     "storage",
	KindQuota:       "quota",
	KindAccess:      "access",
	KindUnavailable: "unavailable",
}

func (k Kind) String() string { return kindNames[k] }

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rolestore %s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("rolestore %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsStorageBlocked reports whether err comes from a blocked or full storage environment.
func IsStorageBlocked(err error) bool {
	switch KindOf(err) {
	case KindStorage, KindQuota, KindAccess:
		return true
	}
	return false
}
