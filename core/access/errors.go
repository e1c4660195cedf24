package access

import (
	"fmt"

	"github.com/trezcool/college/core"
	"github.com/trezcool/college/core/identity"
	"github.com/trezcool/college/core/role"
	"github.com/trezcool/college/core/rolestore"
)

// Kind is the user-facing failure category of an access decision.
type Kind int

const (
	KindNoRoleAssigned Kind = iota + 1
	KindInvalidRole
	KindStorageBlocked
	KindVerificationFailed
	KindCredentialRejected
)

var kindNames = map[Kind]string{
	KindNoRoleAssigned:     "no_role_assigned",
	KindInvalidRole:        "invalid_role",
	KindStorageBlocked:     "storage_blocked",
	KindVerificationFailed: "verification_failed",
	KindCredentialRejected: "credential_rejected",
}

func (k Kind) String() string { return kindNames[k] }

const (
	msgNoRoleAssigned = "Access denied: no role assigned to this account. Please contact the administrator."
	msgInvalidRole    = "Access denied: invalid role `%v`; valid roles are: %s."
	msgStorageBlocked = "Unable to access browser storage. Exit private browsing mode, " +
		"enable cookies and site data for this site, then reload the page."
	msgGuardVerificationFailed = "Failed to verify your account. Please try again."
	msgLoginVerificationFailed = "Unable to verify your account. Please check your connection and try again."
)

// Error is a terminal, user-visible access failure.
type Error struct {
	Kind    Kind
	Message string
	Raw     interface{}   // offending role value, KindInvalidRole only
	Code    identity.Code // provider code, KindCredentialRejected only
	Err     error         // underlying cause, for logs
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the session was kept and fixing the storage environment is enough to retry.
func (e *Error) Recoverable() bool { return e.Kind == KindStorageBlocked }

func errNoRoleAssigned() *Error {
	return &Error{Kind: KindNoRoleAssigned, Message: msgNoRoleAssigned}
}

func errInvalidRole(raw interface{}) *Error {
	return &Error{Kind: KindInvalidRole, Message: fmt.Sprintf(msgInvalidRole, raw, role.ValidList()), Raw: raw}
}

func errStorageBlocked(err error) *Error {
	return &Error{Kind: KindStorageBlocked, Message: msgStorageBlocked, Err: err}
}

func errVerificationFailed(msg string, err error) *Error {
	return &Error{Kind: KindVerificationFailed, Message: msg, Err: err}
}

func errCredentialRejected(err error) *Error {
	code := identity.ErrorCode(err)
	return &Error{Kind: KindCredentialRejected, Message: CredentialMessage(code), Code: code, Err: err}
}

// classifyFetchError maps a role fetch failure. Expiry always counts as a verification failure.
func classifyFetchError(err error, verificationMsg string) *Error {
	if !core.IsTimeout(err) && rolestore.IsStorageBlocked(err) {
		return errStorageBlocked(err)
	}
	return errVerificationFailed(verificationMsg, err)
}
