// Package apperr defines the error taxonomy shared by the access-control core.
//
// Domain packages declare their sentinel errors as *Error values so that the
// HTTP boundary can map any failure to a status code with a single Kind switch:
//
//	var ErrAlreadyOutside = apperr.New(apperr.InvalidState, "already_outside", "student is already checked out")
//
//	if apperr.KindOf(err) == apperr.Locked { ... }
package apperr

import "errors"

// Kind classifies a failure by how the caller should react to it.
type Kind int

const (
	// Internal is any failure not otherwise classified (store errors, bugs).
	Internal Kind = iota

	// Locked means the caller is rate limited. Heals by waiting.
	Locked

	// Unauthorized covers bad credentials, role mismatch and hostel scope.
	Unauthorized

	// NotFound means an unknown device or student.
	NotFound

	// InvalidState means the requested transition is not legal now.
	InvalidState

	// Expired means the session idled out. Heals by logging in again.
	Expired

	// Invalid means the request itself is malformed.
	Invalid

	// Conflict means a uniqueness constraint rejected the write or another
	// request holds the same resource.
	Conflict
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case Locked:
		return "locked"
	case Unauthorized:
		return "unauthorized"
	case NotFound:
		return "not_found"
	case InvalidState:
		return "invalid_state"
	case Expired:
		return "expired"
	case Invalid:
		return "invalid"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

// New creates a classified error. Intended for package-level sentinels.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf returns the Code of the first *Error in err's chain, or "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
