package movement

import "github.com/nerrad567/hostel-gate/internal/apperr"

// Transition errors.
var (
	// ErrAccessDenied is returned when the actor's hostel differs from the student's.
	ErrAccessDenied = apperr.New(apperr.Unauthorized, "access_denied", "access denied to this student")

	// ErrAlreadyOutside is returned by CheckOut when an open record exists.
	ErrAlreadyOutside = apperr.New(apperr.InvalidState, "already_outside", "student is already checked out")

	// ErrNoActiveCheckout is returned by CheckIn when no open record exists.
	ErrNoActiveCheckout = apperr.New(apperr.InvalidState, "no_active_checkout", "no active check out record found")

	// ErrInvalidTimestamp is returned for a zero event time or a check-in
	// earlier than its check-out.
	ErrInvalidTimestamp = apperr.New(apperr.Invalid, "invalid_timestamp", "invalid event timestamp")

	// ErrInvalidAction is returned for an action other than "in" or "out".
	ErrInvalidAction = apperr.New(apperr.Invalid, "invalid_action", "action must be in or out")
)
