// Package movement implements the student check-out/check-in state machine.
//
// Each transition checks hostel scope first, then state, then writes through
// the student store's conditional primitives. A check-in that exceeds the
// outside-time cap appends one automatic disciplinary record in the same
// transaction that closes the movement record.
package movement
