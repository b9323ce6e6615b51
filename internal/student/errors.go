package student

import "github.com/nerrad567/hostel-gate/internal/apperr"

// Domain errors for the student package.
var (
	// ErrStudentNotFound is returned when a roll number does not exist.
	ErrStudentNotFound = apperr.New(apperr.NotFound, "student_not_found", "student: not found")

	// ErrInvalidStudent is returned when student validation fails.
	ErrInvalidStudent = apperr.New(apperr.Invalid, "invalid_student", "student: invalid")

	// ErrOpenRecordExists is returned when appending a second open movement
	// record for the same student.
	ErrOpenRecordExists = apperr.New(apperr.Conflict, "open_record_exists", "student: an open movement record already exists")

	// ErrDisciplinaryExists is returned when a movement record already has
	// its automatic disciplinary record.
	ErrDisciplinaryExists = apperr.New(apperr.Conflict, "disciplinary_exists", "student: movement already has a disciplinary record")

	// ErrNoOpenRecord is returned when no open movement record matches.
	ErrNoOpenRecord = apperr.New(apperr.InvalidState, "no_open_record", "student: no open movement record")
)
