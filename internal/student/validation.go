package student

import (
	"fmt"
	"regexp"
	"strings"
)

// Validation constants.
const (
	maxRollNoLength = 32
	maxNameLength   = 100
	maxFieldLength  = 64
)

var (
	rollNoRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9/_-]*$`)
	hostelRegex = regexp.MustCompile(`^[A-Za-z]$`)
)

// ValidateStudent checks a student before it is persisted.
func ValidateStudent(s *Student) error {
	if s == nil {
		return ErrInvalidStudent
	}
	s.RollNo = strings.TrimSpace(s.RollNo)
	if err := ValidateRollNo(s.RollNo); err != nil {
		return err
	}
	if !hostelRegex.MatchString(s.Hostel) {
		return fmt.Errorf("%w: hostel must be a single letter", ErrInvalidStudent)
	}
	if len(s.Name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidStudent, maxNameLength)
	}
	for field, v := range map[string]string{"room_no": s.RoomNo, "course": s.Course, "branch": s.Branch} {
		if len(v) > maxFieldLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidStudent, field, maxFieldLength)
		}
	}
	return nil
}

// ValidateRollNo checks a roll number as read from a student card.
func ValidateRollNo(rollNo string) error {
	if rollNo == "" {
		return fmt.Errorf("%w: roll_no is required", ErrInvalidStudent)
	}
	if len(rollNo) > maxRollNoLength {
		return fmt.Errorf("%w: roll_no exceeds %d characters", ErrInvalidStudent, maxRollNoLength)
	}
	if !rollNoRegex.MatchString(rollNo) {
		return fmt.Errorf("%w: roll_no contains invalid characters", ErrInvalidStudent)
	}
	return nil
}
