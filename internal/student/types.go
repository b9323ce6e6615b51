package student

import (
	"strings"
	"time"
)

// MovementStatus is the state of a movement record.
type MovementStatus string

// Movement record states.
const (
	StatusOutside MovementStatus = "outside"
	StatusInside  MovementStatus = "inside"
)

// Student is a resident of one hostel.
type Student struct {
	RollNo    string    `json:"roll_no"`
	Name      string    `json:"name"`
	Hostel    string    `json:"hostel"`
	RoomNo    string    `json:"room_no,omitempty"`
	Course    string    `json:"course,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BelongsTo reports whether the student lives in hostel (case-insensitive).
func (s *Student) BelongsTo(hostel string) bool {
	return strings.EqualFold(s.Hostel, hostel)
}

// MovementRecord is one check-out, closed by the matching check-in.
type MovementRecord struct {
	ID               string         `json:"id"`
	RollNo           string         `json:"roll_no"`
	OutTime          time.Time      `json:"out_time"`
	InTime           *time.Time     `json:"in_time"`
	Status           MovementStatus `json:"status"`
	RecordedBy       string         `json:"recorded_by"`
	CheckedInBy      string         `json:"checked_in_by,omitempty"`
	TimeSpentMinutes *float64       `json:"time_spent_minutes,omitempty"`
	OfflineSync      bool           `json:"offline_sync"`
	CreatedAt        time.Time      `json:"created_at"`
}

// IsOpen reports whether the student is still outside on this record.
func (m *MovementRecord) IsOpen() bool {
	return m.InTime == nil
}

// DisciplinaryRecord is a warning attached to a student. Automatic records
// reference the movement record that caused them.
type DisciplinaryRecord struct {
	ID                  string    `json:"id"`
	RollNo              string    `json:"roll_no"`
	MovementID          string    `json:"movement_id,omitempty"`
	RecordedAt          time.Time `json:"date"`
	Description         string    `json:"description"`
	ActionTaken         string    `json:"action_taken"`
	RecordedBy          string    `json:"recorded_by"`
	TimeExceededMinutes float64   `json:"time_exceeded_minutes"`
	AutoGenerated       bool      `json:"auto_generated"`
	OfflineSync         bool      `json:"offline_sync"`
}

// CanteenVisit is one canteen scan.
type CanteenVisit struct {
	ID             string    `json:"id"`
	RollNo         string    `json:"roll_no"`
	StudentHostel  string    `json:"student_hostel"`
	CanteenHostel  string    `json:"canteen_hostel"`
	RecordedBy     string    `json:"recorded_by"`
	VisitedAt      time.Time `json:"timestamp"`
	IsUnauthorized bool      `json:"is_unauthorized"`
	OfflineSync    bool      `json:"offline_sync"`
}

// VerificationScan is an identity check performed by an admin or supervisor.
type VerificationScan struct {
	ID         string    `json:"id"`
	RollNo     string    `json:"roll_no"`
	RecordedBy string    `json:"recorded_by"`
	ScannedAt  time.Time `json:"timestamp"`
}

// CheckInPatch closes an open movement record. A non-nil Disciplinary is
// written in the same transaction as the close.
type CheckInPatch struct {
	InTime           time.Time
	CheckedInBy      string
	TimeSpentMinutes float64
	OfflineSync      bool
	Disciplinary     *DisciplinaryRecord
}

// VisitFilter selects canteen visits.
type VisitFilter struct {
	RollNo           string    // optional
	UnauthorizedOnly bool      // only visits outside the student's hostel
	Since            time.Time // optional lower bound on visited_at
	Limit            int       // default 100, max 1000
}

// LateArrival totals one student's automatic disciplinary records.
type LateArrival struct {
	RollNo               string    `json:"roll_no"`
	Name                 string    `json:"name"`
	Hostel               string    `json:"hostel"`
	LateCount            int       `json:"late_count"`
	TotalExceededMinutes float64   `json:"total_time_exceeded_minutes"`
	LastOccurrence       time.Time `json:"last_occurrence"`
}

// UnauthorizedVisitCount counts cross-hostel visits for one pair of
// student and canteen hostels.
type UnauthorizedVisitCount struct {
	StudentHostel string    `json:"student_hostel"`
	CanteenHostel string    `json:"canteen_hostel"`
	VisitCount    int       `json:"visit_count"`
	LatestVisit   time.Time `json:"latest_visit"`
}
