// Package canteen records canteen scans and flags visits by students from
// another hostel.
package canteen

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/apperr"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// EventChannel is the realtime channel canteen visits are broadcast on.
const EventChannel = "canteen.visit"

const measurement = "canteen_visit"

var (
	// ErrNoCanteenHostel is returned when the actor's role carries no hostel,
	// so there is no canteen to compare the student against.
	ErrNoCanteenHostel = apperr.New(apperr.Invalid, "canteen_hostel_required", "role has no canteen hostel")

	// ErrInvalidTimestamp is returned for a zero visit time.
	ErrInvalidTimestamp = apperr.New(apperr.Invalid, "invalid_timestamp", "invalid event timestamp")
)

// Store is the subset of the student store the monitor needs.
type Store interface {
	FindStudent(ctx context.Context, rollNo string) (*student.Student, error)
	AppendCanteenVisit(ctx context.Context, v *student.CanteenVisit) error
}

// Telemetry receives one point per visit, stamped with the visit time.
type Telemetry interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the monitor.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Deps holds the collaborators of a Monitor. Store and Alerts are required.
type Deps struct {
	Store     Store
	Alerts    alert.Sink
	Location  *time.Location // for the alert's local time; default UTC
	Telemetry Telemetry
	Events    Broadcaster
	Logger    Logger
}

// Result describes a recorded visit.
type Result struct {
	Visit   *student.CanteenVisit `json:"visit"`
	Student *student.Student      `json:"-"`
	Alerted bool                  `json:"alerted"`
}

// Monitor records canteen visits.
type Monitor struct {
	store     Store
	alerts    alert.Sink
	loc       *time.Location
	telemetry Telemetry
	events    Broadcaster
	logger    Logger
}

// NewMonitor creates a canteen visit monitor.
func NewMonitor(deps Deps) *Monitor {
	m := &Monitor{
		store:     deps.Store,
		alerts:    deps.Alerts,
		loc:       deps.Location,
		telemetry: deps.Telemetry,
		events:    deps.Events,
		logger:    deps.Logger,
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// RecordVisit appends a visit for the student at the actor's canteen. When
// the student belongs to another hostel the visit is marked unauthorized and
// one unauthorized_visit alert is published before returning. An alert
// delivery failure is logged; the visit still counts as recorded.
//
// Visits are facts: submitting the same scan twice records two visits.
func (m *Monitor) RecordVisit(ctx context.Context, actor auth.Identity, rollNo string, at time.Time, offline bool) (*Result, error) {
	if at.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	canteenHostel := actor.Hostel()
	if canteenHostel == "" {
		return nil, ErrNoCanteenHostel
	}
	if err := student.ValidateRollNo(rollNo); err != nil {
		return nil, err
	}

	s, err := m.store.FindStudent(ctx, rollNo)
	if err != nil {
		return nil, err
	}

	visit := &student.CanteenVisit{
		RollNo:         s.RollNo,
		StudentHostel:  s.Hostel,
		CanteenHostel:  canteenHostel,
		RecordedBy:     string(actor.Role),
		VisitedAt:      at,
		IsUnauthorized: !s.BelongsTo(canteenHostel),
		OfflineSync:    offline,
	}
	if err := m.store.AppendCanteenVisit(ctx, visit); err != nil {
		return nil, fmt.Errorf("appending canteen visit: %w", err)
	}

	res := &Result{Visit: visit, Student: s}
	if visit.IsUnauthorized {
		m.logger.Warn("unauthorized canteen visit",
			"roll_no", s.RollNo,
			"student_hostel", s.Hostel,
			"canteen_hostel", canteenHostel,
			"by", actor.String(),
		)
		res.Alerted = true
		if err := m.alerts.Publish(ctx, m.buildAlert(s, visit)); err != nil {
			m.logger.Warn("unauthorized visit alert not fully delivered", "roll_no", s.RollNo, "error", err)
		}
	}

	m.emit(res)
	return res, nil
}

func (m *Monitor) buildAlert(s *student.Student, v *student.CanteenVisit) alert.Alert {
	return alert.Alert{
		Type:     alert.TypeUnauthorizedVisit,
		Message:  "Unauthorized canteen visit detected",
		Priority: alert.PriorityHigh,
		Details: map[string]any{
			"student":        s.Name,
			"roll_no":        s.RollNo,
			"student_hostel": v.StudentHostel,
			"canteen_hostel": v.CanteenHostel,
			"time":           v.VisitedAt.In(m.loc).Format("15:04"),
			"offline_sync":   v.OfflineSync,
		},
	}
}

func (m *Monitor) emit(res *Result) {
	v := res.Visit
	if m.telemetry != nil {
		m.telemetry.WritePointWithTime(measurement, map[string]string{
			"canteen_hostel": v.CanteenHostel,
			"student_hostel": v.StudentHostel,
			"unauthorized":   strconv.FormatBool(v.IsUnauthorized),
			"offline_sync":   strconv.FormatBool(v.OfflineSync),
		}, map[string]any{"roll_no": v.RollNo}, v.VisitedAt)
	}
	if m.events != nil {
		m.events.Broadcast(EventChannel, map[string]any{
			"roll_no":         v.RollNo,
			"student_name":    res.Student.Name,
			"student_hostel":  v.StudentHostel,
			"canteen_hostel":  v.CanteenHostel,
			"time":            v.VisitedAt,
			"is_unauthorized": v.IsUnauthorized,
			"offline_sync":    v.OfflineSync,
		})
	}
}
