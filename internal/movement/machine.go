package movement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// DefaultMaxOutsideMinutes is the longest a student may stay out before a
// disciplinary record is raised on check-in.
const DefaultMaxOutsideMinutes = 480

// DisciplinaryAction is the action recorded on automatic disciplinary records.
const DisciplinaryAction = "Warning issued for exceeding 8-hour limit"

// EventChannel is the realtime channel movement events are broadcast on.
const EventChannel = "movement.recorded"

// measurement is the telemetry measurement name for movement events.
const measurement = "movement"

// descriptionLayout formats out/in times in disciplinary descriptions.
const descriptionLayout = "2006-01-02 15:04"

// Action is a movement scan direction.
type Action string

// Movement actions.
const (
	ActionOut Action = "out"
	ActionIn  Action = "in"
)

// ParseAction parses "in" or "out" (case-insensitive).
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionOut:
		return ActionOut, nil
	case ActionIn:
		return ActionIn, nil
	default:
		return "", ErrInvalidAction
	}
}

// Store is the subset of the student store the machine needs.
type Store interface {
	FindStudent(ctx context.Context, rollNo string) (*student.Student, error)
	FindOpenMovementRecord(ctx context.Context, rollNo string) (*student.MovementRecord, error)
	AppendMovementRecord(ctx context.Context, rec *student.MovementRecord) error
	UpdateOpenMovementRecord(ctx context.Context, rollNo string, outTime time.Time, patch student.CheckInPatch) (*student.MovementRecord, error)
}

// Telemetry receives one point per transition, stamped with the event time.
type Telemetry interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Logger is the logging interface used by the machine.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Deps holds the collaborators of a Machine. Only Store is required.
type Deps struct {
	Store             Store
	MaxOutsideMinutes float64
	Location          *time.Location // for disciplinary descriptions; default UTC
	Telemetry         Telemetry
	Events            Broadcaster
	Logger            Logger
}

// Result describes a completed transition.
type Result struct {
	Action  Action                 `json:"action"`
	Student *student.Student       `json:"-"`
	Record  *student.MovementRecord `json:"record"`

	// Check-in only.
	TimeSpentMinutes    float64                     `json:"time_spent_minutes,omitempty"`
	TimeExceededMinutes float64                     `json:"time_exceeded_minutes,omitempty"`
	Disciplinary        *student.DisciplinaryRecord `json:"disciplinary,omitempty"`
}

// Exceeded reports whether the check-in raised a disciplinary record.
func (r *Result) Exceeded() bool {
	return r.Disciplinary != nil
}

// Event is the realtime payload broadcast after each transition.
type Event struct {
	RollNo           string    `json:"roll_no"`
	Name             string    `json:"student_name"`
	Hostel           string    `json:"hostel"`
	Action           Action    `json:"action"`
	Time             time.Time `json:"time"`
	RecordedBy       string    `json:"recorded_by"`
	OfflineSync      bool      `json:"offline_sync"`
	TimeSpentMinutes float64   `json:"time_spent_minutes,omitempty"`
	Disciplinary     bool      `json:"disciplinary"`
}

// Machine runs the per-student check-out/check-in lifecycle.
//
// A student is INSIDE when they have no open movement record and OUTSIDE
// while one exists. Transitions take their timestamp from the caller, so a
// live scan and an offline replay of the same event behave identically.
type Machine struct {
	store      Store
	maxOutside float64
	loc        *time.Location
	telemetry  Telemetry
	events     Broadcaster
	logger     Logger
}

// NewMachine creates a movement state machine.
func NewMachine(deps Deps) *Machine {
	m := &Machine{
		store:      deps.Store,
		maxOutside: deps.MaxOutsideMinutes,
		loc:        deps.Location,
		telemetry:  deps.Telemetry,
		events:     deps.Events,
		logger:     deps.Logger,
	}
	if m.maxOutside <= 0 {
		m.maxOutside = DefaultMaxOutsideMinutes
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.logger == nil {
		m.logger = noopLogger{}
	}
	return m
}

// MaxOutsideMinutes returns the configured cap.
func (m *Machine) MaxOutsideMinutes() float64 {
	return m.maxOutside
}

// Apply dispatches to CheckOut or CheckIn.
func (m *Machine) Apply(ctx context.Context, actor auth.Identity, action Action, rollNo string, at time.Time, offline bool) (*Result, error) {
	switch action {
	case ActionOut:
		return m.CheckOut(ctx, actor, rollNo, at, offline)
	case ActionIn:
		return m.CheckIn(ctx, actor, rollNo, at, offline)
	default:
		return nil, ErrInvalidAction
	}
}

// CheckOut opens a movement record for the student at the given time.
func (m *Machine) CheckOut(ctx context.Context, actor auth.Identity, rollNo string, at time.Time, offline bool) (*Result, error) {
	s, err := m.authorize(ctx, actor, rollNo, at)
	if err != nil {
		return nil, err
	}

	open, err := m.store.FindOpenMovementRecord(ctx, s.RollNo)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w (out since %s)", ErrAlreadyOutside, open.OutTime.In(m.loc).Format(time.DateTime))
	case !errors.Is(err, student.ErrNoOpenRecord):
		return nil, fmt.Errorf("finding open record: %w", err)
	}

	rec := &student.MovementRecord{
		RollNo:      s.RollNo,
		OutTime:     at,
		Status:      student.StatusOutside,
		RecordedBy:  string(actor.Role),
		OfflineSync: offline,
	}
	if err := m.store.AppendMovementRecord(ctx, rec); err != nil {
		if errors.Is(err, student.ErrOpenRecordExists) {
			// Lost a race with a concurrent check-out.
			return nil, ErrAlreadyOutside
		}
		return nil, fmt.Errorf("appending movement record: %w", err)
	}

	m.logger.Info("student checked out",
		"roll_no", s.RollNo,
		"hostel", s.Hostel,
		"by", actor.String(),
		"offline_sync", offline,
	)

	res := &Result{Action: ActionOut, Student: s, Record: rec}
	m.emit(res, actor, at, offline)
	return res, nil
}

// CheckIn closes the student's open record. A stay longer than the cap
// appends exactly one automatic disciplinary record, written by whichever
// caller wins the conditional close.
func (m *Machine) CheckIn(ctx context.Context, actor auth.Identity, rollNo string, at time.Time, offline bool) (*Result, error) {
	s, err := m.authorize(ctx, actor, rollNo, at)
	if err != nil {
		return nil, err
	}

	open, err := m.store.FindOpenMovementRecord(ctx, s.RollNo)
	if err != nil {
		if errors.Is(err, student.ErrNoOpenRecord) {
			return nil, ErrNoActiveCheckout
		}
		return nil, fmt.Errorf("finding open record: %w", err)
	}
	if at.Before(open.OutTime) {
		return nil, fmt.Errorf("%w: check-in at %s precedes check-out at %s",
			ErrInvalidTimestamp, at.UTC().Format(time.RFC3339), open.OutTime.UTC().Format(time.RFC3339))
	}

	spent := at.Sub(open.OutTime).Minutes()
	patch := student.CheckInPatch{
		InTime:           at,
		CheckedInBy:      string(actor.Role),
		TimeSpentMinutes: round2(spent),
		OfflineSync:      offline,
	}

	var exceeded float64
	if spent > m.maxOutside {
		exceeded = round2(spent - m.maxOutside)
		desc := fmt.Sprintf("Exceeded allowed time outside by %s minutes. Out at: %s, In at: %s",
			strconv.FormatFloat(exceeded, 'f', 2, 64),
			open.OutTime.In(m.loc).Format(descriptionLayout),
			at.In(m.loc).Format(descriptionLayout))
		patch.Disciplinary = &student.DisciplinaryRecord{
			RecordedAt:          at,
			Description:         desc,
			ActionTaken:         DisciplinaryAction,
			RecordedBy:          string(actor.Role),
			TimeExceededMinutes: exceeded,
			AutoGenerated:       true,
			OfflineSync:         offline,
		}
	}

	closed, err := m.store.UpdateOpenMovementRecord(ctx, s.RollNo, open.OutTime, patch)
	if err != nil {
		if errors.Is(err, student.ErrNoOpenRecord) {
			// Another check-in closed the record first.
			return nil, ErrNoActiveCheckout
		}
		return nil, fmt.Errorf("closing movement record: %w", err)
	}

	m.logger.Info("student checked in",
		"roll_no", s.RollNo,
		"hostel", s.Hostel,
		"by", actor.String(),
		"time_spent_minutes", patch.TimeSpentMinutes,
		"offline_sync", offline,
	)
	if patch.Disciplinary != nil {
		m.logger.Warn("time outside exceeded limit",
			"roll_no", s.RollNo,
			"time_exceeded_minutes", exceeded,
		)
	}

	res := &Result{
		Action:              ActionIn,
		Student:             s,
		Record:              closed,
		TimeSpentMinutes:    patch.TimeSpentMinutes,
		TimeExceededMinutes: exceeded,
		Disciplinary:        patch.Disciplinary,
	}
	m.emit(res, actor, at, offline)
	return res, nil
}

// authorize validates the event and applies the hostel scope check.
func (m *Machine) authorize(ctx context.Context, actor auth.Identity, rollNo string, at time.Time) (*student.Student, error) {
	if at.IsZero() {
		return nil, ErrInvalidTimestamp
	}
	if err := student.ValidateRollNo(rollNo); err != nil {
		return nil, err
	}

	s, err := m.store.FindStudent(ctx, rollNo)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccessHostel(s.Hostel) {
		return nil, ErrAccessDenied
	}
	return s, nil
}

func (m *Machine) emit(res *Result, actor auth.Identity, at time.Time, offline bool) {
	if m.telemetry != nil {
		fields := map[string]any{"roll_no": res.Student.RollNo}
		if res.Action == ActionIn {
			fields["time_spent_minutes"] = res.TimeSpentMinutes
			fields["time_exceeded_minutes"] = res.TimeExceededMinutes
		}
		m.telemetry.WritePointWithTime(measurement, map[string]string{
			"hostel":       res.Student.Hostel,
			"action":       string(res.Action),
			"recorded_by":  string(actor.Role),
			"offline_sync": strconv.FormatBool(offline),
		}, fields, at)
	}

	if m.events != nil {
		m.events.Broadcast(EventChannel, Event{
			RollNo:           res.Student.RollNo,
			Name:             res.Student.Name,
			Hostel:           res.Student.Hostel,
			Action:           res.Action,
			Time:             at,
			RecordedBy:       string(actor.Role),
			OfflineSync:      offline,
			TimeSpentMinutes: res.TimeSpentMinutes,
			Disciplinary:     res.Exceeded(),
		})
	}
}

// round2 rounds to two decimal places for reporting.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
