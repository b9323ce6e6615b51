package movement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/apperr"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/hostel-gate/internal/student"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var (
	securityA = auth.Identity{DeviceID: "scanner-01", Role: "security_a"}
	securityB = auth.Identity{DeviceID: "scanner-02", Role: "security_b"}
	superA    = auth.Identity{DeviceID: "scanner-03", Role: "super_a"}
	admin     = auth.Identity{DeviceID: "admin-tab", Role: auth.RoleAdmin}
)

type point struct {
	measurement string
	tags        map[string]string
	fields      map[string]any
	ts          time.Time
}

type fakeTelemetry struct {
	mu     sync.Mutex
	points []point
}

func (f *fakeTelemetry) WritePointWithTime(m string, tags map[string]string, fields map[string]any, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, point{m, tags, fields, ts})
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []Event
}

func (f *fakeBroadcaster) Broadcast(channel string, payload any) {
	if channel != EventChannel {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, payload.(Event))
}

type fixture struct {
	repo      *student.SQLRepository
	machine   *Machine
	telemetry *fakeTelemetry
	events    *fakeBroadcaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := student.NewSQLRepository(dbtest.Open(t))
	for _, s := range []*student.Student{
		{RollNo: "R100", Name: "Asha Verma", Hostel: "A"},
		{RollNo: "R200", Name: "Kabir Rao", Hostel: "B"},
	} {
		if err := repo.UpsertStudent(context.Background(), s); err != nil {
			t.Fatalf("UpsertStudent() error = %v", err)
		}
	}
	f := &fixture{repo: repo, telemetry: &fakeTelemetry{}, events: &fakeBroadcaster{}}
	f.machine = NewMachine(Deps{Store: repo, Telemetry: f.telemetry, Events: f.events})
	return f
}

func TestMachine_OvertimeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, superA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	res, err := f.machine.CheckIn(ctx, superA, "R100", t0.Add(500*time.Minute), false)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if res.TimeSpentMinutes != 500.0 {
		t.Errorf("TimeSpentMinutes = %v, want 500.0", res.TimeSpentMinutes)
	}
	if !res.Exceeded() || res.TimeExceededMinutes != 20.0 {
		t.Errorf("TimeExceededMinutes = %v (exceeded %v), want 20.0", res.TimeExceededMinutes, res.Exceeded())
	}

	records, err := f.repo.ListDisciplinaryRecords(ctx, "R100")
	if err != nil {
		t.Fatalf("ListDisciplinaryRecords() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("disciplinary records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.TimeExceededMinutes != 20.0 || !rec.AutoGenerated || rec.RecordedBy != "super_a" {
		t.Errorf("disciplinary record = %+v", rec)
	}
	wantDesc := "Exceeded allowed time outside by 20.00 minutes. Out at: 2026-03-01 08:00, In at: 2026-03-01 16:20"
	if rec.Description != wantDesc {
		t.Errorf("Description = %q, want %q", rec.Description, wantDesc)
	}
	if rec.ActionTaken != DisciplinaryAction {
		t.Errorf("ActionTaken = %q, want %q", rec.ActionTaken, DisciplinaryAction)
	}
	if rec.MovementID != res.Record.ID {
		t.Errorf("MovementID = %q, want %q", rec.MovementID, res.Record.ID)
	}
}

func TestMachine_CheckOutTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	_, err := f.machine.CheckOut(ctx, securityA, "R100", t0.Add(time.Minute), false)
	if !errors.Is(err, ErrAlreadyOutside) {
		t.Fatalf("second CheckOut() error = %v, want ErrAlreadyOutside", err)
	}
	if apperr.KindOf(err) != apperr.InvalidState {
		t.Errorf("KindOf() = %v, want InvalidState", apperr.KindOf(err))
	}
}

func TestMachine_CheckOutThenIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	res, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(90*time.Minute), false)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if res.Exceeded() {
		t.Error("90 minutes should not raise a disciplinary record")
	}
	if res.Record.Status != student.StatusInside || res.Record.IsOpen() {
		t.Errorf("record = %+v, want closed", res.Record)
	}

	if _, err := f.repo.FindOpenMovementRecord(ctx, "R100"); !errors.Is(err, student.ErrNoOpenRecord) {
		t.Errorf("open records remain: %v", err)
	}
	records, _ := f.repo.ListDisciplinaryRecords(ctx, "R100")
	if len(records) != 0 {
		t.Errorf("disciplinary records = %d, want 0", len(records))
	}
}

func TestMachine_CheckInWithoutCheckOut(t *testing.T) {
	f := newFixture(t)

	_, err := f.machine.CheckIn(context.Background(), securityA, "R100", t0, false)
	if !errors.Is(err, ErrNoActiveCheckout) {
		t.Fatalf("CheckIn() error = %v, want ErrNoActiveCheckout", err)
	}
	if apperr.KindOf(err) != apperr.InvalidState {
		t.Errorf("KindOf() = %v, want InvalidState", apperr.KindOf(err))
	}
}

func TestMachine_CapBoundary(t *testing.T) {
	tests := []struct {
		name         string
		stay         time.Duration
		wantExceeded float64
		wantRecord   bool
	}{
		{"exactly at cap", 480 * time.Minute, 0, false},
		{"one second over", 480*time.Minute + time.Second, 0.02, true},
		{"fractional", 500*time.Minute + 20400*time.Millisecond, 20.34, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
				t.Fatalf("CheckOut() error = %v", err)
			}
			res, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(tt.stay), false)
			if err != nil {
				t.Fatalf("CheckIn() error = %v", err)
			}
			if res.Exceeded() != tt.wantRecord {
				t.Errorf("Exceeded() = %v, want %v", res.Exceeded(), tt.wantRecord)
			}
			if res.TimeExceededMinutes != tt.wantExceeded {
				t.Errorf("TimeExceededMinutes = %v, want %v", res.TimeExceededMinutes, tt.wantExceeded)
			}
		})
	}
}

func TestMachine_HostelScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.machine.CheckOut(ctx, securityB, "R100", t0, false)
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("CheckOut() by security_b error = %v, want ErrAccessDenied", err)
	}
	if apperr.KindOf(err) != apperr.Unauthorized {
		t.Errorf("KindOf() = %v, want Unauthorized", apperr.KindOf(err))
	}

	// Scope is checked before state: security_b gets access_denied on check-in
	// too, not no_active_checkout.
	if _, err := f.machine.CheckIn(ctx, securityB, "R100", t0, false); !errors.Is(err, ErrAccessDenied) {
		t.Errorf("CheckIn() by security_b error = %v, want ErrAccessDenied", err)
	}

	if _, err := f.machine.CheckOut(ctx, admin, "R100", t0, false); err != nil {
		t.Errorf("admin CheckOut() error = %v, want nil", err)
	}
	if _, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(time.Hour), false); err != nil {
		t.Errorf("security_a CheckIn() after admin CheckOut() error = %v", err)
	}
}

func TestMachine_InvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, securityA, "R999", t0, false); !errors.Is(err, student.ErrStudentNotFound) {
		t.Errorf("unknown student error = %v, want ErrStudentNotFound", err)
	}
	if _, err := f.machine.CheckOut(ctx, securityA, "", t0, false); !errors.Is(err, student.ErrInvalidStudent) {
		t.Errorf("empty roll error = %v, want ErrInvalidStudent", err)
	}
	if _, err := f.machine.CheckOut(ctx, securityA, "R100", time.Time{}, false); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("zero time error = %v, want ErrInvalidTimestamp", err)
	}

	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	if _, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(-time.Minute), false); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("check-in before check-out error = %v, want ErrInvalidTimestamp", err)
	}
	if _, err := f.machine.Apply(ctx, securityA, "sideways", "R100", t0, false); !errors.Is(err, ErrInvalidAction) {
		t.Errorf("Apply(sideways) error = %v, want ErrInvalidAction", err)
	}
}

func TestMachine_OfflineTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Replayed days later with historical times: same outcome as live.
	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, true); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	res, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(500*time.Minute), true)
	if err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}
	if !res.Record.OfflineSync || !res.Disciplinary.OfflineSync {
		t.Errorf("offline flag not carried: record %v, disciplinary %v", res.Record.OfflineSync, res.Disciplinary.OfflineSync)
	}
	if !res.Record.OutTime.Equal(t0) {
		t.Errorf("OutTime = %v, want %v", res.Record.OutTime, t0)
	}
}

func TestMachine_TelemetryAndEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}
	if _, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(30*time.Minute), false); err != nil {
		t.Fatalf("CheckIn() error = %v", err)
	}

	if len(f.telemetry.points) != 2 {
		t.Fatalf("telemetry points = %d, want 2", len(f.telemetry.points))
	}
	in := f.telemetry.points[1]
	if in.measurement != measurement || in.tags["action"] != "in" || in.tags["hostel"] != "A" {
		t.Errorf("check-in point = %+v", in)
	}
	if !in.ts.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("point time = %v, want event time", in.ts)
	}
	if in.fields["time_spent_minutes"] != 30.0 {
		t.Errorf("time_spent_minutes field = %v, want 30", in.fields["time_spent_minutes"])
	}

	if len(f.events.events) != 2 {
		t.Fatalf("events = %d, want 2", len(f.events.events))
	}
	if ev := f.events.events[0]; ev.Action != ActionOut || ev.RollNo != "R100" || ev.Name != "Asha Verma" {
		t.Errorf("check-out event = %+v", ev)
	}
}

func TestMachine_ConcurrentCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false); err != nil {
		t.Fatalf("CheckOut() error = %v", err)
	}

	const callers = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.machine.CheckIn(ctx, securityA, "R100", t0.Add(time.Duration(500+i)*time.Minute), false)
			if err != nil && !errors.Is(err, ErrNoActiveCheckout) {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("successful check-ins = %d, want 1", success)
	}
	records, _ := f.repo.ListDisciplinaryRecords(ctx, "R100")
	if len(records) != 1 {
		t.Errorf("disciplinary records = %d, want 1", len(records))
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"out", ActionOut, false},
		{" IN ", ActionIn, false},
		{"", "", true},
		{"leave", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAction(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q, err %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
