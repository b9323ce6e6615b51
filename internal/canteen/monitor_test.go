package canteen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/hostel-gate/internal/student"
)

var t0 = time.Date(2026, 3, 1, 13, 5, 0, 0, time.UTC)

var (
	canteenA = auth.Identity{DeviceID: "canteen-01", Role: "canteen_a"}
	canteenB = auth.Identity{DeviceID: "canteen-02", Role: "canteen_b"}
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []alert.Alert
	err    error
}

func (r *alertRecorder) Publish(_ context.Context, a alert.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func newTestMonitor(t *testing.T, sink alert.Sink) (*Monitor, *student.SQLRepository) {
	t.Helper()
	repo := student.NewSQLRepository(dbtest.Open(t))
	if err := repo.UpsertStudent(context.Background(), &student.Student{RollNo: "R100", Name: "Asha Verma", Hostel: "A"}); err != nil {
		t.Fatalf("UpsertStudent() error = %v", err)
	}
	return NewMonitor(Deps{Store: repo, Alerts: sink}), repo
}

func TestMonitor_UnauthorizedVisitRaisesOneAlert(t *testing.T) {
	sink := &alertRecorder{}
	m, repo := newTestMonitor(t, sink)
	ctx := context.Background()

	res, err := m.RecordVisit(ctx, canteenB, "R100", t0, false)
	if err != nil {
		t.Fatalf("RecordVisit() error = %v", err)
	}
	if !res.Visit.IsUnauthorized || !res.Alerted {
		t.Errorf("visit = %+v, alerted = %v; want unauthorized and alerted", res.Visit, res.Alerted)
	}
	if res.Visit.StudentHostel != "A" || res.Visit.CanteenHostel != "B" {
		t.Errorf("hostels = %s/%s, want A/B", res.Visit.StudentHostel, res.Visit.CanteenHostel)
	}

	if len(sink.alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(sink.alerts))
	}
	a := sink.alerts[0]
	if a.Type != alert.TypeUnauthorizedVisit || a.Priority != alert.PriorityHigh {
		t.Errorf("alert = %+v", a)
	}
	if a.Details["student"] != "Asha Verma" || a.Details["canteen_hostel"] != "B" || a.Details["time"] != "13:05" {
		t.Errorf("alert details = %v", a.Details)
	}

	visits, err := repo.ListCanteenVisits(ctx, student.VisitFilter{UnauthorizedOnly: true})
	if err != nil {
		t.Fatalf("ListCanteenVisits() error = %v", err)
	}
	if len(visits) != 1 {
		t.Errorf("stored unauthorized visits = %d, want 1", len(visits))
	}
}

func TestMonitor_OwnHostelNoAlert(t *testing.T) {
	sink := &alertRecorder{}
	m, _ := newTestMonitor(t, sink)

	res, err := m.RecordVisit(context.Background(), canteenA, "R100", t0, false)
	if err != nil {
		t.Fatalf("RecordVisit() error = %v", err)
	}
	if res.Visit.IsUnauthorized || res.Alerted {
		t.Errorf("own-hostel visit flagged: %+v", res.Visit)
	}
	if len(sink.alerts) != 0 {
		t.Errorf("alerts = %d, want 0", len(sink.alerts))
	}
}

func TestMonitor_SinkFailureDoesNotFailVisit(t *testing.T) {
	sink := &alertRecorder{err: errors.New("broker down")}
	m, repo := newTestMonitor(t, sink)
	ctx := context.Background()

	if _, err := m.RecordVisit(ctx, canteenB, "R100", t0, true); err != nil {
		t.Fatalf("RecordVisit() error = %v, want nil despite sink failure", err)
	}
	visits, _ := repo.ListCanteenVisits(ctx, student.VisitFilter{})
	if len(visits) != 1 || !visits[0].OfflineSync {
		t.Errorf("stored visits = %+v", visits)
	}
}

func TestMonitor_Errors(t *testing.T) {
	sink := &alertRecorder{}
	m, _ := newTestMonitor(t, sink)
	ctx := context.Background()

	if _, err := m.RecordVisit(ctx, canteenB, "R999", t0, false); !errors.Is(err, student.ErrStudentNotFound) {
		t.Errorf("unknown student error = %v, want ErrStudentNotFound", err)
	}
	admin := auth.Identity{DeviceID: "admin-tab", Role: auth.RoleAdmin}
	if _, err := m.RecordVisit(ctx, admin, "R100", t0, false); !errors.Is(err, ErrNoCanteenHostel) {
		t.Errorf("admin error = %v, want ErrNoCanteenHostel", err)
	}
	if _, err := m.RecordVisit(ctx, canteenA, "R100", time.Time{}, false); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("zero time error = %v, want ErrInvalidTimestamp", err)
	}
	if len(sink.alerts) != 0 {
		t.Errorf("failed visits raised %d alerts", len(sink.alerts))
	}
}

func TestMonitor_DuplicateScansAreSeparateFacts(t *testing.T) {
	m, repo := newTestMonitor(t, &alertRecorder{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := m.RecordVisit(ctx, canteenA, "R100", t0, false); err != nil {
			t.Fatalf("RecordVisit() error = %v", err)
		}
	}
	visits, _ := repo.ListCanteenVisits(ctx, student.VisitFilter{RollNo: "R100"})
	if len(visits) != 2 {
		t.Errorf("visits = %d, want 2", len(visits))
	}
}
