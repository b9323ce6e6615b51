package offline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/canteen"
	"github.com/nerrad567/hostel-gate/internal/clock"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/student"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var (
	securityA = auth.Identity{DeviceID: "gate-01", Role: "security_a"}
	securityB = auth.Identity{DeviceID: "gate-02", Role: "security_b"}
	canteenB  = auth.Identity{DeviceID: "canteen-02", Role: "canteen_b"}
)

type alertCounter struct{ n int }

func (c *alertCounter) Publish(context.Context, alert.Alert) error {
	c.n++
	return nil
}

type fixture struct {
	repo       *student.SQLRepository
	machine    *movement.Machine
	reconciler *Reconciler
	alerts     *alertCounter
	clock      *clock.Fake
}

func newFixture(t *testing.T, dedup Deduper) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := student.NewSQLRepository(dbtest.Open(t))
	for _, s := range []student.Student{
		{RollNo: "R100", Name: "Asha Verma", Hostel: "A"},
		{RollNo: "R101", Name: "Kiran Rao", Hostel: "A"},
	} {
		require.NoError(t, repo.UpsertStudent(ctx, &s))
	}

	f := &fixture{
		repo:    repo,
		machine: movement.NewMachine(movement.Deps{Store: repo}),
		alerts:  &alertCounter{},
		clock:   clock.NewFake(t0.Add(24 * time.Hour)),
	}
	mon := canteen.NewMonitor(canteen.Deps{Store: repo, Alerts: f.alerts})
	f.reconciler = NewReconciler(Deps{
		Movement: f.machine,
		Canteen:  mon,
		Dedup:    dedup,
		Clock:    f.clock,
	})
	return f
}

func ms(t time.Time) int64 { return t.UnixMilli() }

func TestReplay_PartialFailurePreservesOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	// R100 already went out and came back; its checkout is closed.
	_, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false)
	require.NoError(t, err)
	_, err = f.machine.CheckIn(ctx, securityA, "R100", t0.Add(time.Hour), false)
	require.NoError(t, err)

	events := []Event{
		{Kind: KindSecurity, RollNo: "R101", Action: "out", OriginalTimestamp: ms(t0.Add(2 * time.Hour))},
		{Kind: KindSecurity, RollNo: "R100", Action: "in", OriginalTimestamp: ms(t0.Add(3 * time.Hour))},
		{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0.Add(4 * time.Hour))},
	}

	results := f.reconciler.Replay(ctx, securityA, events)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, events[i].RollNo, r.RollNo)
	}
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Equal(t, "no_active_checkout", results[1].Code)
	assert.NotEmpty(t, results[1].Error)
	assert.True(t, results[2].Success)

	ok, failed := Summary(results)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	open, err := f.repo.FindOpenMovementRecord(ctx, "R100")
	require.NoError(t, err)
	assert.True(t, open.OfflineSync)
	assert.True(t, open.OutTime.Equal(t0.Add(4*time.Hour)), "out time = %v", open.OutTime)
}

func TestReplay_HistoricalOvertimeRaisesDisciplinary(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	results := f.reconciler.Replay(ctx, securityA, []Event{
		{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
		{Kind: KindSecurity, RollNo: "R100", Action: "in", OriginalTimestamp: ms(t0.Add(500 * time.Minute))},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, results[1].Disciplinary)

	recs, err := f.repo.ListDisciplinaryRecords(ctx, "R100")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 20.0, recs[0].TimeExceededMinutes, 0.001)
	assert.True(t, recs[0].OfflineSync)
}

func TestReplay_ZeroTimestampUsesClock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	results := f.reconciler.Replay(ctx, securityA, []Event{
		{Kind: KindSecurity, RollNo: "R100", Action: "out"},
	})
	require.True(t, results[0].Success, results[0].Error)
	assert.True(t, results[0].Time.Equal(f.clock.Now()))

	open, err := f.repo.FindOpenMovementRecord(ctx, "R100")
	require.NoError(t, err)
	assert.True(t, open.OutTime.Equal(f.clock.Now()))
}

func TestReplay_CanteenEvents(t *testing.T) {
	f := newFixture(t, nil)

	results := f.reconciler.Replay(context.Background(), canteenB, []Event{
		{Kind: KindCanteen, RollNo: "R100", OriginalTimestamp: ms(t0)},
		{Kind: KindCanteen, RollNo: "R404", OriginalTimestamp: ms(t0)},
	})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.True(t, results[0].Unauthorized)
	assert.Equal(t, 1, f.alerts.n)

	assert.False(t, results[1].Success)
	assert.Equal(t, "student_not_found", results[1].Code)
}

func TestReplay_PermissionsAndScope(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		actor auth.Identity
		event Event
		code  string
	}{
		{
			name:  "canteen role cannot replay movement",
			actor: canteenB,
			event: Event{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
			code:  "forbidden",
		},
		{
			name:  "security role cannot replay canteen",
			actor: securityA,
			event: Event{Kind: KindCanteen, RollNo: "R100", OriginalTimestamp: ms(t0)},
			code:  "forbidden",
		},
		{
			name:  "verified device has no sync permission",
			actor: auth.Identity{DeviceID: "gate-01", Role: "device_verified"},
			event: Event{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
			code:  "forbidden",
		},
		{
			name:  "other hostel",
			actor: securityB,
			event: Event{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
			code:  "access_denied",
		},
		{
			name:  "unknown kind",
			actor: securityA,
			event: Event{Kind: "laundry", RollNo: "R100", OriginalTimestamp: ms(t0)},
			code:  "unknown_kind",
		},
		{
			name:  "bad action",
			actor: securityA,
			event: Event{Kind: KindSecurity, RollNo: "R100", Action: "sideways", OriginalTimestamp: ms(t0)},
			code:  "invalid_action",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := f.reconciler.Replay(ctx, tt.actor, []Event{tt.event})
			require.Len(t, results, 1)
			assert.False(t, results[0].Success)
			assert.Equal(t, tt.code, results[0].Code)
		})
	}

	_, err := f.repo.FindOpenMovementRecord(ctx, "R100")
	assert.ErrorIs(t, err, student.ErrNoOpenRecord)
}

func TestReplay_DedupByEventID(t *testing.T) {
	dedup := NewMemoryDeduper(time.Hour, nil)
	f := newFixture(t, dedup)
	ctx := context.Background()

	out := Event{EventID: "ev-1", Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)}

	first := f.reconciler.Replay(ctx, securityA, []Event{out})
	require.True(t, first[0].Success)
	assert.False(t, first[0].Duplicate)

	// Re-upload of the same queue after a lost acknowledgement.
	again := f.reconciler.Replay(ctx, securityA, []Event{out})
	assert.True(t, again[0].Success)
	assert.True(t, again[0].Duplicate)

	// The same id from another device is a different event.
	other := f.reconciler.Replay(ctx, auth.Identity{DeviceID: "gate-03", Role: "security_a"}, []Event{out})
	assert.False(t, other[0].Success)
	assert.Equal(t, "already_outside", other[0].Code)

	records, err := f.repo.ListMovementRecords(ctx, "R100")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestReplay_FailedEventReleasesClaim(t *testing.T) {
	dedup := NewMemoryDeduper(time.Hour, nil)
	f := newFixture(t, dedup)
	ctx := context.Background()

	in := Event{EventID: "ev-2", Kind: KindSecurity, RollNo: "R100", Action: "in", OriginalTimestamp: ms(t0.Add(time.Hour))}

	res := f.reconciler.Replay(ctx, securityA, []Event{in})
	require.False(t, res[0].Success)
	assert.Equal(t, 0, dedup.Len())

	_, err := f.machine.CheckOut(ctx, securityA, "R100", t0, false)
	require.NoError(t, err)

	res = f.reconciler.Replay(ctx, securityA, []Event{in})
	assert.True(t, res[0].Success, res[0].Error)
	assert.False(t, res[0].Duplicate)
}

type brokenDeduper struct{}

func (brokenDeduper) Claim(context.Context, string) (ClaimState, error) {
	return ClaimWon, errors.New("redis unavailable")
}

func (brokenDeduper) Confirm(context.Context, string) error { return nil }
func (brokenDeduper) Release(context.Context, string) error { return nil }

func TestReplay_DedupFailureAppliesEvent(t *testing.T) {
	f := newFixture(t, brokenDeduper{})

	res := f.reconciler.Replay(context.Background(), securityA, []Event{
		{EventID: "ev-3", Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
	})
	assert.True(t, res[0].Success, res[0].Error)
	assert.False(t, res[0].Duplicate)
}

func TestReplay_CancelledContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.reconciler.Replay(ctx, securityA, []Event{
		{Kind: KindSecurity, RollNo: "R100", Action: "out", OriginalTimestamp: ms(t0)},
	})
	require.Len(t, res, 1)
	assert.False(t, res[0].Success)
}

// gatedMovement parks the first Apply until proceed is closed and then
// fails it; later calls succeed.
type gatedMovement struct {
	entered chan struct{}
	proceed chan struct{}
	calls   atomic.Int32
}

func (g *gatedMovement) Apply(_ context.Context, _ auth.Identity, action movement.Action, _ string, _ time.Time, _ bool) (*movement.Result, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.proceed
		return nil, movement.ErrNoActiveCheckout
	}
	return &movement.Result{Action: action}, nil
}

func TestReplay_DuplicateWhileFirstInFlight(t *testing.T) {
	gate := &gatedMovement{entered: make(chan struct{}), proceed: make(chan struct{})}
	dedup := NewMemoryDeduper(time.Hour, nil)
	r := NewReconciler(Deps{Movement: gate, Dedup: dedup})
	ctx := context.Background()
	in := []Event{{EventID: "e1", Kind: KindSecurity, RollNo: "R100", Action: "in", OriginalTimestamp: ms(t0)}}

	firstDone := make(chan []Result, 1)
	go func() { firstDone <- r.Replay(ctx, securityA, in) }()
	<-gate.entered

	retry := r.Replay(ctx, securityA, in)
	require.Len(t, retry, 1)
	assert.False(t, retry[0].Success, "retry must not succeed while the first copy is unresolved")
	assert.False(t, retry[0].Duplicate)
	assert.Equal(t, "duplicate_in_flight", retry[0].Code)
	assert.Equal(t, int32(1), gate.calls.Load())

	close(gate.proceed)
	first := <-firstDone
	assert.False(t, first[0].Success)
	assert.Equal(t, "no_active_checkout", first[0].Code)

	// The failed copy released its claim, so the event is not lost.
	again := r.Replay(ctx, securityA, in)
	assert.True(t, again[0].Success, again[0].Error)
	assert.False(t, again[0].Duplicate)
	assert.Equal(t, int32(2), gate.calls.Load())

	done := r.Replay(ctx, securityA, in)
	assert.True(t, done[0].Success)
	assert.True(t, done[0].Duplicate)
	assert.Equal(t, int32(2), gate.calls.Load())
}
