package housekeeping

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/clock"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/student"
)

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func TestScheduler_RunOnceSurvivesFailures(t *testing.T) {
	s := NewScheduler(0, nil)
	assert.Equal(t, DefaultInterval, s.Interval())

	var ran []string
	s.Add(Job{Name: "first", Run: func(context.Context) error {
		ran = append(ran, "first")
		return errors.New("db locked")
	}})
	s.Add(Job{Name: "second", Run: func(context.Context) error {
		ran = append(ran, "second")
		panic("boom")
	}})
	s.Add(Job{Name: "third", Run: func(context.Context) error {
		ran = append(ran, "third")
		return nil
	}})

	failed := s.RunOnce(context.Background())
	assert.Equal(t, 2, failed)
	assert.Equal(t, []string{"first", "second", "third"}, ran)
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler(10*time.Millisecond, nil)
	var runs atomic.Int32
	s.Add(Job{Name: "count", Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
	s.Stop()
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s := NewScheduler(time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancel")
	}
}

func TestSweepJob_ExpiresSessions(t *testing.T) {
	clk := clock.NewFake(t0)
	reg := auth.NewSessionRegistry(time.Hour, clk)
	reg.Open("admin-tab", auth.RoleAdmin, "10.0.0.5")

	s := NewScheduler(time.Hour, nil)
	s.Add(SweepJob(JobSessionSweep, reg, nil))

	s.RunOnce(context.Background())
	assert.Equal(t, 1, reg.Len())

	clk.Advance(2 * time.Hour)
	s.RunOnce(context.Background())
	assert.Equal(t, 0, reg.Len())
}

func TestRetentionJob_PrunesClosedHistory(t *testing.T) {
	ctx := context.Background()
	repo := student.NewSQLRepository(dbtest.Open(t))
	require.NoError(t, repo.UpsertStudent(ctx, &student.Student{RollNo: "R100", Name: "Asha Verma", Hostel: "A"}))
	require.NoError(t, repo.UpsertStudent(ctx, &student.Student{RollNo: "R101", Name: "Kiran Rao", Hostel: "A"}))

	m := movement.NewMachine(movement.Deps{Store: repo})
	guard := auth.Identity{DeviceID: "gate-01", Role: "security_a"}
	old := t0.Add(-40 * 24 * time.Hour)

	_, err := m.CheckOut(ctx, guard, "R100", old, false)
	require.NoError(t, err)
	_, err = m.CheckIn(ctx, guard, "R100", old.Add(time.Hour), false)
	require.NoError(t, err)
	_, err = m.CheckOut(ctx, guard, "R101", old, false)
	require.NoError(t, err)
	_, err = m.CheckOut(ctx, guard, "R100", t0.Add(-time.Hour), false)
	require.NoError(t, err)

	job := RetentionJob(repo, 30*24*time.Hour, clock.NewFake(t0), nil)
	assert.Equal(t, JobMovementRetention, job.Name)
	require.NoError(t, job.Run(ctx))

	r100, err := repo.ListMovementRecords(ctx, "R100")
	require.NoError(t, err)
	assert.Len(t, r100, 1, "old closed record pruned, recent one kept")

	r101, err := repo.ListMovementRecords(ctx, "R101")
	require.NoError(t, err)
	assert.Len(t, r101, 1, "open record kept regardless of age")
}

type failingPruner struct{}

func (failingPruner) PruneMovementRecords(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRetentionJob_Error(t *testing.T) {
	job := RetentionJob(failingPruner{}, time.Hour, nil, nil)
	assert.ErrorContains(t, job.Run(context.Background()), "disk full")
}
