package auth

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

func TestSessionRegistry_OpenAndTouch(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(8*time.Hour, clk)

	s := reg.Open("admin-tab", RoleAdmin, "10.0.0.9")
	if s.ID == "" {
		t.Fatal("Open() returned empty session id")
	}
	if !s.LoginTime.Equal(testEpoch) || !s.LastActivity.Equal(testEpoch) {
		t.Errorf("times = (%v, %v), want both %v", s.LoginTime, s.LastActivity, testEpoch)
	}

	clk.Advance(2 * time.Hour)
	got, err := reg.Touch(s.ID)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !got.LastActivity.Equal(testEpoch.Add(2 * time.Hour)) {
		t.Errorf("LastActivity = %v, want %v", got.LastActivity, testEpoch.Add(2*time.Hour))
	}
}

func TestSessionRegistry_IdleExpiry(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(8*time.Hour, clk)
	s := reg.Open("admin-tab", RoleAdmin, "")

	clk.Advance(8*time.Hour + time.Second)

	if _, err := reg.Touch(s.ID); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("Touch() error = %v, want ErrSessionExpired", err)
	}
	if _, err := reg.Touch(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Touch() error = %v, want ErrSessionNotFound (session removed)", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d, want 0", reg.Len())
	}
}

func TestSessionRegistry_ExactlyAtTimeoutIsLive(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(time.Hour, clk)
	s := reg.Open("admin-tab", RoleAdmin, "")

	clk.Advance(time.Hour)
	if _, err := reg.Touch(s.ID); err != nil {
		t.Errorf("Touch() at exactly the timeout error = %v, want nil", err)
	}
}

func TestSessionRegistry_LastActivityNeverDecreases(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(time.Hour, clk)
	s := reg.Open("admin-tab", RoleAdmin, "")

	clk.Advance(30 * time.Minute)
	if _, err := reg.Touch(s.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	clk.Set(testEpoch.Add(10 * time.Minute))
	got, err := reg.Touch(s.ID)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !got.LastActivity.Equal(testEpoch.Add(30 * time.Minute)) {
		t.Errorf("LastActivity = %v, went backwards", got.LastActivity)
	}
}

func TestSessionRegistry_OpenReplacesDeviceSession(t *testing.T) {
	reg := NewSessionRegistry(time.Hour, clock.NewFake(testEpoch))

	first := reg.Open("admin-tab", RoleAdmin, "")
	second := reg.Open("admin-tab", RoleAdmin, "")

	if _, err := reg.Touch(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Touch(first) error = %v, want ErrSessionNotFound", err)
	}
	if _, err := reg.Touch(second.ID); err != nil {
		t.Errorf("Touch(second) error = %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestSessionRegistry_Close(t *testing.T) {
	reg := NewSessionRegistry(time.Hour, clock.NewFake(testEpoch))
	s := reg.Open("admin-tab", RoleAdmin, "")

	if !reg.Close(s.ID) {
		t.Error("Close() = false, want true")
	}
	if reg.Close(s.ID) {
		t.Error("second Close() = true, want false")
	}
	if _, ok := reg.Get(s.ID); ok {
		t.Error("Get() found a closed session")
	}
}

func TestSessionRegistry_Sweep(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(time.Hour, clk)

	reg.Open("a", RoleAdmin, "")
	clk.Advance(45 * time.Minute)
	live := reg.Open("b", RoleAdmin, "")
	clk.Advance(30 * time.Minute)

	if n := reg.Sweep(); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, ok := reg.Get(live.ID); !ok {
		t.Error("Sweep removed a live session")
	}
}

func TestSessionRegistry_ConcurrentTouch(t *testing.T) {
	clk := clock.NewFake(testEpoch)
	reg := NewSessionRegistry(time.Hour, clk)
	s := reg.Open("admin-tab", RoleAdmin, "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clk.Advance(time.Second)
			if _, err := reg.Touch(s.ID); err != nil {
				t.Errorf("Touch() error = %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := reg.Get(s.ID)
	if got.LastActivity.Before(testEpoch) || got.LastActivity.After(testEpoch.Add(20*time.Second)) {
		t.Errorf("LastActivity = %v out of range", got.LastActivity)
	}
}
