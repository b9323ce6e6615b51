package auth

import (
	"sync"
	"time"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// Default lockout policy.
const (
	DefaultMaxAttempts     = 5
	DefaultAttemptWindow   = 15 * time.Minute
	DefaultLockoutDuration = 15 * time.Minute
	DefaultAttemptRetain   = time.Hour
)

// AttemptKey identifies a failure sequence.
//
// Subrole is set for subrole logins and empty for admin login and device
// verification. The lockout itself ignores Subrole: see Scope.
type AttemptKey struct {
	Client   string
	DeviceID string
	Subrole  Role
}

// Scope returns the lockout scope "client|device". Five failures on any
// subrole lock the device for every role from that client.
func (k AttemptKey) Scope() string {
	return k.Client + "|" + k.DeviceID
}

// AttemptPolicy configures the tracker. Zero fields take the defaults.
type AttemptPolicy struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	Retain      time.Duration
}

func (p AttemptPolicy) withDefaults() AttemptPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Window <= 0 {
		p.Window = DefaultAttemptWindow
	}
	if p.Lockout <= 0 {
		p.Lockout = DefaultLockoutDuration
	}
	if p.Retain <= 0 {
		p.Retain = DefaultAttemptRetain
	}
	return p
}

// AttemptTracker counts failed authentication attempts in a sliding window
// and imposes fixed-length lockouts.
//
// All state sits behind one mutex, so the threshold check and the lockout
// write happen in the same critical section. Nothing is persisted: a
// restart forgets every failure and lockout.
type AttemptTracker struct {
	mu       sync.Mutex
	failures map[AttemptKey][]time.Time
	lockouts map[string]time.Time
	policy   AttemptPolicy
	clock    clock.Clock
}

// NewAttemptTracker creates a tracker. A nil clock uses the wall clock.
func NewAttemptTracker(policy AttemptPolicy, clk clock.Clock) *AttemptTracker {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AttemptTracker{
		failures: make(map[AttemptKey][]time.Time),
		lockouts: make(map[string]time.Time),
		policy:   policy.withDefaults(),
		clock:    clk,
	}
}

// Policy returns the effective policy.
func (t *AttemptTracker) Policy() AttemptPolicy {
	return t.policy
}

// RecordFailure appends a failure for key. It reports whether the scope is
// now locked and for how long.
//
// An existing lockout is never extended or shortened by further failures.
func (t *AttemptTracker) RecordFailure(key AttemptKey) (locked bool, remaining time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	cutoff := now.Add(-t.policy.Window)

	filtered := make([]time.Time, 0, len(t.failures[key])+1)
	for _, ts := range t.failures[key] {
		if ts.After(cutoff) {
			filtered = append(filtered, ts)
		}
	}
	filtered = append(filtered, now)
	t.failures[key] = filtered

	scope := key.Scope()
	if until, ok := t.lockouts[scope]; ok && until.After(now) {
		return true, until.Sub(now)
	}

	if len(filtered) >= t.policy.MaxAttempts {
		t.lockouts[scope] = now.Add(t.policy.Lockout)
		return true, t.policy.Lockout
	}

	return false, 0
}

// IsLocked reports whether scope is locked and the time left.
// Expired entries are left for Sweep.
func (t *AttemptTracker) IsLocked(scope string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	until, ok := t.lockouts[scope]
	if !ok {
		return 0, false
	}
	now := t.clock.Now()
	if !until.After(now) {
		return 0, false
	}
	return until.Sub(now), true
}

// Clear forgets the failure sequence for key. Lockouts are untouched.
func (t *AttemptTracker) Clear(key AttemptKey) {
	t.mu.Lock()
	delete(t.failures, key)
	t.mu.Unlock()
}

// Failures returns the number of failures for key within the current window.
func (t *AttemptTracker) Failures(key AttemptKey) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.clock.Now().Add(-t.policy.Window)
	n := 0
	for _, ts := range t.failures[key] {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// Sweep removes failure sequences whose newest entry is older than the
// retain period and lockouts that have expired. Returns the number of
// entries removed.
func (t *AttemptTracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	cutoff := now.Add(-t.policy.Retain)
	removed := 0

	for key, seq := range t.failures {
		if len(seq) == 0 || !seq[len(seq)-1].After(cutoff) {
			delete(t.failures, key)
			removed++
		}
	}

	for scope, until := range t.lockouts {
		if !until.After(now) {
			delete(t.lockouts, scope)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked failure sequences and lockouts.
func (t *AttemptTracker) Len() (sequences, lockouts int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures), len(t.lockouts)
}
