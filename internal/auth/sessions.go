package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/hostel-gate/internal/clock"
)

// DefaultSessionIdleTimeout is the admin idle timeout, one scanner shift.
const DefaultSessionIdleTimeout = 8 * time.Hour

// SessionRegistry tracks admin sessions for idle-timeout enforcement.
//
// A device holds at most one session: opening a new one replaces the old.
// Sessions live in memory only and are lost on restart, after which the
// admin must log in again.
type SessionRegistry struct {
	mu       sync.Mutex
	byID     map[string]*Session
	byDevice map[string]string
	idle     time.Duration
	clock    clock.Clock
}

// NewSessionRegistry creates a registry. A non-positive idle timeout uses the
// default and a nil clock uses the wall clock.
func NewSessionRegistry(idle time.Duration, clk clock.Clock) *SessionRegistry {
	if idle <= 0 {
		idle = DefaultSessionIdleTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &SessionRegistry{
		byID:     make(map[string]*Session),
		byDevice: make(map[string]string),
		idle:     idle,
		clock:    clk,
	}
}

// IdleTimeout returns the configured idle timeout.
func (r *SessionRegistry) IdleTimeout() time.Duration {
	return r.idle
}

// Open starts a session for the device, replacing any session it already had.
func (r *SessionRegistry) Open(deviceID string, role Role, ip string) Session {
	now := r.clock.Now()
	s := &Session{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		Role:         role,
		LoginTime:    now,
		LastActivity: now,
		IPAddress:    ip,
	}

	r.mu.Lock()
	if prev, ok := r.byDevice[deviceID]; ok {
		delete(r.byID, prev)
	}
	r.byID[s.ID] = s
	r.byDevice[deviceID] = s.ID
	r.mu.Unlock()

	return *s
}

// Touch checks the idle timeout and refreshes last activity in one critical
// section. An expired session is removed and ErrSessionExpired returned; an
// unknown or replaced session returns ErrSessionNotFound.
func (r *SessionRegistry) Touch(sessionID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrSessionNotFound
	}

	now := r.clock.Now()
	if now.Sub(s.LastActivity) > r.idle {
		r.removeLocked(s)
		return *s, ErrSessionExpired
	}

	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
	return *s, nil
}

// Get returns a copy of the session without refreshing it.
func (r *SessionRegistry) Get(sessionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Close removes the session. Returns false if it did not exist.
func (r *SessionRegistry) Close(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[sessionID]
	if !ok {
		return false
	}
	r.removeLocked(s)
	return true
}

// Sweep removes every idle-expired session and returns how many were removed.
func (r *SessionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := 0
	for _, s := range r.byID {
		if now.Sub(s.LastActivity) > r.idle {
			r.removeLocked(s)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *SessionRegistry) removeLocked(s *Session) {
	delete(r.byID, s.ID)
	if r.byDevice[s.DeviceID] == s.ID {
		delete(r.byDevice, s.DeviceID)
	}
}
