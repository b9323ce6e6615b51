package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/clock"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// verifyDeviceRequest is the request body for POST /auth/verify-device.
type verifyDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

// subroleRequest is the request body for POST /auth/subrole.
type subroleRequest struct {
	DeviceID string `json:"device_id"`
	Subrole  string `json:"subrole"`
	UniqueID string `json:"unique_id"`
}

// adminRequest is the request body for POST /auth/admin.
type adminRequest struct {
	DeviceID          string `json:"device_id"`
	UniqueID          string `json:"unique_id"`
	BiometricVerified bool   `json:"biometric_verified"`
}

// loginResponse is returned by every successful login step.
type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in"`
	DeviceID    string    `json:"device_id"`
	Role        auth.Role `json:"role"`
	Hostel      string    `json:"hostel,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
}

func (s *Server) loginResponse(res *auth.LoginResult) loginResponse {
	out := loginResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		ExpiresIn:   int(res.ExpiresAt.Sub(s.clock.Now()).Seconds()),
		DeviceID:    res.Identity.DeviceID,
		Role:        res.Identity.Role,
		Hostel:      res.Identity.Hostel(),
	}
	if res.Session != nil {
		out.SessionID = res.Session.ID
	}
	return out
}

// handleVerifyDevice is the first login step: prove the handset is registered.
func (s *Server) handleVerifyDevice(w http.ResponseWriter, r *http.Request) {
	var req verifyDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		writeBadRequest(w, "device_id is required")
		return
	}

	res, err := s.auth.VerifyDevice(r.Context(), clientAddr(r), req.DeviceID)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.loginResponse(res))
}

// handleSubroleLogin exchanges a subrole credential for an identity token.
func (s *Server) handleSubroleLogin(w http.ResponseWriter, r *http.Request) {
	var req subroleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.Subrole == "" || req.UniqueID == "" {
		writeBadRequest(w, "device_id, subrole and unique_id are required")
		return
	}

	role := auth.Role(strings.ToLower(strings.TrimSpace(req.Subrole)))
	if role.IsAdmin() {
		writeBadRequest(w, "use /auth/admin for admin login")
		return
	}

	res, err := s.auth.Authenticate(r.Context(), auth.LoginRequest{
		ClientAddr: clientAddr(r),
		DeviceID:   req.DeviceID,
		Role:       role,
		Credential: req.UniqueID,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.loginResponse(res))
}

// handleAdminLogin authenticates the admin role and opens a session.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DeviceID == "" || req.UniqueID == "" {
		writeBadRequest(w, "device_id and unique_id are required")
		return
	}

	res, err := s.auth.Authenticate(r.Context(), auth.LoginRequest{
		ClientAddr: clientAddr(r),
		DeviceID:   req.DeviceID,
		Role:       auth.RoleAdmin,
		Credential: req.UniqueID,
		Biometric:  req.BiometricVerified,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.loginResponse(res))
}

// handleVerifyToken echoes the caller's identity.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"device_id":   id.DeviceID,
		"role":        id.Role,
		"hostel":      id.Hostel(),
		"permissions": auth.PermissionsForRole(id.Role),
	})
}

// handleRefresh re-issues the caller's token.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	res, err := s.auth.Refresh(r.Context(), id, sessionIDFrom(r.Context()))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.loginResponse(res))
}

// handleLogout closes the admin session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.auth.Logout(r.Context(), id, sessionIDFrom(r.Context()), clientAddr(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	ticket := s.tickets.issue(id)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	clock   clock.Clock
}

type ticketEntry struct {
	identity  auth.Identity
	expiresAt time.Time
}

func newTicketStore(clk clock.Clock) *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry), clock: clk}
}

// issue creates a ticket bound to the caller's identity.
func (t *ticketStore) issue(id auth.Identity) string {
	ticket := generateTicket()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{identity: id, expiresAt: t.clock.Now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// consume checks if a ticket is valid and removes it (single-use).
func (t *ticketStore) consume(ticket string) (auth.Identity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return auth.Identity{}, false
	}
	delete(t.tickets, ticket)

	if !t.clock.Now().Before(entry.expiresAt) {
		return auth.Identity{}, false
	}
	return entry.identity, true
}

// clean removes expired tickets from the store.
func (t *ticketStore) clean() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	for ticket, entry := range t.tickets {
		if !now.Before(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// cleanLoop runs clean periodically until the context is cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.clean()
		}
	}
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
