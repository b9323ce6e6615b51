package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/hostel-gate/internal/audit"
)

// defaultSecurityLogWindow is how far back security logs are listed when
// no since parameter is given.
const defaultSecurityLogWindow = 7 * 24 * time.Hour

// handleListSecurityLogs returns security audit events, newest first.
//
// Query parameters:
//   - since: RFC 3339 lower bound (default: 7 days ago)
//   - event_type: filter by event type (login_success, auth_failed, ...)
//   - device_id: filter by device
//   - limit: max results (default 100, max 500)
//   - offset: pagination offset
func (s *Server) handleListSecurityLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeInternalError(w, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		EventType: q.Get("event_type"),
		DeviceID:  q.Get("device_id"),
		Since:     s.clock.Now().Add(-defaultSecurityLogWindow),
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list security logs", "error", err)
		writeInternalError(w, "failed to list security logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
