package api

import (
	"encoding/json"
	"net/http"

	"github.com/nerrad567/hostel-gate/internal/offline"
)

// maxSyncBatch caps the number of events accepted in one upload.
const maxSyncBatch = 500

// syncSecurityRequest is the body of POST /sync/security-scans.
type syncSecurityRequest struct {
	Scans []offline.SecurityScan `json:"scans"`
}

// syncCanteenRequest is the body of POST /sync/canteen-visits.
type syncCanteenRequest struct {
	Visits []offline.CanteenScan `json:"visits"`
}

// handleSyncSecurityScans replays a scanner's queued gate scans.
func (s *Server) handleSyncSecurityScans(w http.ResponseWriter, r *http.Request) {
	var req syncSecurityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.replay(w, r, offline.Payload{Scans: req.Scans}.Flatten())
}

// handleSyncCanteenVisits replays a scanner's queued canteen scans.
func (s *Server) handleSyncCanteenVisits(w http.ResponseWriter, r *http.Request) {
	var req syncCanteenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	s.replay(w, r, offline.Payload{Visits: req.Visits}.Flatten())
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, events []offline.Event) {
	if len(events) == 0 {
		writeBadRequest(w, "no events to sync")
		return
	}
	if len(events) > maxSyncBatch {
		writeBadRequest(w, "too many events in one batch")
		return
	}

	id, _ := identityFrom(r.Context())
	results := s.reconciler.Replay(r.Context(), id, events)
	succeeded, failed := offline.Summary(results)

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Sync completed",
		"succeeded": succeeded,
		"failed":    failed,
		"results":   results,
	})
}
