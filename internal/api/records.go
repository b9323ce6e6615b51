package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// handleGetStudent returns a student with movement and disciplinary history.
// Hostel-scoped roles only see their own hostel's students.
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, _ := identityFrom(ctx)
	rollNo := chi.URLParam(r, "roll_no")

	st, err := s.students.FindStudent(ctx, rollNo)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !id.CanAccessHostel(st.Hostel) {
		s.writeAppError(w, r, movement.ErrAccessDenied)
		return
	}

	movements, err := s.students.ListMovementRecords(ctx, st.RollNo)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	disciplinary, err := s.students.ListDisciplinaryRecords(ctx, st.RollNo)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	status := student.StatusInside
	if n := len(movements); n > 0 && movements[n-1].IsOpen() {
		status = student.StatusOutside
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"student":              st,
		"status":               status,
		"movement_records":     movements,
		"disciplinary_records": disciplinary,
	})
}

// handleRecentAlerts returns alerts from the last seven days, newest first.
//
// Query parameters:
//   - limit: max results (default 50, max 500)
func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"alerts": []alert.Alert{}, "count": 0})
		return
	}

	limit := alert.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	since := s.clock.Now().Add(-alert.DefaultRecentWindow)
	alerts, err := s.alerts.Recent(r.Context(), since, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

// handleListCanteenVisits lists canteen visits, newest first.
//
// Query parameters:
//   - roll_no: only this student
//   - unauthorized: "true" for cross-hostel visits only
//   - since: RFC 3339 lower bound
//   - limit: max results (default 100, max 1000)
func (s *Server) handleListCanteenVisits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := student.VisitFilter{
		RollNo:           q.Get("roll_no"),
		UnauthorizedOnly: q.Get("unauthorized") == "true",
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
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	visits, err := s.students.ListCanteenVisits(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	// Hostel-scoped readers only see visits involving their hostel.
	id, _ := identityFrom(r.Context())
	if hostel := id.Hostel(); hostel != "" {
		scoped := visits[:0]
		for _, v := range visits {
			if v.StudentHostel == hostel || v.CanteenHostel == hostel {
				scoped = append(scoped, v)
			}
		}
		visits = scoped
	}

	writeJSON(w, http.StatusOK, map[string]any{"visits": visits, "count": len(visits)})
}

// handleUpsertStudent registers a student or updates their details.
func (s *Server) handleUpsertStudent(w http.ResponseWriter, r *http.Request) {
	var st student.Student
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.students.UpsertStudent(r.Context(), &st); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleCleanupRecords runs the movement retention job on demand.
func (s *Server) handleCleanupRecords(w http.ResponseWriter, r *http.Request) {
	cutoff := s.clock.Now().Add(-s.retention)
	deleted, err := s.students.PruneMovementRecords(r.Context(), cutoff)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	s.logger.Info("movement records cleaned up",
		"by", id.String(),
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"deleted", deleted,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Old records cleaned up",
		"deleted": deleted,
		"cutoff":  cutoff.UTC(),
	})
}
