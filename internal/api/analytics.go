package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/hostel-gate/internal/auth"
)

const defaultAnalyticsDays = 30

// analyticsHostel resolves the hostel filter. Admin may narrow with
// ?hostel=; everyone else is pinned to their own hostel.
func analyticsHostel(id auth.Identity, r *http.Request) (string, error) {
	requested := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("hostel")))
	if id.IsAdmin() {
		return requested, nil
	}
	own := id.Hostel()
	if own == "" || (requested != "" && requested != own) {
		return "", auth.ErrForbidden
	}
	return own, nil
}

func hostelLabel(hostel string) string {
	if hostel == "" {
		return "ALL"
	}
	return hostel
}

// handleLateArrivals totals automatic disciplinary records per student.
//
// Query parameters:
//   - hostel: admin only, limit to one hostel
func (s *Server) handleLateArrivals(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	hostel, err := analyticsHostel(id, r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	rows, err := s.students.LateArrivals(r.Context(), hostel)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	occurrences := 0
	for _, la := range rows {
		occurrences += la.LateCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"late_arrivals": rows,
		"summary": map[string]any{
			"total_students_with_late_arrivals": len(rows),
			"total_late_occurrences":            occurrences,
			"filtered_by_hostel":                hostelLabel(hostel),
		},
	})
}

// handleUnauthorizedVisits counts cross-hostel canteen visits per pair of
// student and canteen hostel.
//
// Query parameters:
//   - days: look-back period (default 30)
//   - hostel: admin only, limit to pairs involving one hostel
func (s *Server) handleUnauthorizedVisits(w http.ResponseWriter, r *http.Request) {
	days := defaultAnalyticsDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "days must be a positive integer")
			return
		}
		days = n
	}

	id, _ := identityFrom(r.Context())
	hostel, err := analyticsHostel(id, r)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	since := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	counts, err := s.students.UnauthorizedVisitCounts(r.Context(), hostel, since)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	total := 0
	for _, c := range counts {
		total += c.VisitCount
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"visits_by_hostel": counts,
		"summary": map[string]any{
			"total_unauthorized_visits": total,
			"analysis_period_days":      days,
			"filtered_by_hostel":        hostelLabel(hostel),
		},
	})
}
