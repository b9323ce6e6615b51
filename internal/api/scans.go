package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// securityScanRequest is the body of POST /scans/security.
type securityScanRequest struct {
	RollNo            string `json:"roll_no"`
	Action            string `json:"action"`
	OfflineSync       bool   `json:"offline_sync"`
	OriginalTimestamp int64  `json:"original_timestamp"` // ms since epoch; 0 = now
}

// canteenScanRequest is the body of POST /scans/canteen.
type canteenScanRequest struct {
	RollNo            string `json:"roll_no"`
	OfflineSync       bool   `json:"offline_sync"`
	OriginalTimestamp int64  `json:"original_timestamp"`
}

// verifyScanRequest is the body of POST /scans/verify.
type verifyScanRequest struct {
	RollNo string `json:"roll_no"`
}

// studentSummary is the student block returned with every scan.
type studentSummary struct {
	RollNo string `json:"roll_no"`
	Name   string `json:"name"`
	Hostel string `json:"hostel"`
	RoomNo string `json:"room_no,omitempty"`
}

func summarize(s *student.Student) studentSummary {
	return studentSummary{RollNo: s.RollNo, Name: s.Name, Hostel: s.Hostel, RoomNo: s.RoomNo}
}

// scanTime converts a client timestamp, falling back to the server clock.
func (s *Server) scanTime(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return s.clock.Now().UTC()
}

// handleSecurityScan records a check-out or check-in at the hostel gate.
func (s *Server) handleSecurityScan(w http.ResponseWriter, r *http.Request) {
	var req securityScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RollNo == "" {
		writeBadRequest(w, "roll_no is required")
		return
	}
	action, err := movement.ParseAction(req.Action)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	res, err := s.movement.Apply(r.Context(), id, action, req.RollNo, s.scanTime(req.OriginalTimestamp), req.OfflineSync)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	message := "Student checked out successfully"
	if action == movement.ActionIn {
		message = "Student checked in successfully"
	}
	resp := map[string]any{
		"message": message,
		"student": summarize(res.Student),
		"action":  res.Action,
		"record":  res.Record,
	}
	if action == movement.ActionIn {
		resp["time_spent_minutes"] = res.TimeSpentMinutes
		resp["time_exceeded"] = res.Exceeded()
		if res.Exceeded() {
			resp["time_exceeded_minutes"] = res.TimeExceededMinutes
			resp["disciplinary"] = res.Disciplinary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCanteenScan records a canteen visit for the caller's hostel.
func (s *Server) handleCanteenScan(w http.ResponseWriter, r *http.Request) {
	var req canteenScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RollNo == "" {
		writeBadRequest(w, "roll_no is required")
		return
	}

	id, _ := identityFrom(r.Context())
	res, err := s.canteen.RecordVisit(r.Context(), id, req.RollNo, s.scanTime(req.OriginalTimestamp), req.OfflineSync)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	message := "Canteen visit recorded"
	if res.Visit.IsUnauthorized {
		message = "Unauthorized canteen visit recorded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":         message,
		"student":         summarize(res.Student),
		"visit":           res.Visit,
		"is_unauthorized": res.Visit.IsUnauthorized,
	})
}

// handleVerifyScan looks a student up for an identity check and records
// that the check happened.
func (s *Server) handleVerifyScan(w http.ResponseWriter, r *http.Request) {
	var req verifyScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := student.ValidateRollNo(req.RollNo); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	ctx := r.Context()
	id, _ := identityFrom(ctx)

	st, err := s.students.FindStudent(ctx, req.RollNo)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if !id.CanAccessHostel(st.Hostel) {
		s.writeAppError(w, r, movement.ErrAccessDenied)
		return
	}

	status := student.StatusInside
	var outSince *time.Time
	open, err := s.students.FindOpenMovementRecord(ctx, st.RollNo)
	switch {
	case err == nil:
		status = student.StatusOutside
		outSince = &open.OutTime
	case !errors.Is(err, student.ErrNoOpenRecord):
		s.writeAppError(w, r, err)
		return
	}

	scan := &student.VerificationScan{
		RollNo:     st.RollNo,
		RecordedBy: string(id.Role),
		ScannedAt:  s.clock.Now().UTC(),
	}
	if err := s.students.AppendVerificationScan(ctx, scan); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"student":    st,
		"status":     status,
		"out_since":  outSince,
		"scan_id":    scan.ID,
		"scanned_by": id.String(),
	})
}
