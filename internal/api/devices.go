package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hostel-gate/internal/device"
)

// registerDeviceRequest is the body of POST /admin/devices.
type registerDeviceRequest struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

// updateDeviceRequest is the body of PATCH /admin/devices/{id}.
type updateDeviceRequest struct {
	Status device.Status `json:"status"`
}

// handleListDevices returns every registered scanner.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleRegisterDevice registers a new scanner. It starts active.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d := &device.Device{
		ID:         req.DeviceID,
		Name:       req.DeviceName,
		DeviceType: req.DeviceType,
	}
	if err := s.devices.RegisterDevice(r.Context(), d); err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	s.logger.Info("device registered via API", "device_id", d.ID, "by", id.String())
	writeJSON(w, http.StatusCreated, d)
}

// handleUpdateDeviceStatus activates or revokes a scanner.
func (s *Server) handleUpdateDeviceStatus(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := s.devices.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}

	id, _ := identityFrom(r.Context())
	s.logger.Info("device status updated via API", "device_id", d.ID, "status", string(d.Status), "by", id.String())
	writeJSON(w, http.StatusOK, d)
}
