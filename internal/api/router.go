package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/hostel-gate/internal/auth"
)

// healthCheckTimeout bounds the database ping in GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleRoot)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identityMiddleware)
		r.Use(s.sessionTimeoutMiddleware)

		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Login steps (no auth required)
		r.Post("/auth/verify-device", s.handleVerifyDevice)
		r.Post("/auth/subrole", s.handleSubroleLogin)
		r.Post("/auth/admin", s.handleAdminLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.requireIdentity)

			r.Get("/auth/verify", s.handleVerifyToken)
			r.Post("/auth/refresh", s.handleRefresh)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/scans", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermMovementScan)).Post("/security", s.handleSecurityScan)
				r.With(s.requirePermission(auth.PermCanteenScan)).Post("/canteen", s.handleCanteenScan)
				r.With(s.requirePermission(auth.PermVerifyScan)).Post("/verify", s.handleVerifyScan)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermOfflineSync))
				r.Post("/security-scans", s.handleSyncSecurityScans)
				r.Post("/canteen-visits", s.handleSyncCanteenVisits)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRecordsRead))
				r.Get("/students/{roll_no}", s.handleGetStudent)
				r.Get("/alerts/realtime", s.handleRecentAlerts)
				r.Get("/canteen/visits", s.handleListCanteenVisits)
				r.Get("/analytics/late-arrivals", s.handleLateArrivals)
				r.Get("/analytics/unauthorized-visits", s.handleUnauthorizedVisits)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Route("/devices", func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermDeviceManage))
					r.Get("/", s.handleListDevices)
					r.Post("/", s.handleRegisterDevice)
					r.Patch("/{id}", s.handleUpdateDeviceStatus)
				})
				r.With(s.requirePermission(auth.PermAuditRead)).Get("/security-logs", s.handleListSecurityLogs)
				r.With(s.requirePermission(auth.PermAuditRead)).Get("/metrics", s.handleMetrics)
				r.With(s.requirePermission(auth.PermStudentManage)).Post("/students", s.handleUpsertStudent)
				r.With(s.requirePermission(auth.PermRecordsCleanup)).Post("/cleanup-records", s.handleCleanupRecords)
			})
		})
	})

	return r
}

// handleRoot identifies the service.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "hostel-gate",
		"version": s.version,
	})
}

// handleHealth returns the server health status, including the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"version":   s.version,
		"timestamp": s.clock.Now().UTC().Format(time.RFC3339),
		"database":  "unknown",
	}
	status := http.StatusOK

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			resp["status"] = "degraded"
			resp["database"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp["database"] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
