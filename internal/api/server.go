package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/hostel-gate/internal/alert"
	"github.com/nerrad567/hostel-gate/internal/audit"
	"github.com/nerrad567/hostel-gate/internal/auth"
	"github.com/nerrad567/hostel-gate/internal/canteen"
	"github.com/nerrad567/hostel-gate/internal/clock"
	"github.com/nerrad567/hostel-gate/internal/device"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/config"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/database"
	"github.com/nerrad567/hostel-gate/internal/infrastructure/logging"
	"github.com/nerrad567/hostel-gate/internal/movement"
	"github.com/nerrad567/hostel-gate/internal/offline"
	"github.com/nerrad567/hostel-gate/internal/student"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// AlertReader lists recently raised alerts.
type AlertReader interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]alert.Alert, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Clock       clock.Clock
	Auth        *auth.Authenticator
	Devices     *device.Registry
	Students    student.Repository
	Movement    *movement.Machine
	Canteen     *canteen.Monitor
	Reconciler  *offline.Reconciler
	Alerts      AlertReader
	Audit       audit.Repository
	DB          *database.DB  // optional: health and pool metrics
	Retention   time.Duration // movement history kept by cleanup-records
	ExternalHub *Hub          // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for Hostel Gate.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	clock      clock.Clock
	auth       *auth.Authenticator
	devices    *device.Registry
	students   student.Repository
	movement   *movement.Machine
	canteen    *canteen.Monitor
	reconciler *offline.Reconciler
	alerts     AlertReader
	auditRepo  audit.Repository
	db         *database.DB
	retention  time.Duration
	version    string
	startTime  time.Time
	tickets    *ticketStore
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if deps.Students == nil || deps.Movement == nil || deps.Canteen == nil {
		return nil, fmt.Errorf("student store, movement machine and canteen monitor are required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("offline reconciler is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		clock:      clk,
		auth:       deps.Auth,
		devices:    deps.Devices,
		students:   deps.Students,
		movement:   deps.Movement,
		canteen:    deps.Canteen,
		reconciler: deps.Reconciler,
		alerts:     deps.Alerts,
		auditRepo:  deps.Audit,
		db:         deps.DB,
		retention:  deps.Retention,
		version:    deps.Version,
		startTime:  clk.Now(),
		tickets:    newTicketStore(clk),
		hub:        deps.ExternalHub,
	}
	if s.retention <= 0 {
		s.retention = 30 * 24 * time.Hour
	}
	return s, nil
}

// Hub returns the WebSocket hub, creating it if Start has not run yet.
// Realtime sinks are wired to it before the server starts.
func (s *Server) Hub() *Hub {
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and ticket cleanup, builds the router, and
// launches the HTTP listener in a background goroutine. The server can be
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Create internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.Hub().Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, ticket cleanup)
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
