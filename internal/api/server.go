package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/tydom2mqtt/internal/audit"
	"github.com/nerrad567/tydom2mqtt/internal/bridge"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/tydom2mqtt/internal/metrics"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CoverService is the cover capability behind the API. *bridge.Bridge
// implements it.
type CoverService interface {
	SetPosition(ctx context.Context, name cover.Name, pos cover.Position) error
	CoverPosition(ctx context.Context, name cover.Name) (cover.Position, error)
	AllPositions(ctx context.Context) ([]bridge.CoverPosition, error)
	Status() bridge.Status
}

// AuditReader lists recorded hub mutations. *audit.SQLiteRepository
// implements it.
type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.AuditLog, error)
}

// HealthChecker is implemented by every component that can report its
// own health (hub client, MQTT client, database, InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Covers  CoverService
	Metrics *metrics.Collectors
	// Audit serves /api/audit. Optional; nil when the audit log is disabled.
	Audit   AuditReader
	// Checks are reported by name on /api/health. Optional.
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	covers  CoverService
	metrics *metrics.Collectors
	audit   AuditReader
	checks  map[string]HealthChecker
	version string

	startTime time.Time
	server    *http.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Covers == nil {
		return nil, fmt.Errorf("cover service is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		covers:    deps.Covers,
		metrics:   deps.Metrics,
		audit:     deps.Audit,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Handler returns the router. Exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine. Binding
// errors (port in use) are returned here.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}(s.server, s.done)

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	<-done
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
