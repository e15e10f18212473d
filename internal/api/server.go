package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/womgr-core/internal/dashboard"
	"github.com/nerrad567/womgr-core/internal/device"
	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
	"github.com/nerrad567/womgr-core/internal/infrastructure/logging"
	"github.com/nerrad567/womgr-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/womgr-core/internal/monitor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// and background dashboard updates to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ActionRecorder writes device action metrics. *influxdb.Client satisfies it.
type ActionRecorder interface {
	WriteAction(device, action string, ok bool, at time.Time)
}

// HealthChecker is a dependency reported by /api/v1/health. *database.DB,
// *mqtt.Client and *influxdb.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Wake        config.WakeConfig
	Logger      *logging.Logger
	Registry    *device.Registry
	Reconciler  *dashboard.Reconciler
	Monitor     *monitor.Monitor
	History     device.HistoryRepository // optional
	MQTT        *mqtt.Client             // optional
	Metrics     ActionRecorder           // optional
	Checks      map[string]HealthChecker // optional, keyed by component name
	ExternalHub *Hub                     // If set, the server uses this hub instead of creating its own
	Version     string
}

// Server is the HTTP API server for womgr.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	wakeCfg    config.WakeConfig
	logger     *logging.Logger
	registry   *device.Registry
	reconciler *dashboard.Reconciler
	monitor    *monitor.Monitor
	history    device.HistoryRepository
	mqtt       *mqtt.Client
	metrics    ActionRecorder
	checks     map[string]HealthChecker
	version    string
	startTime  time.Time
	server     *http.Server
	hub        *Hub
	cancel     context.CancelFunc // cancels the hub on Close()

	// Background dashboard updates scheduled by registry events.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup

	// dashQueue orders the dashboard updates of registry events.
	dashQueue dashboardQueue

	// closed stops registry events from reaching the dashboard once the
	// server shuts down, so the shutdown sweep keeps the cards.
	closed atomic.Bool
}

// New creates a new API server with the given dependencies.
//
// The server subscribes to registry events immediately so that devices
// registered or removed from now on get their dashboard cards updated. It
// does not listen until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Reconciler == nil {
		return nil, fmt.Errorf("dashboard reconciler is required")
	}

	mon := deps.Monitor
	if mon == nil {
		mon = monitor.New(deps.Registry, monitor.Options{}, monitor.Sinks{})
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		wakeCfg:    deps.Wake,
		logger:     deps.Logger,
		registry:   deps.Registry,
		reconciler: deps.Reconciler,
		monitor:    mon,
		history:    deps.History,
		mqtt:       deps.MQTT,
		metrics:    deps.Metrics,
		checks:     deps.Checks,
		version:    deps.Version,
		startTime:  time.Now(),
		hub:        deps.ExternalHub,
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())

	if s.hub != nil {
		s.hub.SetReplay(s.replayState)
	}

	deps.Registry.AddObserver(s.onRegistryEvent)
	return s, nil
}

// replayState gives new state_changed subscribers the current reachability
// of every probed device.
func (s *Server) replayState(channel string) []any {
	if channel != monitor.ChannelStateChanged {
		return nil
	}
	snap := s.monitor.Snapshot()
	out := make([]any, len(snap))
	for i, t := range snap {
		out[i] = t
	}
	return out
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected) and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
		s.hub.SetReplay(s.replayState)
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadDuration(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadDuration(),
		WriteTimeout:      s.cfg.Timeouts.WriteDuration(),
		IdleTimeout:       s.cfg.Timeouts.IdleDuration(),
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then for
// scheduled dashboard updates, and finally cancels whatever is left.
func (s *Server) Close() error {
	s.closed.Store(true)
	defer s.bgCancel()

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	var shutdownErr error
	if s.server != nil {
		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutting down API server: %w", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("dashboard updates still pending at shutdown")
	}

	return shutdownErr
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
