package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
	"github.com/nerrad567/rainbridge/internal/infrastructure/logging"
	"github.com/nerrad567/rainbridge/internal/irrigation"
	"github.com/nerrad567/rainbridge/internal/metrics"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceSource reports per-controller discovery outcomes.
type DeviceSource interface {
	Devices() []irrigation.DeviceStatus
}

// HealthChecker is any infrastructure component with an active probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BridgeStatus reports whether the HomeKit bridge is live.
type BridgeStatus interface {
	Published() bool
	Count() int
}

// Deps holds the dependencies of the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *accessory.Registry
	Devices  DeviceSource

	// Optional.
	Metrics *metrics.Metrics
	Bridge  BridgeStatus
	Checks  map[string]HealthChecker
	Version string
}

// Server serves the read-only status API, the accessory event stream and
// Prometheus metrics.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *accessory.Registry
	devices  DeviceSource
	metrics  *metrics.Metrics
	bridge   BridgeStatus
	checks   map[string]HealthChecker
	version  string
	started  time.Time

	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New validates deps and builds a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("accessory registry is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device source is required")
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		devices:  deps.Devices,
		metrics:  deps.Metrics,
		bridge:   deps.Bridge,
		checks:   deps.Checks,
		version:  deps.Version,
		started:  time.Now(),
		hub:      NewHub(deps.Config.WebSocket, deps.Logger),
	}
	deps.Registry.Observe(s.accessoryChanged)
	return s, nil
}

// Hub returns the event stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Binding happens
// synchronously so a busy port is reported to the caller.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the hub and drains in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
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

// HealthCheck reports whether Start has run.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// accessoryChanged relays registry mutations to event stream subscribers.
func (s *Server) accessoryChanged(op accessory.ChangeOp, rec accessory.Record) {
	s.hub.Broadcast(ChannelAccessoryChanged, AccessoryEvent{Op: string(op), Accessory: accessoryView(rec)})
	if s.metrics != nil {
		s.metrics.AccessoryCount(s.registry.Count())
	}
}
