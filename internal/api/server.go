package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-matterbridge/internal/bridge"
	"github.com/nerrad567/gray-logic-matterbridge/internal/exposure"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matterbridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EntityView is the read side of the bridge registry.
type EntityView interface {
	Entries() []bridge.Entry
	Entry(entityID string) (bridge.Entry, bool)
	Stats() bridge.Stats
}

// DeviceView is the read side of the aggregator.
type DeviceView interface {
	Devices() []exposure.Exposed
	Lookup(serial string) (exposure.Exposed, bool)
	Len() int
}

// Ledger lists every device the bridge has ever exposed.
type Ledger interface {
	Devices(ctx context.Context) ([]exposure.DeviceIdentity, error)
}

// HealthSource builds the current bridge health report.
type HealthSource interface {
	Snapshot() exposure.HealthMessage
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Metrics config.MetricsConfig
	Bridge  config.BridgeConfig
	Logger  *logging.Logger

	// Registry and Aggregator are required.
	Registry   EntityView
	Aggregator DeviceView

	// Identity is reported by the bridge info endpoint.
	Identity exposure.Identity

	// Ledger, Health and Gatherer are optional; their endpoints answer 503
	// or are not mounted when nil.
	Ledger   Ledger
	Health   HealthSource
	Gatherer prometheus.Gatherer

	// Hub, if set, is used instead of a server-owned hub. The composition
	// root needs it before the server starts to register it as an observer.
	Hub *Hub

	Version string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	metricsCfg config.MetricsConfig
	bridgeCfg  config.BridgeConfig
	logger     *logging.Logger
	registry   EntityView
	aggregator DeviceView
	identity   exposure.Identity
	ledger     Ledger
	health     HealthSource
	gatherer   prometheus.Gatherer
	version    string
	startTime  time.Time

	server      *http.Server
	hub         *Hub
	externalHub bool
	cancel      context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, aggregator)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("entity registry is required")
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("aggregator is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		metricsCfg: deps.Metrics,
		bridgeCfg:  deps.Bridge,
		logger:     deps.Logger,
		registry:   deps.Registry,
		aggregator: deps.Aggregator,
		identity:   deps.Identity,
		ledger:     deps.Ledger,
		health:     deps.Health,
		gatherer:   deps.Gatherer,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}
	return s, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub (unless one was injected) and launches the
// HTTP listener in a background goroutine. The server can be stopped with
// Close().
//
// Parameters:
//   - ctx: Parent context for the hub; the listener lives until Close()
//
// Returns:
//   - error: If the server fails to start
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

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

// HealthCheck verifies the API server has been started.
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
