package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/drblury/todobridge/internal/api"
	"github.com/drblury/todobridge/internal/bridge"
	"github.com/drblury/todobridge/internal/events"
	"github.com/drblury/todobridge/internal/hub"
	"github.com/drblury/todobridge/internal/record"
	configpkg "github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	loggingpkg "github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/runtime/telemetry"
	transportpkg "github.com/drblury/todobridge/internal/runtime/transport"
	"github.com/drblury/todobridge/internal/store"
)

const (
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
)

// ServiceDependencies holds optional collaborators. Leave fields nil to use
// the ones built from the configuration.
type ServiceDependencies struct {
	// Store replaces the store selected by Config.StoreDriver. The Service
	// does not close a supplied store.
	Store            record.Store
	TransportFactory transportpkg.Factory
	// Registry receives every collector; a fresh one is created when nil.
	Registry    *prometheus.Registry
	BridgeHooks bridge.Hooks
}

// Status is the body of the diagnostics endpoint.
type Status struct {
	Bridge           bridge.Status `json:"bridge"`
	ConnectedClients int           `json:"connectedClients"`
	Store            string        `json:"store"`
}

// Service wires the record store, the notification hub, the command bridge
// and the HTTP API.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	store      record.Store
	ownsStore  bool
	registry   *hub.Registry
	hub        *hub.Hub
	bridge     *bridge.Bridge
	metrics    *telemetry.Metrics
	promReg    *prometheus.Registry
	handler    http.Handler
	shutdownTO time.Duration

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewService builds every component from conf. Call Start to serve.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errors.New("todobridge: config is required")
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, &errspkg.ConfigValidationError{Err: err}
	}

	log.Info("Creating todobridge service", loggingpkg.LogFields{"config": conf.String()})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		promReg:    deps.Registry,
		shutdownTO: DefaultShutdownTimeout,
	}

	s.store = deps.Store
	if s.store == nil {
		st, err := store.Open(ctx, conf, log.With(loggingpkg.LogFields{"component": "store"}))
		if err != nil {
			return nil, fmt.Errorf("open record store: %w", err)
		}
		s.store = st
		s.ownsStore = true
	}

	if s.promReg == nil {
		s.promReg = prometheus.NewRegistry()
		s.promReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if conf.MetricsEnabled {
		s.metrics = telemetry.NewMetrics(s.promReg)
		if err := s.metrics.Register(); err != nil {
			s.closeStore()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	s.registry = hub.NewRegistry()
	s.hub = hub.New(s.registry,
		hub.WithLogger(log.With(loggingpkg.LogFields{"component": "hub"})),
		hub.WithMetrics(s.metrics),
		hub.WithWriteTimeout(conf.HubWriteTimeout),
		hub.WithAllowedOrigins(conf.CORSAllowedOrigins),
	)

	bridgeOpts := []bridge.Option{
		bridge.WithLogger(log.With(loggingpkg.LogFields{"component": "bridge"})),
		bridge.WithMetrics(s.metrics),
		bridge.WithNotifier(s.hub),
		bridge.WithHooks(deps.BridgeHooks),
	}
	if conf.MetricsEnabled {
		bridgeOpts = append(bridgeOpts, bridge.WithPrometheusRegisterer(s.promReg))
	}
	if deps.TransportFactory != nil {
		bridgeOpts = append(bridgeOpts, bridge.WithTransportFactory(deps.TransportFactory))
	}
	b, err := bridge.New(s.store, conf, bridgeOpts...)
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("create command bridge: %w", err)
	}
	s.bridge = b

	apiDeps := api.Dependencies{
		Store:              s.store,
		Events:             events.NewMulti(s.bridge, s.hub),
		Logger:             log.With(loggingpkg.LogFields{"component": "api"}),
		Hub:                s.hub,
		Status:             func() any { return s.Status() },
		CORSAllowedOrigins: conf.CORSAllowedOrigins,
	}
	if conf.MetricsEnabled {
		apiDeps.Metrics = promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{Registry: s.promReg})
	}
	handler, err := api.NewRouter(apiDeps)
	if err != nil {
		s.closeStore()
		return nil, fmt.Errorf("create http router: %w", err)
	}
	s.handler = handler

	return s, nil
}

// Handler is the HTTP handler served by Start.
func (s *Service) Handler() http.Handler { return s.handler }

// Store is the record store shared by the API and the bridge.
func (s *Service) Store() record.Store { return s.store }

// Hub is the WebSocket notification hub.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Bridge is the command bridge.
func (s *Service) Bridge() *bridge.Bridge { return s.bridge }

// Metrics returns the collectors, or nil when metrics are disabled.
func (s *Service) Metrics() *telemetry.Metrics { return s.metrics }

// Addr is the bound listener address once Start is serving.
func (s *Service) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Status reports the bridge state and the number of push connections.
func (s *Service) Status() Status {
	driver := s.Conf.StoreDriver
	if driver == "" {
		driver = store.DriverMemory
	}
	return Status{
		Bridge:           s.bridge.Status(),
		ConnectedClients: s.registry.Count(),
		Store:            driver,
	}
}

// Start listens on Conf.HTTPAddress and serves until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Conf.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Conf.HTTPAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the command bridge and the HTTP server on ln until ctx is
// cancelled or the server fails, then shuts both down and closes the store.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	if err := s.bridge.Start(gctx); err != nil {
		_ = ln.Close()
		return fmt.Errorf("start command bridge: %w", err)
	}

	g.Go(func() error {
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": ln.Addr().String()})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Service) shutdown() error {
	s.Logger.Info("Shutting down todobridge service", nil)
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTO)
	defer cancel()

	var errs []error
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.hub.CloseAll()
	if err := s.bridge.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close record store: %w", err))
	}
	return errors.Join(errs...)
}

func (s *Service) closeStore() error {
	if !s.ownsStore || s.store == nil {
		return nil
	}
	return s.store.Close()
}
