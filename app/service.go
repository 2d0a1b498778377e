package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/evstation/api/httpapi"
	"github.com/kilianp07/evstation/config"
	"github.com/kilianp07/evstation/core/account"
	"github.com/kilianp07/evstation/core/clock"
	"github.com/kilianp07/evstation/core/events"
	"github.com/kilianp07/evstation/core/gateway"
	coremon "github.com/kilianp07/evstation/core/monitoring"
	"github.com/kilianp07/evstation/core/station"
	"github.com/kilianp07/evstation/infra/journal"
	"github.com/kilianp07/evstation/infra/logger"
	"github.com/kilianp07/evstation/infra/metrics"
	"github.com/kilianp07/evstation/infra/monitoring"
	"github.com/kilianp07/evstation/infra/mqtt"
	"github.com/kilianp07/evstation/infra/password"
	"github.com/kilianp07/evstation/infra/store/breaker"
	"github.com/kilianp07/evstation/infra/store/memory"
	"github.com/kilianp07/evstation/infra/store/postgres"
	"github.com/kilianp07/evstation/infra/store/sqlite"
	"github.com/kilianp07/evstation/infra/token"
	"github.com/kilianp07/evstation/infra/ws"
	"github.com/kilianp07/evstation/internal/eventbus"
)

// Service wires the station with its stores, publishers and the HTTP API.
type Service struct {
	Station  *station.Station
	Accounts *account.Service

	cfg       *config.Config
	log       logger.Logger
	logCloser io.Closer
	store     gateway.Gateway
	bus       *eventbus.Bus[events.Event]
	journal   journal.Store
	recorder  *journal.Recorder
	sink      metrics.EventSink
	publisher *mqtt.Publisher
	hub       *ws.Hub
	handler   http.Handler
	server    *http.Server
}

// New creates a Service from the configuration. Admin accounts are seeded
// before it returns.
func New(cfg *config.Config) (svc *Service, err error) {
	logCloser, err := logger.Configure(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	logg := logger.New("service")
	s := &Service{cfg: cfg, log: logg, logCloser: logCloser}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if s.store, err = OpenGateway(ctx, cfg.Store); err != nil {
		return nil, err
	}

	clk := clock.Real{}
	s.Accounts = account.NewService(s.store, password.NewBcryptHasher(0), clk, logger.New("account"))
	if err := s.Accounts.SeedAdmins(ctx, cfg.Admins); err != nil {
		return nil, fmt.Errorf("seed admins: %w", err)
	}

	s.bus = eventbus.New[events.Event]()
	if err := metrics.RegisterBusMetrics(prometheus.DefaultRegisterer, s.bus); err != nil {
		return nil, fmt.Errorf("bus metrics: %w", err)
	}
	prices := cfg.Tariff.Prices
	s.Station, err = station.New(cfg.Station, station.Deps{
		Users:  s.store,
		Bills:  s.store,
		Bus:    s.bus,
		Log:    logger.New("station"),
		Clock:  clk,
		Prices: &prices,
	})
	if err != nil {
		return nil, err
	}

	if s.journal, err = OpenJournal(cfg.Journal); err != nil {
		return nil, err
	}
	s.recorder = journal.NewRecorder(s.journal, logger.New("journal"))

	s.sink = metrics.NopSink{}
	if cfg.Metrics.Influx.Enabled {
		s.sink = metrics.NewInfluxSinkWithFallback(cfg.Metrics.Influx.Client())
	}

	if cfg.MQTT.Enabled {
		if s.publisher, err = mqtt.NewPublisher(cfg.MQTT); err != nil {
			return nil, err
		}
	}

	tokens, err := token.NewService(cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL(), clk)
	if err != nil {
		return nil, err
	}
	s.hub = ws.NewHub(logger.New("ws"))
	s.handler = httpapi.NewRouter(httpapi.Deps{
		Station:  s.Station,
		Accounts: s.Accounts,
		Tokens:   tokens,
		Journal:  s.journal,
		Events:   s.hub,
		Log:      logger.New("http"),
	})
	s.server = &http.Server{Addr: cfg.HTTP.Addr, Handler: s.handler, ReadHeaderTimeout: 5 * time.Second}
	return s, nil
}

// OpenGateway opens the configured persistence backend, wrapped in a circuit
// breaker when enabled.
func OpenGateway(ctx context.Context, cfg config.StoreConfig) (gateway.Gateway, error) {
	var (
		g   gateway.Gateway
		err error
	)
	switch cfg.Backend {
	case "sqlite":
		g, err = sqlite.Open(cfg.Path)
	case "postgres":
		g, err = postgres.Open(ctx, cfg.DSN)
	case "memory", "":
		g = memory.New()
	default:
		return nil, fmt.Errorf("unknown store backend %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	if cfg.Breaker.Enabled {
		g = breaker.Wrap(cfg.Backend, g, cfg.Breaker.Settings(), logger.New("store-breaker"))
	}
	return g, nil
}

// OpenJournal opens the configured event journal backend.
func OpenJournal(cfg config.JournalConfig) (journal.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		st, err := journal.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		return st, nil
	case "jsonl", "":
		st, err := journal.NewJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown journal backend %s", cfg.Backend)
}

// Handler returns the API router.
func (s *Service) Handler() http.Handler { return s.handler }

// Run starts the dispatch loop, the event subscribers, the metrics server and
// the HTTP API, and blocks until ctx is cancelled or the API server fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	start(func() { s.Station.Run(ctx) })
	start(func() { s.recorder.Run(ctx, s.bus) })
	start(func() { s.hub.Run(ctx, s.bus) })
	if s.publisher != nil {
		start(func() { s.publisher.Run(ctx, s.bus) })
	}
	metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("metrics"))
	if s.cfg.Metrics.Prometheus.Enabled {
		addr := s.cfg.Metrics.Prometheus.Addr()
		start(func() {
			if err := metrics.StartPromServer(ctx, addr, prometheus.DefaultGatherer); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		})
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("HTTP API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.log.Errorf("http server: %v", runErr)
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	cancel()
	wg.Wait()
	return runErr
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		s.publisher.Close()
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.bus != nil {
		s.bus.Close()
	}
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	coremon.Flush(2 * time.Second)
	if s.logCloser != nil {
		errs = append(errs, s.logCloser.Close())
	}
	return errors.Join(errs...)
}
