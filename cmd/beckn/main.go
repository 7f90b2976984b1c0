package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"

	app "github.com/kode4food/beckn"
	"github.com/kode4food/beckn/internal/client"
	"github.com/kode4food/beckn/internal/config"
	"github.com/kode4food/beckn/internal/housekeeping"
	"github.com/kode4food/beckn/internal/metrics"
	"github.com/kode4food/beckn/internal/orchestrator"
	"github.com/kode4food/beckn/internal/responder"
	"github.com/kode4food/beckn/internal/responder/scheduler"
	"github.com/kode4food/beckn/internal/server"
	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/log"
)

type beckn struct {
	cfg          *config.Config
	store        store.Store
	archive      *housekeeping.Archive
	sweeper      *housekeeping.Sweeper
	metrics      *metrics.Metrics
	responder    *responder.Responder
	orchestrator *orchestrator.Orchestrator
	apiServer    *server.Server
	httpServer   *http.Server
	quit         chan os.Signal
}

const archivePrefix = "transactions/"

var (
	ErrConnectStore  = errors.New("failed to connect transaction store")
	ErrOpenArchive   = errors.New("failed to open archive bucket")
	ErrLoadInventory = errors.New("failed to load inventory")
)

func main() {
	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &beckn{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *beckn) run() error {
	if err := s.initializeStore(); err != nil {
		return err
	}

	if err := s.initializeRoles(); err != nil {
		_ = s.store.Close()
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *beckn) setupLogging() {
	level := log.ParseLevel(s.cfg.LogLevel)
	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Beckn service starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("bap_id", s.cfg.Context.BAPID),
		slog.String("bap_uri", s.cfg.Context.BAPURI),
		slog.String("bpp_id", s.cfg.BPPID),
		slog.String("bpp_uri", s.cfg.BPPURI),
		slog.String("store_backend", s.cfg.Store.Backend),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *beckn) initializeStore() error {
	switch s.cfg.Store.Backend {
	case config.StoreRedis:
		rs := store.NewRedis(store.RedisConfig{
			Addr:     s.cfg.Store.Addr,
			Password: s.cfg.Store.Password,
			DB:       s.cfg.Store.DB,
			Prefix:   s.cfg.Store.Prefix,
			TTL:      s.cfg.Store.TTL,
		})
		if err := rs.Ping(context.Background()); err != nil {
			_ = rs.Close()
			return fmt.Errorf("%w: %w", ErrConnectStore, err)
		}
		s.store = rs
	default:
		s.store = store.NewMemory()
	}

	s.metrics = metrics.New()
	s.metrics.Watch(s.store.Events())

	if url := s.cfg.Housekeeping.BucketURL; url != "" {
		a, err := housekeeping.OpenArchive(
			context.Background(), url, archivePrefix,
		)
		if err != nil {
			_ = s.store.Close()
			return fmt.Errorf("%w: %w", ErrOpenArchive, err)
		}
		s.archive = a
	}
	return nil
}

func (s *beckn) initializeRoles() error {
	inv := responder.DefaultInventory()
	if path := s.cfg.Responder.InventoryFile; path != "" {
		var err error
		if inv, err = responder.LoadInventory(path); err != nil {
			return fmt.Errorf("%w: %w", ErrLoadInventory, err)
		}
	}

	rc := s.cfg.Responder
	dispatcher := responder.NewDispatcher(rc.CallbackTimeout, 0)
	dispatcher.Observe(s.metrics.Delivered)
	s.responder = responder.New(responder.Config{
		ID:           s.cfg.BPPID,
		URI:          s.cfg.BPPURI,
		SearchDelay:  rc.SearchDelay,
		SelectDelay:  rc.SelectDelay,
		ConfirmDelay: rc.ConfirmDelay,
		UnitPrice:    decimal.RequireFromString(rc.QuoteUnitPrice),
		Currency:     rc.QuoteCurrency,
	}, inv, scheduler.NewSystem(), dispatcher)
	s.responder.Start()

	cl := client.NewHTTPClient(client.Config{
		Context: s.cfg.Context,
		BPPURI:  s.cfg.BPPURI,
		Timeout: s.cfg.RequestTimeout,
	}, s.store)
	s.orchestrator = orchestrator.New(cl, s.store, orchestrator.Config{
		PollInterval:     s.cfg.PollInterval,
		PhaseTimeout:     s.cfg.PhaseTimeout,
		MaxParallelFlows: s.cfg.MaxParallelFlows,
		Billing:          s.cfg.Billing,
		Fulfillment:      s.cfg.Fulfillment,
	}, orchestrator.WithObserver(s.metrics))

	hk := s.cfg.Housekeeping
	var opts []housekeeping.Option
	if s.archive != nil {
		opts = append(opts, housekeeping.WithArchive(s.archive))
	}
	s.sweeper = housekeeping.NewSweeper(s.store, housekeeping.Config{
		Interval:     hk.SweepInterval,
		Retention:    hk.Retention,
		AbandonAfter: hk.AbandonAfter,
	}, opts...)
	s.sweeper.Start()
	return nil
}

func (s *beckn) startServer() {
	opts := []server.Option{
		server.WithMetrics(s.metrics),
		server.WithVersion(app.Version),
		server.WithRateLimiter(server.NewRateLimiter(
			s.cfg.RateLimit.RPS, s.cfg.RateLimit.Burst,
		)),
	}
	if s.archive != nil {
		opts = append(opts, server.WithArchive(s.archive))
	}
	s.apiServer = server.NewServer(
		s.store, s.responder, s.orchestrator, opts...,
	)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *beckn) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	// queued callbacks may target this process's own BAP listener
	s.responder.Stop()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}

	s.apiServer.CloseWebSockets()
	s.sweeper.Stop()
	s.metrics.Stop()

	if s.archive != nil {
		_ = s.archive.Close()
	}
	if err := s.store.Close(); err != nil {
		slog.Error("Store shutdown failed", log.Error(err))
	}

	slog.Info("Server exited")
}
