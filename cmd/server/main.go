package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tally/internal/config"
	"tally/internal/handlers/rules"
	"tally/internal/handlers/system"
	"tally/internal/logger"
	"tally/internal/services/ledger"
	"tally/internal/services/metrics"
	"tally/internal/services/recurring"
	"tally/internal/services/storage"
	"tally/internal/version"
)

var (
	cfg     *config.Config
	log     *zap.Logger
	store   *storage.Storage
	backend recurring.Store
	closer  io.Closer
	svc     *recurring.Service
	metric  *metrics.Metrics
)

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err = logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	info := version.Get()
	log.Info("starting tally",
		zap.String("version", info.String()),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.String("data_dir", cfg.DataDirectory),
		zap.String("store", cfg.Store.Driver))
	if warning := info.Check(); warning != "" {
		log.Warn(warning)
	}

	if err := SetupDependencies(cfg); err != nil {
		log.Fatal("setup failed", zap.Error(err))
	}
	defer closer.Close()

	if store.Status().Encrypted {
		log.Warn("data is encrypted; POST /api/encryption/unlock before use")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", zap.Error(err))
		}
	}()

	log.Info("server listening", zap.String("addr", cfg.ListenAddr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
	log.Info("server stopped")
}

// SetupDependencies builds storage, the configured store and the service
func SetupDependencies(c *config.Config) error {
	cfg = c
	if log == nil {
		log = zap.NewNop()
	}

	var err error
	store, err = storage.New(c.DataDirectory)
	if err != nil {
		return fmt.Errorf("open data directory: %w", err)
	}

	switch c.Store.Driver {
	case config.DriverSQLite:
		sqlStore, err := ledger.OpenSQLite(c.Store.SQLitePath, log, c.Log.Level)
		if err != nil {
			return err
		}
		backend, closer = sqlStore, sqlStore
	default:
		fileStore := ledger.NewFileStore(store)
		backend, closer = fileStore, fileStore
	}

	var opts []recurring.Option
	metric = nil
	if c.MetricsEnabled {
		metric = metrics.New()
		opts = append(opts, recurring.WithRecorder(metric))
	}

	svc = recurring.NewService(backend, recurring.Limits{
		DefaultCount: c.Engine.DefaultCount,
		MaxCount:     c.Engine.MaxCount,
	}, log, opts...)

	rules.Initialize(svc)
	system.Initialize(store, system.NewUnlockLimiter(c.Security.UnlockPerMinute, c.Security.UnlockBurst))
	return nil
}

// SetupRouter creates the chi router with all routes
func SetupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(log))
	if metric != nil {
		r.Use(metric.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	if metric != nil {
		r.Handle("/metrics", metric.Handler())
	}
	system.RegisterRoutes(r, cfg.Store.Driver == config.DriverFile)
	rules.RegisterRoutes(r)

	return r
}
