package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/numcheck/internal/api"
	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/events"
	"github.com/foxzi/numcheck/internal/metrics"
	"github.com/foxzi/numcheck/internal/queue"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/rules"
	"github.com/foxzi/numcheck/internal/storage"
)

// App is the numcheck server
type App struct {
	config        *config.Config
	logger        *slog.Logger
	storage       *storage.BoltStorage
	quota         *quota.Limiter
	rules         *rules.Store
	watcher       *rules.Watcher
	broker        *events.Broker
	processor     *queue.Processor
	apiServer     *api.Server
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	collector     *metrics.Collector
	cleaner       *storage.Cleaner
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	return NewWithLogger(cfg, SetupLogger(cfg.Logging, os.Stdout))
}

// NewWithLogger creates a new application that logs to logger
func NewWithLogger(cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		config: cfg,
		logger: logger,
		broker: events.NewBroker(),
	}

	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}

	var err error
	a.storage, err = storage.NewBoltStorage(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	// Runs left running by a crash can never resume
	if n, err := a.storage.FailInterrupted(context.Background()); err != nil {
		a.storage.Close()
		return nil, fmt.Errorf("failed to recover interrupted runs: %w", err)
	} else if n > 0 {
		logger.Warn("marked interrupted runs as failed", "count", n)
	}

	a.rules, err = LoadRules(cfg.Rules, a.metrics)
	if err != nil {
		a.storage.Close()
		return nil, err
	}
	logger.Info("country rules loaded", "rules", a.rules.Table().Len(), "file", cfg.Rules.File)

	if cfg.Reachability.Quota.Enabled {
		a.quota, err = quota.NewLimiter(a.storage.DB(), &cfg.Reachability.Quota.Config)
		if err != nil {
			a.storage.Close()
			return nil, fmt.Errorf("failed to create quota limiter: %w", err)
		}
		logger.Info("reachability quota enabled")
	}

	checker, err := NewChecker(cfg, a.quota)
	if err != nil {
		a.close()
		return nil, err
	}
	logger.Info("reachability provider configured", "provider", cfg.Reachability.Provider)

	if cfg.Rules.Watch {
		a.watcher, err = rules.NewWatcher(cfg.Rules.File, a.rules, func(t *rules.Table, err error) {
			if err != nil {
				a.metrics.IncRulesReloads("error")
				return
			}
			a.metrics.SetRulesLoaded(t.Len())
			a.metrics.IncRulesReloads("success")
		}, logger.With("component", "rules_watcher"))
		if err != nil {
			a.close()
			return nil, err
		}
	}

	runner := batch.NewRunner(a.rules, checker, a.metrics, logger.With("component", "runner"))

	a.processor = queue.NewProcessor(
		a.storage,
		runner,
		a.broker,
		a.metrics,
		queue.ProcessorConfig{
			Workers:   cfg.Queue.Workers,
			QueueSize: cfg.Queue.Size,
		},
		logger.With("component", "processor"),
	)

	deps := api.Deps{
		Rules:    a.rules,
		Runs:     a.storage,
		Queue:    a.processor,
		Events:   a.broker,
		Metrics:  a.metrics,
		Defaults: cfg.Batch,
	}
	if a.quota != nil {
		deps.Quota = a.quota
	}
	a.apiServer = api.NewServer(&cfg.API, deps, logger)

	if a.metrics != nil {
		a.metricsServer = metrics.NewServer(
			a.metrics,
			cfg.Metrics.ListenAddr,
			cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs,
			logger.With("component", "metrics"),
		)
		a.collector = metrics.NewCollector(a.metrics, a.storage, cfg.Storage.Path, cfg.Metrics.CollectInterval)
	}

	a.cleaner = storage.NewCleaner(a.storage, storage.CleanerConfig{
		MaxAge:   cfg.Storage.Retention.MaxAge,
		Interval: cfg.Storage.Retention.CleanupInterval,
	}, logger)

	return a, nil
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	logAttrs := []any{
		"api_addr", a.config.API.ListenAddr,
		"provider", a.config.Reachability.Provider,
		"workers", a.config.Queue.Workers,
	}
	if a.metricsServer != nil {
		logAttrs = append(logAttrs, "metrics_addr", a.config.Metrics.ListenAddr)
	}
	a.logger.Info("starting numcheck", logAttrs...)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			a.logger.Error("rules watcher failed to start", "error", err)
			a.watcher.Stop()
			a.watcher = nil
		}
	}

	a.processor.Start(ctx)
	a.cleaner.Start(ctx)
	if a.collector != nil {
		a.collector.Start(ctx)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	// Create timeout context
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop the HTTP API first so no new runs arrive
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Active runs end as cancelled after their current chunk
	a.processor.Stop()

	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.cleaner.Stop()
	if a.collector != nil {
		a.collector.Stop()
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.close()

	a.logger.Info("shutdown complete")
	return nil
}

// close persists quota counters and closes storage
func (a *App) close() {
	if a.quota != nil {
		if err := a.quota.Stop(); err != nil {
			a.logger.Error("quota limiter stop error", "error", err)
		}
	}

	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}
}

// Handler exposes the API router
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// SetupLogger creates a logger based on configuration
func SetupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
