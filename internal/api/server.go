package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/events"
	"github.com/foxzi/numcheck/internal/ipfilter"
	"github.com/foxzi/numcheck/internal/metrics"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/storage"
)

// Version is reported by the health endpoint
var Version = "dev"

// RunStore reads and deletes stored runs
type RunStore interface {
	Get(ctx context.Context, id string) (*storage.Run, error)
	List(ctx context.Context, filter storage.ListFilter) ([]*storage.Run, error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (*storage.Stats, error)
}

// RunQueue starts and cancels background runs
type RunQueue interface {
	Submit(ctx context.Context, numbers []string, opts batch.Options, source string) (*storage.Run, error)
	Cancel(ctx context.Context, id string) error
}

// QuotaReporter exposes lookup quota counters
type QuotaReporter interface {
	AllStats(ctx context.Context) []*quota.Stats
	GetStats(ctx context.Context, level quota.Level, key string) (*quota.Stats, error)
	Check(ctx context.Context, req *quota.Request) (*quota.Result, error)
}

// Deps are the collaborators the API serves
type Deps struct {
	Rules    batch.TableSource
	Runs     RunStore
	Queue    RunQueue
	Events   *events.Broker
	Quota    QuotaReporter // nil when quotas are disabled
	Metrics  *metrics.Metrics
	Defaults batch.Options
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.APIConfig
	filter     *ipfilter.Filter
	limiter    *rateLimiter
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(cfg *config.APIConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		deps:      deps,
		config:    cfg,
		filter:    ipfilter.New(cfg.AllowedIPs, logger),
		logger:    logger.With("component", "api"),
		startTime: time.Now(),
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, deps.Metrics)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.HTTPMiddleware(s.deps.Metrics))

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.filter.Middleware)
		if s.limiter != nil {
			r.Use(s.limiter.Middleware)
		}
		r.Use(s.authMiddleware)

		r.Get("/rules", s.handleRules)
		r.Post("/validate", s.handleValidate)
		r.Get("/quota", s.handleQuota)

		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.handleCreateRun)
			r.Get("/", s.handleListRuns)
			r.Get("/{id}", s.handleGetRun)
			r.Get("/{id}/report.csv", s.handleRunCSV)
			r.Get("/{id}/report.json", s.handleRunJSON)
			r.Get("/{id}/events", s.handleRunEvents)
			r.Post("/{id}/cancel", s.handleCancelRun)
			r.Delete("/{id}", s.handleDeleteRun)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
