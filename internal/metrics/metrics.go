package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for numcheck.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Validation
	NumbersValidatedTotal *prometheus.CounterVec

	// Reachability
	ReachabilityChecksTotal     *prometheus.CounterVec
	ReachabilityErrorsTotal     *prometheus.CounterVec
	ReachabilityDurationSeconds prometheus.Histogram

	// Batch runs
	RunsStartedTotal     prometheus.Counter
	RunsFinishedTotal    *prometheus.CounterVec
	RunsActive           prometheus.Gauge
	RunsStored           *prometheus.GaugeVec
	ChunksProcessedTotal prometheus.Counter

	// Rule table
	RulesLoaded       prometheus.Gauge
	RulesReloadsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// Rate limiting
	RateLimitExceededTotal *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		NumbersValidatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_numbers_validated_total",
				Help: "Total number of validated phone numbers by outcome",
			},
			[]string{"result", "code"},
		),

		ReachabilityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_reachability_checks_total",
				Help: "Total number of reachability lookups by status",
			},
			[]string{"status"},
		),
		ReachabilityErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_reachability_errors_total",
				Help: "Total number of failed reachability lookups",
			},
			[]string{"reason"},
		),
		ReachabilityDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "numcheck_reachability_duration_seconds",
				Help:    "Reachability lookup duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),

		RunsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "numcheck_runs_started_total",
				Help: "Total number of batch runs started",
			},
		),
		RunsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_runs_finished_total",
				Help: "Total number of batch runs finished by final status",
			},
			[]string{"status"},
		),
		RunsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "numcheck_runs_active",
				Help: "Number of batch runs currently executing",
			},
		),
		RunsStored: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "numcheck_runs_stored",
				Help: "Number of stored runs by status",
			},
			[]string{"status"},
		),
		ChunksProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "numcheck_chunks_processed_total",
				Help: "Total number of batch chunks processed",
			},
		),

		RulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "numcheck_rules_loaded",
				Help: "Number of country rules in the active table",
			},
		),
		RulesReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_rules_reloads_total",
				Help: "Total number of rule table reload attempts",
			},
			[]string{"result"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numcheck_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		RateLimitExceededTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numcheck_ratelimit_exceeded_total",
				Help: "Total number of rate limit and quota denials",
			},
			[]string{"level"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "numcheck_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "numcheck_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "numcheck_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.NumbersValidatedTotal,
		m.ReachabilityChecksTotal,
		m.ReachabilityErrorsTotal,
		m.ReachabilityDurationSeconds,
		m.RunsStartedTotal,
		m.RunsFinishedTotal,
		m.RunsActive,
		m.RunsStored,
		m.ChunksProcessedTotal,
		m.RulesLoaded,
		m.RulesReloadsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.RateLimitExceededTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveValidation counts one validated number. code is empty for valid numbers.
func (m *Metrics) ObserveValidation(valid bool, code string) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.NumbersValidatedTotal.WithLabelValues(result, code).Inc()
}

// ObserveReachability records one completed lookup
func (m *Metrics) ObserveReachability(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReachabilityChecksTotal.WithLabelValues(status).Inc()
	m.ReachabilityDurationSeconds.Observe(d.Seconds())
}

// IncReachabilityErrors counts a failed lookup
func (m *Metrics) IncReachabilityErrors(reason string) {
	if m == nil {
		return
	}
	m.ReachabilityErrorsTotal.WithLabelValues(reason).Inc()
}

// RunStarted marks a batch run as started
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsStartedTotal.Inc()
	m.RunsActive.Inc()
}

// RunFinished marks a batch run as finished with the given status
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.RunsFinishedTotal.WithLabelValues(status).Inc()
	m.RunsActive.Dec()
}

// IncChunksProcessed counts one processed chunk
func (m *Metrics) IncChunksProcessed() {
	if m == nil {
		return
	}
	m.ChunksProcessedTotal.Inc()
}

// SetRulesLoaded records the size of the active rule table
func (m *Metrics) SetRulesLoaded(n int) {
	if m == nil {
		return
	}
	m.RulesLoaded.Set(float64(n))
}

// IncRulesReloads counts a reload attempt, result is "success" or "error"
func (m *Metrics) IncRulesReloads(result string) {
	if m == nil {
		return
	}
	m.RulesReloadsTotal.WithLabelValues(result).Inc()
}

// IncRateLimitExceeded increments rate limit exceeded counter
func (m *Metrics) IncRateLimitExceeded(level string) {
	if m == nil {
		return
	}
	m.RateLimitExceededTotal.WithLabelValues(level).Inc()
}

// IncAPIErrors increments API error counter
func (m *Metrics) IncAPIErrors(errorType string) {
	if m == nil {
		return
	}
	m.APIErrorsTotal.WithLabelValues(errorType).Inc()
}
