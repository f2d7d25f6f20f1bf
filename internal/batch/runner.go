// Package batch validates lists of numbers in paced chunks and checks
// reachability for the ones that pass
package batch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/numcheck/internal/metrics"
	"github.com/foxzi/numcheck/internal/reachability"
	"github.com/foxzi/numcheck/internal/rules"
	"github.com/foxzi/numcheck/internal/validator"
)

// Reachability is the per-number outcome of the external check
type Reachability struct {
	Status     reachability.Status `json:"status"`
	ExternalID string              `json:"external_id,omitempty"`
	Error      string              `json:"error,omitempty"`
	// Checked is true when a provider call was actually made
	Checked bool `json:"checked"`
}

// Result pairs a validation result with its reachability outcome
type Result struct {
	validator.Result
	Reachability Reachability `json:"reachability"`
	ValidatedAt  time.Time    `json:"validated_at"`
}

// Run is the outcome of one Runner.Run call
type Run struct {
	Results    []Result  `json:"results"`
	Summary    Summary   `json:"summary"`
	Cancelled  bool      `json:"cancelled"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ProgressFunc is called synchronously after each chunk. chunk is 1-based.
type ProgressFunc func(completed, total, chunk int)

// TableSource supplies the rule table. *rules.Store satisfies it.
type TableSource interface {
	Table() *rules.Table
}

// Runner processes batches. It is safe for concurrent use.
type Runner struct {
	rules   TableSource
	checker reachability.Checker
	metrics *metrics.Metrics
	logger  *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewRunner creates a runner. A nil checker disables reachability checks.
func NewRunner(src TableSource, checker reachability.Checker, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		rules:   src,
		checker: checker,
		metrics: m,
		logger:  logger.With("component", "batch"),
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Run validates numbers chunk by chunk. Results keep input order.
//
// Cancelling ctx stops the run before the next chunk or during the delay.
// The chunk in flight always finishes. The partial run is returned with
// Cancelled set and a nil error.
func (r *Runner) Run(ctx context.Context, numbers []string, opts Options, progress ProgressFunc) (*Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	table := r.rules.Table()
	if table == nil || table.Len() == 0 {
		return nil, &ConfigError{Field: "rules", Reason: "rule table is empty"}
	}

	checker := r.checker
	if opts.SkipReachability {
		checker = nil
	}

	run := &Run{StartedAt: r.now()}
	total := len(numbers)
	results := make([]Result, total)
	processed := 0

	r.logger.Info("batch started",
		"total", total,
		"batch_size", opts.BatchSize,
		"delay", opts.Delay,
		"reachability", checker != nil,
	)

	for start, chunk := 0, 1; start < total; start, chunk = start+opts.BatchSize, chunk+1 {
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}

		end := min(start+opts.BatchSize, total)
		r.processChunk(context.WithoutCancel(ctx), table, checker, numbers[start:end], results[start:end], opts.Concurrency)
		processed = end
		r.metrics.IncChunksProcessed()

		r.logger.Debug("chunk processed", "chunk", chunk, "completed", processed, "total", total)
		if progress != nil {
			progress(processed, total, chunk)
		}

		if end < total && opts.Delay > 0 {
			if err := r.sleep(ctx, opts.Delay); err != nil {
				run.Cancelled = true
				break
			}
		}
	}

	run.Results = results[:processed]
	run.Summary = Summarize(run.Results)
	run.Summary.Pending = total - processed
	run.FinishedAt = r.now()

	r.logger.Info("batch finished",
		"processed", processed,
		"pending", run.Summary.Pending,
		"cancelled", run.Cancelled,
		"format_valid", run.Summary.FormatValid,
		"api_calls", run.Summary.APICallsMade,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)

	return run, nil
}

func (r *Runner) processChunk(ctx context.Context, table *rules.Table, checker reachability.Checker, numbers []string, out []Result, concurrency int) {
	for i, raw := range numbers {
		vr := validator.Validate(raw, table)
		r.metrics.ObserveValidation(vr.Valid, string(vr.Code))
		out[i] = Result{
			Result:       vr,
			Reachability: Reachability{Status: reachability.StatusNotChecked},
			ValidatedAt:  r.now(),
		}
	}

	if checker == nil {
		return
	}

	// Failures are recorded per number, so the group never returns an error.
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i := range out {
		if !out[i].Valid {
			continue
		}
		res := &out[i]
		g.Go(func() error {
			res.Reachability = r.check(ctx, checker, res.Result)
			return nil
		})
	}
	g.Wait()
}

func (r *Runner) check(ctx context.Context, checker reachability.Checker, vr validator.Result) Reachability {
	number := validator.E164(vr)
	start := time.Now()

	res, err := checker.Check(ctx, reachability.Request{
		Number:      number,
		CountryCode: vr.Country.CountryCode,
	})
	elapsed := time.Since(start)

	if err != nil {
		out := Reachability{
			Status:  reachability.StatusUnknown,
			Error:   err.Error(),
			Checked: !reachability.NotAttempted(err),
		}
		switch {
		case reachability.NotAttempted(err):
			r.metrics.IncRateLimitExceeded("quota")
		case errors.Is(err, context.DeadlineExceeded):
			r.metrics.IncReachabilityErrors("timeout")
		default:
			r.metrics.IncReachabilityErrors("provider")
		}
		r.logger.Warn("reachability check failed", "number", validator.Mask(number), "error", err)
		return out
	}

	status := res.Status
	if status != reachability.StatusConfirmed && status != reachability.StatusDenied {
		status = reachability.StatusUnknown
	}
	r.metrics.ObserveReachability(string(status), elapsed)

	return Reachability{
		Status:     status,
		ExternalID: res.ExternalID,
		Checked:    true,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
