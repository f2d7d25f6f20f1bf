// Package queue executes submitted batch runs on a pool of workers
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/events"
	"github.com/foxzi/numcheck/internal/metrics"
	"github.com/foxzi/numcheck/internal/storage"
)

var (
	// ErrQueueFull is returned when no slot is left for a new run
	ErrQueueFull = errors.New("run queue is full")

	// ErrStopped is returned when submitting to a stopped processor
	ErrStopped = errors.New("processor is stopped")

	// ErrRunFinished is returned when cancelling a run that already ended
	ErrRunFinished = errors.New("run already finished")
)

// Executor runs a batch of numbers
type Executor interface {
	Run(ctx context.Context, numbers []string, opts batch.Options, progress batch.ProgressFunc) (*batch.Run, error)
}

// RunStore persists runs
type RunStore interface {
	Create(ctx context.Context, run *storage.Run) error
	Update(ctx context.Context, run *storage.Run) error
	Get(ctx context.Context, id string) (*storage.Run, error)
}

// Publisher receives run notifications
type Publisher interface {
	Publish(e events.Event)
	Close(runID string)
}

// ProcessorConfig contains processor configuration
type ProcessorConfig struct {
	Workers   int
	QueueSize int
}

// Processor executes runs in the background
type Processor struct {
	store    RunStore
	executor Executor
	events   Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	workers  int
	now      func() time.Time

	jobs    chan string
	mu      sync.Mutex
	cancels map[string]context.CancelFunc

	stopCh   chan struct{}
	stopOnce sync.Once
	stopped  bool
	wg       sync.WaitGroup
}

// NewProcessor creates a new run processor
func NewProcessor(store RunStore, executor Executor, pub Publisher, m *metrics.Metrics, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	return &Processor{
		store:    store,
		executor: executor,
		events:   pub,
		metrics:  m,
		logger:   logger.With("component", "queue"),
		workers:  cfg.Workers,
		now:      time.Now,
		jobs:     make(chan string, cfg.QueueSize),
		cancels:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the processor workers
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("starting run processor", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop cancels active runs and waits for the workers to exit
func (p *Processor) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping run processor")

		p.mu.Lock()
		p.stopped = true
		for _, cancel := range p.cancels {
			cancel()
		}
		p.mu.Unlock()

		close(p.stopCh)
	})
	p.wg.Wait()
}

// Submit stores a pending run and queues it for execution
func (p *Processor) Submit(ctx context.Context, numbers []string, opts batch.Options, source string) (*storage.Run, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, ErrStopped
	}

	run := &storage.Run{
		Status:  storage.StatusPending,
		Source:  source,
		Options: opts,
		Total:   len(numbers),
		Input:   numbers,
	}
	if err := p.store.Create(ctx, run); err != nil {
		return nil, err
	}

	select {
	case p.jobs <- run.ID:
	default:
		p.finish(ctx, run, storage.StatusFailed, ErrQueueFull.Error())
		return nil, ErrQueueFull
	}

	p.publish(run, events.TypeStatus)
	p.logger.Info("run queued", "run_id", run.ID, "total", run.Total, "source", source)

	return run.Brief(), nil
}

// Cancel stops a running run or cancels a pending one before it starts
func (p *Processor) Cancel(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.cancels[id]; ok {
		cancel()
		p.logger.Info("run cancellation requested", "run_id", id)
		return nil
	}

	run, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if run.Status != storage.StatusPending {
		return ErrRunFinished
	}

	p.finish(ctx, run, storage.StatusCancelled, "")
	p.logger.Info("pending run cancelled", "run_id", id)
	return nil
}

// Active returns the number of runs currently executing
func (p *Processor) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// worker is the main processing loop
func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-p.stopCh:
			logger.Debug("worker stopped by signal")
			return
		case runID := <-p.jobs:
			p.process(ctx, runID, logger)
		}
	}
}

// process executes a single queued run
func (p *Processor) process(ctx context.Context, runID string, logger *slog.Logger) {
	logger = logger.With("run_id", runID)

	run, runCtx, ok := p.begin(ctx, runID, logger)
	if !ok {
		return
	}

	p.metrics.RunStarted()
	p.publish(run, events.TypeStatus)
	logger.Info("run started", "total", run.Total)

	// Persisting progress must survive cancellation of the run itself
	storeCtx := context.WithoutCancel(ctx)

	progress := func(completed, total, chunk int) {
		run.Processed = completed
		if err := p.store.Update(storeCtx, run); err != nil {
			logger.Error("failed to persist run progress", "error", err)
		}
		p.events.Publish(events.Event{
			RunID:     run.ID,
			Type:      events.TypeProgress,
			Status:    string(run.Status),
			Completed: completed,
			Total:     total,
			Chunk:     chunk,
		})
	}

	result, err := p.executor.Run(runCtx, run.Input, run.Options, progress)

	// The run can no longer be cancelled once the executor returns
	p.mu.Lock()
	p.cancels[runID]()
	delete(p.cancels, runID)
	p.mu.Unlock()

	if err != nil {
		logger.Error("run failed", "error", err)
		p.finish(storeCtx, run, storage.StatusFailed, err.Error())
		return
	}

	run.Results = result.Results
	run.Summary = &result.Summary
	run.Processed = len(result.Results)

	status := storage.StatusCompleted
	if result.Cancelled {
		status = storage.StatusCancelled
	}
	p.finish(storeCtx, run, status, "")

	logger.Info("run finished",
		"status", status,
		"processed", run.Processed,
		"pending", result.Summary.Pending,
	)
}

// begin moves a pending run to running and registers its cancel func.
// Runs cancelled while queued are skipped, and nothing starts after Stop.
func (p *Processor) begin(ctx context.Context, runID string, logger *slog.Logger) (*storage.Run, context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil, nil, false
	}

	run, err := p.store.Get(ctx, runID)
	if err != nil {
		logger.Error("failed to load queued run", "error", err)
		return nil, nil, false
	}
	if run.Status != storage.StatusPending {
		logger.Debug("skipping run", "status", run.Status)
		return nil, nil, false
	}

	now := p.now()
	run.Status = storage.StatusRunning
	run.StartedAt = &now
	if err := p.store.Update(ctx, run); err != nil {
		logger.Error("failed to mark run as running", "error", err)
		return nil, nil, false
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancels[runID] = cancel

	return run, runCtx, true
}

// finish stores the final state of a run and closes its event stream
func (p *Processor) finish(ctx context.Context, run *storage.Run, status storage.Status, errMsg string) {
	now := p.now()
	run.Status = status
	run.Error = errMsg
	run.Input = nil
	run.FinishedAt = &now
	if run.Summary == nil {
		run.Summary = &batch.Summary{Pending: run.Total - run.Processed}
	}

	if err := p.store.Update(ctx, run); err != nil {
		p.logger.Error("failed to store finished run", "run_id", run.ID, "status", status, "error", err)
	}

	if run.StartedAt != nil {
		p.metrics.RunFinished(string(status))
	}
	p.publish(run, events.TypeDone)
	p.events.Close(run.ID)
}

func (p *Processor) publish(run *storage.Run, typ events.Type) {
	p.events.Publish(events.Event{
		RunID:     run.ID,
		Type:      typ,
		Status:    string(run.Status),
		Completed: run.Processed,
		Total:     run.Total,
	})
}
