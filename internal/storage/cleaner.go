package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CleanerConfig contains retention settings
type CleanerConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Cleaner periodically removes finished runs older than MaxAge
type Cleaner struct {
	storage *BoltStorage
	cfg     CleanerConfig
	logger  *slog.Logger
	wg      sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewCleaner creates a new cleaner service
func NewCleaner(storage *BoltStorage, cfg CleanerConfig, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		storage: storage,
		cfg:     cfg,
		logger:  logger.With("component", "cleaner"),
		done:    make(chan struct{}),
	}
}

// Start starts the cleanup loop. It does nothing when retention is disabled.
func (c *Cleaner) Start(ctx context.Context) {
	if c.cfg.MaxAge <= 0 || c.cfg.Interval <= 0 {
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("cleaner started", "max_age", c.cfg.MaxAge, "interval", c.cfg.Interval)
}

// Stop stops the cleaner and waits for the loop to finish
func (c *Cleaner) Stop() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce removes expired runs once and returns how many were deleted
func (c *Cleaner) RunOnce(ctx context.Context) int {
	deleted, err := c.storage.CleanupFinished(ctx, c.cfg.MaxAge)
	if err != nil {
		c.logger.Error("failed to cleanup finished runs", "error", err)
		return 0
	}

	if deleted > 0 {
		c.logger.Info("cleaned up finished runs", "deleted", deleted)
	}
	return deleted
}
