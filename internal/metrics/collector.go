package metrics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"
)

// RunStatsProvider reports how many stored runs are in each status
type RunStatsProvider interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Collector periodically refreshes gauges that are sampled rather than counted
type Collector struct {
	metrics     *Metrics
	runStats    RunStatsProvider
	storagePath string
	interval    time.Duration
	startTime   time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, runStats RunStatsProvider, storagePath string, interval time.Duration) *Collector {
	if interval == 0 {
		interval = 5 * time.Second
	}

	return &Collector{
		metrics:     m,
		runStats:    runStats,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the collector loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector and waits for the loop to exit
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	c.Collect(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect samples current system state once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.runStats != nil {
		counts, err := c.runStats.CountByStatus(ctx)
		if err == nil {
			c.metrics.RunsStored.Reset()
			for status, n := range counts {
				c.metrics.RunsStored.WithLabelValues(status).Set(float64(n))
			}
		}
	}
}
