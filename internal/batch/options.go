package batch

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfiguration is wrapped by every options error
var ErrConfiguration = errors.New("invalid batch configuration")

// ConfigError describes one invalid option
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid batch configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

const (
	MinBatchSize   = 1
	MaxBatchSize   = 100
	MaxConcurrency = 50
)

// Options controls how a run is chunked and paced
type Options struct {
	BatchSize        int           `json:"batch_size" yaml:"batch_size"`
	Delay            time.Duration `json:"delay" yaml:"delay"`
	SkipReachability bool          `json:"skip_reachability" yaml:"skip_reachability"`
	Concurrency      int           `json:"concurrency" yaml:"concurrency"`
}

// DefaultOptions returns 20 numbers per chunk, one second between chunks,
// reachability enabled and four parallel lookups per chunk.
func DefaultOptions() Options {
	return Options{
		BatchSize:   20,
		Delay:       time.Second,
		Concurrency: 4,
	}
}

// Validate checks option ranges
func (o Options) Validate() error {
	if o.BatchSize < MinBatchSize || o.BatchSize > MaxBatchSize {
		return &ConfigError{
			Field:  "batch_size",
			Reason: fmt.Sprintf("must be between %d and %d, got %d", MinBatchSize, MaxBatchSize, o.BatchSize),
		}
	}
	if o.Delay < 0 {
		return &ConfigError{Field: "delay", Reason: fmt.Sprintf("must not be negative, got %s", o.Delay)}
	}
	if o.Concurrency < 1 || o.Concurrency > MaxConcurrency {
		return &ConfigError{
			Field:  "concurrency",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxConcurrency, o.Concurrency),
		}
	}
	return nil
}
