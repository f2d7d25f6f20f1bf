package reachability

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedConfig configures the simulated provider
type SimulatedConfig struct {
	SuccessRate float64       `yaml:"success_rate"` // probability of a confirmed result, 0..1
	Latency     time.Duration `yaml:"latency"`      // artificial delay per call
	Seed        uint64        `yaml:"seed"`         // 0 picks a random seed
}

// Simulated stands in for a real provider during development and demos.
// Each call confirms with probability SuccessRate and denies otherwise.
type Simulated struct {
	cfg SimulatedConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated creates a simulated provider
func NewSimulated(cfg SimulatedConfig) *Simulated {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Simulated{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Check implements Checker
func (s *Simulated) Check(ctx context.Context, req Request) (Result, error) {
	if s.cfg.Latency > 0 {
		t := time.NewTimer(s.cfg.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Result{Status: StatusUnknown}, ctx.Err()
		case <-t.C:
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	status := StatusDenied
	if roll < s.cfg.SuccessRate {
		status = StatusConfirmed
	}

	return Result{
		Status:     status,
		ExternalID: "sim-" + uuid.NewString(),
	}, nil
}
