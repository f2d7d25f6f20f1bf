// Package quota enforces hourly and daily caps on paid reachability lookups
package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketQuotas = []byte("lookup_quotas")

// Level represents the scope a quota applies to
type Level string

const (
	LevelGlobal  Level = "global"
	LevelCountry Level = "country"
)

// Config contains quota configuration
type Config struct {
	// Global caps all lookups regardless of country
	Global *LimitConfig `yaml:"global,omitempty"`

	// Default caps for each country without a specific entry
	DefaultCountry *LimitConfig `yaml:"default_country,omitempty"`

	// Per-country overrides keyed by country code, e.g. "+242"
	Countries map[string]*LimitConfig `yaml:"countries,omitempty"`

	// Persistence settings
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains quota values. Zero means unlimited.
type LimitConfig struct {
	PerHour int `yaml:"per_hour" json:"per_hour"`
	PerDay  int `yaml:"per_day" json:"per_day"`
}

// Counter tracks quota counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter counts lookups per level and refuses them once a cap is reached
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter
	mu       sync.RWMutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewLimiter creates a new quota limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketQuotas)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create quota bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	l.wg.Add(1)
	go l.persistLoop()

	return l, nil
}

// Allow checks whether a lookup is allowed and counts it if so
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.getChecks(req)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)

		if res := evaluate(check, counter.HourlyCount, counter.DailyCount, counter, now); res != nil {
			return res, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
	}

	return &Result{Allowed: true}, nil
}

// Check reports whether a lookup would be allowed without counting it
func (l *Limiter) Check(ctx context.Context, req *Request) (*Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()

	for _, check := range l.getChecks(req) {
		counter, exists := l.counters[check.key]
		if !exists {
			continue
		}

		hourly, daily := currentCounts(counter, now)
		if res := evaluate(check, hourly, daily, counter, now); res != nil {
			return res, nil
		}
	}

	return &Result{Allowed: true}, nil
}

// GetStats returns current counters for one level and key
func (l *Limiter) GetStats(ctx context.Context, level Level, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	counter, exists := l.counters[makeKey(level, key)]
	if !exists {
		return &Stats{Level: level, Key: key}, nil
	}

	return l.statsFor(level, key, counter), nil
}

// AllStats returns current counters for every tracked key, sorted by key
func (l *Limiter) AllStats(ctx context.Context) []*Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make([]*Stats, 0, len(l.counters))
	for full, counter := range l.counters {
		level, key, ok := splitKey(full)
		if !ok {
			continue
		}
		stats = append(stats, l.statsFor(level, key, counter))
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Level != stats[j].Level {
			return stats[i].Level < stats[j].Level
		}
		return stats[i].Key < stats[j].Key
	})
	return stats
}

// Stop waits for the background flush to exit and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	return l.persistCounters()
}

// Request describes the lookup being counted
type Request struct {
	CountryCode string
}

// Result contains the quota check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Stats contains quota statistics
type Stats struct {
	Level       Level        `json:"level"`
	Key         string       `json:"key"`
	HourlyCount int          `json:"hourly_count"`
	DailyCount  int          `json:"daily_count"`
	HourStart   time.Time    `json:"hour_start"`
	DayStart    time.Time    `json:"day_start"`
	Limit       *LimitConfig `json:"limit,omitempty"`
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req *Request) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if req.CountryCode != "" {
		if limit := l.countryLimit(req.CountryCode); limit != nil {
			checks = append(checks, limitCheck{
				level: LevelCountry,
				key:   makeKey(LevelCountry, req.CountryCode),
				limit: limit,
			})
		}
	}

	return checks
}

func (l *Limiter) countryLimit(code string) *LimitConfig {
	if limit, ok := l.config.Countries[code]; ok {
		return limit
	}
	return l.config.DefaultCountry
}

func (l *Limiter) limitFor(level Level, key string) *LimitConfig {
	switch level {
	case LevelGlobal:
		return l.config.Global
	case LevelCountry:
		return l.countryLimit(key)
	}
	return nil
}

func (l *Limiter) statsFor(level Level, key string, counter *Counter) *Stats {
	hourly, daily := currentCounts(counter, l.now())
	return &Stats{
		Level:       level,
		Key:         key,
		HourlyCount: hourly,
		DailyCount:  daily,
		HourStart:   counter.HourStart,
		DayStart:    counter.DayStart,
		Limit:       l.limitFor(level, key),
	}
}

func evaluate(check limitCheck, hourly, daily int, counter *Counter, now time.Time) *Result {
	if check.limit.PerHour > 0 && hourly >= check.limit.PerHour {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
		}
	}
	if check.limit.PerDay > 0 && daily >= check.limit.PerDay {
		return &Result{
			DeniedBy:   check.level,
			DeniedKey:  check.key,
			RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
		}
	}
	return nil
}

func currentCounts(counter *Counter, now time.Time) (hourly, daily int) {
	hourly, daily = counter.HourlyCount, counter.DailyCount
	if now.Sub(counter.HourStart) >= time.Hour {
		hourly = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		daily = 0
	}
	return hourly, daily
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketQuotas)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketQuotas)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}

func splitKey(full string) (Level, string, bool) {
	level, key, ok := strings.Cut(full, ":")
	return Level(level), key, ok
}
