package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/foxzi/numcheck/internal/batch"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/reachability"
)

// Environment variables that override secrets from the config file
const (
	EnvAPIKey           = "NUMCHECK_API_KEY"
	EnvTwilioAccountSID = "NUMCHECK_TWILIO_ACCOUNT_SID"
	EnvTwilioAuthToken  = "NUMCHECK_TWILIO_AUTH_TOKEN"
	EnvFile             = "NUMCHECK_ENV_FILE"
)

// Config is the main configuration structure
type Config struct {
	API          APIConfig          `yaml:"api"`
	Batch        batch.Options      `yaml:"batch"`
	Queue        QueueConfig        `yaml:"queue"`
	Reachability ReachabilityConfig `yaml:"reachability"`
	Rules        RulesConfig        `yaml:"rules"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"` // Prometheus metrics configuration
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string             `yaml:"listen_addr"`
	APIKey         string             `yaml:"api_key"`
	MaxHeaderBytes int                `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	MaxBodyBytes   int64              `yaml:"max_body_bytes"`   // Max request body size (default: 1MB)
	MaxNumbers     int                `yaml:"max_numbers"`      // Max numbers per request (default: 10000)
	ReadTimeout    time.Duration      `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration      `yaml:"write_timeout"`    // HTTP write timeout (default: 30s)
	IdleTimeout    time.Duration      `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string           `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
	RateLimit      APIRateLimitConfig `yaml:"rate_limit"`
}

// APIRateLimitConfig limits requests per client IP. Zero disables it.
type APIRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// QueueConfig contains background run settings
type QueueConfig struct {
	Workers int `yaml:"workers"` // Runs executed in parallel (default: 2)
	Size    int `yaml:"size"`    // Pending runs accepted before rejecting (default: 100)
}

// ReachabilityConfig selects and tunes the reachability provider
type ReachabilityConfig struct {
	Provider      string                       `yaml:"provider"` // simulated, twilio, none
	Timeout       time.Duration                `yaml:"timeout"`
	RatePerSecond float64                      `yaml:"rate_per_second"`
	Burst         int                          `yaml:"burst"`
	Quota         QuotaConfig                  `yaml:"quota"`
	Simulated     reachability.SimulatedConfig `yaml:"simulated"`
	Twilio        TwilioConfig                 `yaml:"twilio"`
}

// QuotaConfig caps paid lookups per hour and day
type QuotaConfig struct {
	Enabled      bool `yaml:"enabled"`
	quota.Config `yaml:",inline"`
}

// TwilioConfig contains Twilio Lookup credentials
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
}

// RulesConfig points to an optional country rules file
type RulesConfig struct {
	File  string `yaml:"file"`  // empty = built-in rules
	Watch bool   `yaml:"watch"` // reload the file when it changes
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path      string           `yaml:"path"`
	Retention *RetentionConfig `yaml:"retention"` // Run retention settings
}

// RetentionConfig contains run retention settings
type RetentionConfig struct {
	MaxAge          time.Duration `yaml:"max_age"`          // Delete finished runs older than this (0 = keep forever)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often to run cleanup
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval"` // Default: 15s
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a validated configuration with every default applied.
// Environment overrides are honoured so CLI commands work without a file.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv loads an optional dotenv file and copies secrets from the
// environment over the file values
func (c *Config) applyEnv() error {
	envFile := os.Getenv(EnvFile)
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	if v := os.Getenv(EnvAPIKey); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv(EnvTwilioAccountSID); v != "" {
		c.Reachability.Twilio.AccountSID = v
	}
	if v := os.Getenv(EnvTwilioAuthToken); v != "" {
		c.Reachability.Twilio.AuthToken = v
	}
	return nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = 1 << 20
	}
	if c.API.MaxNumbers == 0 {
		c.API.MaxNumbers = 10000
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 30 * time.Second
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}
	if c.API.RateLimit.RequestsPerSecond > 0 && c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = int(c.API.RateLimit.RequestsPerSecond) + 1
	}

	defaults := batch.DefaultOptions()
	if c.Batch.BatchSize == 0 {
		c.Batch.BatchSize = defaults.BatchSize
	}
	if c.Batch.Delay == 0 {
		c.Batch.Delay = defaults.Delay
	}
	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = defaults.Concurrency
	}

	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.Size == 0 {
		c.Queue.Size = 100
	}

	if c.Reachability.Provider == "" {
		c.Reachability.Provider = reachability.ProviderSimulated
	}
	if c.Reachability.Timeout == 0 {
		c.Reachability.Timeout = 10 * time.Second
	}
	if c.Reachability.RatePerSecond == 0 {
		c.Reachability.RatePerSecond = 10
	}
	if c.Reachability.Burst == 0 {
		c.Reachability.Burst = 10
	}
	if c.Reachability.Simulated.SuccessRate == 0 {
		c.Reachability.Simulated.SuccessRate = 0.7
	}
	if c.Reachability.Quota.FlushInterval == 0 {
		c.Reachability.Quota.FlushInterval = 10 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/numcheck/runs.db"
	}
	if c.Storage.Retention == nil {
		c.Storage.Retention = &RetentionConfig{}
	}
	if c.Storage.Retention.CleanupInterval == 0 {
		c.Storage.Retention.CleanupInterval = time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	if c.Queue.Workers < 0 || c.Queue.Size < 0 {
		return fmt.Errorf("queue.workers and queue.size must not be negative")
	}

	if err := c.validateReachability(); err != nil {
		return err
	}

	if c.API.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("api.rate_limit.requests_per_second must not be negative")
	}
	if c.API.MaxNumbers < 0 {
		return fmt.Errorf("api.max_numbers must not be negative")
	}

	if c.Rules.Watch && c.Rules.File == "" {
		return fmt.Errorf("rules.file is required when rules.watch is enabled")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	return nil
}

// validateReachability validates provider configuration
func (c *Config) validateReachability() error {
	r := c.Reachability

	switch r.Provider {
	case reachability.ProviderSimulated, reachability.ProviderNone:
	case reachability.ProviderTwilio:
		if r.Twilio.AccountSID == "" || r.Twilio.AuthToken == "" {
			return fmt.Errorf("reachability.twilio.account_sid and auth_token are required for the twilio provider")
		}
	default:
		return fmt.Errorf("invalid reachability.provider: %s (must be simulated, twilio, or none)", r.Provider)
	}

	if r.Timeout < 0 {
		return fmt.Errorf("reachability.timeout must not be negative")
	}
	if r.RatePerSecond < 0 {
		return fmt.Errorf("reachability.rate_per_second must not be negative")
	}
	if r.Simulated.SuccessRate < 0 || r.Simulated.SuccessRate > 1 {
		return fmt.Errorf("reachability.simulated.success_rate must be between 0 and 1")
	}

	limits := map[string]*quota.LimitConfig{
		"global":          r.Quota.Global,
		"default_country": r.Quota.DefaultCountry,
	}
	for code, l := range r.Quota.Countries {
		limits["countries."+code] = l
	}
	for name, l := range limits {
		if l != nil && (l.PerHour < 0 || l.PerDay < 0) {
			return fmt.Errorf("reachability.quota.%s must not be negative", name)
		}
	}

	return nil
}

// ReachabilityOptions converts the section into provider build options
func (c *Config) ReachabilityOptions() reachability.Options {
	r := c.Reachability
	return reachability.Options{
		Provider:      r.Provider,
		Timeout:       r.Timeout,
		RatePerSecond: r.RatePerSecond,
		Burst:         r.Burst,
		Simulated:     r.Simulated,
		TwilioSID:     r.Twilio.AccountSID,
		TwilioToken:   r.Twilio.AuthToken,
	}
}
