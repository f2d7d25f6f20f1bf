package app

import (
	"fmt"

	"github.com/foxzi/numcheck/internal/config"
	"github.com/foxzi/numcheck/internal/metrics"
	"github.com/foxzi/numcheck/internal/quota"
	"github.com/foxzi/numcheck/internal/reachability"
	"github.com/foxzi/numcheck/internal/rules"
)

// LoadRules loads the configured rule file, or the built-in rules when no
// file is set, into a Store
func LoadRules(cfg config.RulesConfig, m *metrics.Metrics) (*rules.Store, error) {
	table, err := rules.Load(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load country rules: %w", err)
	}
	m.SetRulesLoaded(table.Len())
	return rules.NewStore(table), nil
}

// NewChecker builds the configured reachability checker. q may be nil.
// The result is nil when the provider is "none".
func NewChecker(cfg *config.Config, q *quota.Limiter) (reachability.Checker, error) {
	// A typed nil pointer must not reach Build as a non-nil interface
	var limiter reachability.QuotaLimiter
	if q != nil {
		limiter = q
	}

	checker, err := reachability.Build(cfg.ReachabilityOptions(), limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to create reachability checker: %w", err)
	}
	return checker, nil
}
