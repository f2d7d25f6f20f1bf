package reachability

import (
	"fmt"
	"time"
)

// Provider names accepted by Build
const (
	ProviderSimulated = "simulated"
	ProviderTwilio    = "twilio"
	ProviderNone      = "none"
)

// Options selects and tunes a provider
type Options struct {
	Provider      string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Simulated     SimulatedConfig
	TwilioSID     string
	TwilioToken   string
}

// Build assembles the provider chain: pacing, then quota, then the per-call
// timeout around the provider itself. It returns a nil Checker for
// ProviderNone, which callers treat as reachability disabled.
func Build(opts Options, q QuotaLimiter) (Checker, error) {
	var provider Checker

	switch opts.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderSimulated, "":
		provider = NewSimulated(opts.Simulated)
	case ProviderTwilio:
		tc, err := NewTwilioChecker(opts.TwilioSID, opts.TwilioToken)
		if err != nil {
			return nil, err
		}
		provider = tc
	default:
		return nil, fmt.Errorf("unknown reachability provider %q", opts.Provider)
	}

	checker := WithTimeout(provider, opts.Timeout)
	if q != nil {
		checker = WithQuota(checker, q)
	}
	return Paced(checker, opts.RatePerSecond, opts.Burst), nil
}
