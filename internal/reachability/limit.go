package reachability

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/foxzi/numcheck/internal/quota"
)

// Paced spaces calls out to at most rps per second with the given burst
func Paced(next Checker, rps float64, burst int) Checker {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return CheckerFunc(func(ctx context.Context, req Request) (Result, error) {
		if err := limiter.Wait(ctx); err != nil {
			return Result{Status: StatusUnknown}, fmt.Errorf("waiting for reachability rate limiter: %w", err)
		}
		return next.Check(ctx, req)
	})
}

// QuotaLimiter is the part of quota.Limiter used here
type QuotaLimiter interface {
	Allow(ctx context.Context, req *quota.Request) (*quota.Result, error)
}

// WithQuota refuses calls once an hourly or daily lookup quota is spent.
// A refused call returns ErrQuotaExceeded and never reaches next.
func WithQuota(next Checker, q QuotaLimiter) Checker {
	if q == nil {
		return next
	}
	return CheckerFunc(func(ctx context.Context, req Request) (Result, error) {
		res, err := q.Allow(ctx, &quota.Request{CountryCode: req.CountryCode})
		if err != nil {
			return Result{Status: StatusUnknown}, fmt.Errorf("quota check failed: %w", err)
		}
		if !res.Allowed {
			return Result{Status: StatusUnknown}, fmt.Errorf("%w: %s limit %s, retry in %s",
				ErrQuotaExceeded, res.DeniedBy, res.DeniedKey, res.RetryAfter.Round(time.Second))
		}
		return next.Check(ctx, req)
	})
}
