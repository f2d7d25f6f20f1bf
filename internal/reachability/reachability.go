// Package reachability asks an external provider whether a number is active
package reachability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is the outcome of a reachability check
type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusDenied     Status = "denied"
	StatusUnknown    Status = "unknown"
	StatusNotChecked Status = "not_checked"
)

// Request identifies the number to check
type Request struct {
	Number      string // E.164 form
	CountryCode string
}

// Result is what a provider reports for one number
type Result struct {
	Status     Status `json:"status"`
	ExternalID string `json:"external_id,omitempty"`
}

// Checker is implemented by every reachability provider and decorator
type Checker interface {
	Check(ctx context.Context, req Request) (Result, error)
}

// CheckerFunc adapts a function to Checker
type CheckerFunc func(ctx context.Context, req Request) (Result, error)

// Check calls f
func (f CheckerFunc) Check(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// ErrQuotaExceeded is returned when a lookup quota denies the call
var ErrQuotaExceeded = errors.New("reachability quota exceeded")

// NotAttempted reports whether err means no external call was made
func NotAttempted(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// WithTimeout bounds each call to d
func WithTimeout(next Checker, d time.Duration) Checker {
	if d <= 0 {
		return next
	}
	return CheckerFunc(func(ctx context.Context, req Request) (Result, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type outcome struct {
			res Result
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := next.Check(ctx, req)
			done <- outcome{res, err}
		}()

		select {
		case o := <-done:
			return o.res, o.err
		case <-ctx.Done():
			return Result{Status: StatusUnknown}, fmt.Errorf("reachability check timed out after %s: %w", d, ctx.Err())
		}
	})
}
