package fetch

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"slices"
	"strconv"
	"time"
)

// RetryPolicy holds the configuration for retry logic.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// A RetryPolicy with every field zero is replaced by DefaultRetryPolicy;
	// use a negative value to disable retries in an otherwise empty policy.
	MaxRetries int

	// BackoffFactor is the delay before the first retry.
	BackoffFactor time.Duration

	// Multiplier grows the delay between consecutive retries. Must be > 1.
	Multiplier float64

	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration

	// Jitter randomises each delay by ±Jitter (0.2 = ±20%). Values >= 1/3 can
	// break the strictly increasing schedule and are clamped.
	Jitter float64

	// RetryStatuses are the HTTP statuses retried with backoff.
	RetryStatuses []int
}

// DefaultRetryPolicy returns the default retry configuration:
// 5 retries waiting 5, 10, 20, 40 and 80 seconds on 500/502/503/504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		BackoffFactor: 5 * time.Second,
		Multiplier:    2.0,
		MaxBackoff:    5 * time.Minute,
		Jitter:        0,
		RetryStatuses: []int{
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

// unset reports whether every field holds its zero value.
func (p RetryPolicy) unset() bool {
	return p.MaxRetries == 0 && p.BackoffFactor == 0 && p.Multiplier == 0 &&
		p.MaxBackoff == 0 && p.Jitter == 0 && p.RetryStatuses == nil
}

func (p *RetryPolicy) defaults() {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = def.BackoffFactor
	}
	if p.Multiplier <= 1 {
		p.Multiplier = def.Multiplier
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = def.MaxBackoff
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 0.33 {
		p.Jitter = 0.33
	}
	if p.RetryStatuses == nil {
		p.RetryStatuses = def.RetryStatuses
	}
}

// Delay returns the backoff before retry n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := float64(p.BackoffFactor) * math.Pow(p.Multiplier, float64(n-1))
	if p.Jitter > 0 {
		d *= 1 - p.Jitter + rand.Float64()*2*p.Jitter
	}
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Retryable reports whether a status code is in the retry set.
func (p RetryPolicy) Retryable(code int) bool {
	return slices.Contains(p.RetryStatuses, code)
}

// parseRetryAfter parses a Retry-After header expressed in seconds.
// Returns 0 if parsing fails or if the value is non-positive.
func parseRetryAfter(h http.Header) time.Duration {
	ra := h.Get("Retry-After")
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// sleepCtx waits for d or returns early if the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
