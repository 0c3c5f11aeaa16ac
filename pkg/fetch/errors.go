package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Common errors returned inside a Failure.
var (
	// ErrRetryExhausted is wrapped when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is wrapped when the caller's context ends mid-fetch.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrBodyTooLarge is wrapped when a body exceeds Config.MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// FailureKind classifies why a fetch did not produce a body.
type FailureKind string

const (
	// KindTimeout is a request that hit the per-request deadline.
	KindTimeout FailureKind = "timeout"

	// KindHTTPStatus is a non-2xx response.
	KindHTTPStatus FailureKind = "http_status"

	// KindNetwork covers connection refused, DNS failures and broken bodies.
	KindNetwork FailureKind = "network"

	// KindCancelled means the caller's context was cancelled. Never retried.
	KindCancelled FailureKind = "cancelled"

	// KindTooLarge is a 2xx body over the size cap. Never retried.
	KindTooLarge FailureKind = "too_large"
)

// Failure is the typed failure half of an Outcome.
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Detail     string
	Attempts   int
	Err        error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	switch {
	case f.Kind == KindHTTPStatus && f.Err != nil:
		return fmt.Sprintf("fetch %s (status %d) after %d attempt(s): %s: %v", f.Kind, f.StatusCode, f.Attempts, f.Detail, f.Err)
	case f.Kind == KindHTTPStatus:
		return fmt.Sprintf("fetch %s (status %d) after %d attempt(s): %s", f.Kind, f.StatusCode, f.Attempts, f.Detail)
	case f.Err != nil:
		return fmt.Sprintf("fetch %s after %d attempt(s): %s: %v", f.Kind, f.Attempts, f.Detail, f.Err)
	default:
		return fmt.Sprintf("fetch %s after %d attempt(s): %s", f.Kind, f.Attempts, f.Detail)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (f *Failure) Unwrap() error {
	return f.Err
}

// statusFailure builds the failure for a non-2xx response.
func statusFailure(code int) *Failure {
	return &Failure{
		Kind:       KindHTTPStatus,
		StatusCode: code,
		Detail:     http.StatusText(code),
	}
}

// transportFailure classifies an error returned by http.Client.Do or a body read.
func transportFailure(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil {
		return &Failure{
			Kind:   KindCancelled,
			Detail: ctx.Err().Error(),
			Err:    fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err()),
		}
	}

	kind := KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &Failure{
		Kind:   kind,
		Detail: err.Error(),
		Err:    err,
	}
}
