// Package fetch provides the HTTP page fetcher with timeouts, retry with
// exponential backoff and typed failures.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/quoteharvest/harvester/pkg/cache"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/rs/zerolog"
)

// BodyCache stores successful page bodies keyed by URL.
// Lookup returns cache.ErrCacheMiss when nothing is stored.
type BodyCache interface {
	Lookup(ctx context.Context, rawURL string) ([]byte, error)
	Store(ctx context.Context, rawURL string, body []byte, contentType string) error
	Evict(ctx context.Context, rawURL string) error
}

// HostGate delays requests to hosts that asked the harvester to back off.
type HostGate interface {
	Wait(ctx context.Context, host string) error
	Observe(ctx context.Context, host string, statusCode int, header http.Header) error
}

// Config holds the fetcher configuration.
type Config struct {
	// Timeout is the per-request deadline. Default: 30s.
	Timeout time.Duration

	// UserAgent sent with every request.
	UserAgent string

	// Retry controls backoff and the retryable status set.
	Retry RetryPolicy

	// MaxConnsPerHost sizes the idle connection pool. Keep it >= the
	// scheduler's concurrency. Default: 10.
	MaxConnsPerHost int

	// MaxBodyBytes caps a decompressed body; larger pages fail with
	// KindTooLarge. Default: 10MB.
	MaxBodyBytes int64

	// Transport overrides the pooled transport built by NewTransport.
	Transport http.RoundTripper

	// Cache is consulted before the network and filled on success. Optional.
	Cache BodyCache

	// Gate is consulted before every attempt. Optional.
	Gate HostGate
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		Timeout:         30 * time.Second,
		UserAgent:       userAgent,
		Retry:           DefaultRetryPolicy(),
		MaxConnsPerHost: 10,
		MaxBodyBytes:    10 * 1024 * 1024,
	}
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "quote-harvester/1.0"
	}
	if c.Retry.unset() {
		c.Retry = DefaultRetryPolicy()
	}
	c.Retry.defaults()
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 10
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 * 1024 * 1024
	}
}

// Outcome is the result of one Fetch. A nil Failure means success.
type Outcome struct {
	URL        string
	Body       []byte
	StatusCode int
	Attempts   int
	FromCache  bool
	Failure    *Failure
}

// OK reports whether the fetch produced a body.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// Err returns the failure as an error, or nil on success.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Fetcher issues GET requests on a shared, explicitly constructed client.
type Fetcher struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher. The zero Config is valid.
func New(cfg Config) *Fetcher {
	cfg.defaults()

	transport := cfg.Transport
	if transport == nil {
		transport = NewTransport(cfg.MaxConnsPerHost)
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
		logger: logging.NewLogger("fetch"),
		sleep:  sleepCtx,
	}
}

// NewTransport builds a pooled transport whose per-host idle pool matches
// the expected worker concurrency.
func NewTransport(maxConnsPerHost int) *http.Transport {
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = 10
	}
	return &http.Transport{
		MaxIdleConns:        max(100, maxConnsPerHost),
		MaxIdleConnsPerHost: maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		Proxy:               http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// Config returns the effective configuration after defaults.
func (f *Fetcher) Config() Config {
	return f.config
}

// Fetch retrieves rawURL. It never returns an error: every failure mode is
// reported through Outcome.Failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) Outcome {
	start := time.Now()
	defer func() {
		fetchDuration.Observe(time.Since(start).Seconds())
	}()

	if f.config.Cache != nil {
		body, err := f.config.Cache.Lookup(ctx, rawURL)
		switch {
		case err == nil:
			f.logger.Debug().Str("url", rawURL).Msg("Page served from cache")
			return Outcome{URL: rawURL, Body: body, StatusCode: http.StatusOK, FromCache: true}
		case !errors.Is(err, cache.ErrCacheMiss):
			f.logger.Warn().Err(err).Str("url", rawURL).Msg("Cache lookup failed")
		}
	}

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}

	policy := f.config.Retry
	maxAttempts := policy.MaxRetries + 1

	var last *Failure
	var retryAfter time.Duration

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := policy.Delay(attempt - 1)
			if retryAfter > delay {
				delay = min(retryAfter, policy.MaxBackoff)
			}
			retryAfter = 0

			kind := string(last.Kind)
			fetchRetriesTotal.WithLabelValues(kind).Inc()
			fetchRetryBackoffSeconds.WithLabelValues(kind).Observe(delay.Seconds())

			f.logger.Warn().
				Str("url", rawURL).
				Int("attempt", attempt).
				Str("failure_kind", kind).
				Dur("backoff", delay).
				Msg("Retrying fetch after backoff")

			if err := f.sleep(ctx, delay); err != nil {
				return f.cancelled(ctx, rawURL, attempt-1)
			}
		}

		if f.config.Gate != nil && host != "" {
			if err := f.config.Gate.Wait(ctx, host); err != nil {
				if ctx.Err() != nil {
					return f.cancelled(ctx, rawURL, attempt-1)
				}
				f.logger.Warn().Err(err).Str("host", host).Msg("Politeness gate unavailable")
			}
		}

		body, status, header, err := f.do(ctx, rawURL)

		if f.config.Gate != nil && host != "" && err == nil {
			if gerr := f.config.Gate.Observe(ctx, host, status, header); gerr != nil {
				f.logger.Warn().Err(gerr).Str("host", host).Msg("Failed to record host state")
			}
		}

		switch {
		case errors.Is(err, ErrBodyTooLarge):
			// Truncated markup would yield a partial record set.
			failure := &Failure{Kind: KindTooLarge, StatusCode: status, Detail: err.Error(), Attempts: attempt, Err: err}
			fetchAttemptsTotal.WithLabelValues(string(KindTooLarge)).Inc()
			f.logAttempt(rawURL, attempt, failure)
			return Outcome{URL: rawURL, StatusCode: status, Attempts: attempt, Failure: failure}

		case err != nil:
			last = transportFailure(ctx, err)
			last.Attempts = attempt
			fetchAttemptsTotal.WithLabelValues(string(last.Kind)).Inc()
			f.logAttempt(rawURL, attempt, last)
			if last.Kind == KindCancelled {
				return Outcome{URL: rawURL, Attempts: attempt, Failure: last}
			}

		case status >= 200 && status < 300:
			fetchAttemptsTotal.WithLabelValues("ok").Inc()
			evt := f.logger.Debug()
			if attempt > 1 {
				evt = f.logger.Info()
			}
			evt.Str("url", rawURL).
				Int("attempt", attempt).
				Int("status_code", status).
				Int("bytes", len(body)).
				Msg("Fetched page")

			if f.config.Cache != nil {
				if err := f.config.Cache.Store(ctx, rawURL, body, header.Get("Content-Type")); err != nil {
					f.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to cache page")
				}
			}
			return Outcome{URL: rawURL, Body: body, StatusCode: status, Attempts: attempt}

		case policy.Retryable(status):
			last = statusFailure(status)
			last.Attempts = attempt
			retryAfter = parseRetryAfter(header)
			fetchAttemptsTotal.WithLabelValues(string(KindHTTPStatus)).Inc()
			f.logAttempt(rawURL, attempt, last)

		default:
			// Permanently broken page: no retry.
			failure := statusFailure(status)
			failure.Attempts = attempt
			fetchAttemptsTotal.WithLabelValues(string(KindHTTPStatus)).Inc()
			f.logAttempt(rawURL, attempt, failure)
			return Outcome{URL: rawURL, StatusCode: status, Attempts: attempt, Failure: failure}
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(string(last.Kind)).Inc()
	f.logger.Error().
		Str("url", rawURL).
		Str("failure_kind", string(last.Kind)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	if last.Err != nil {
		last.Err = fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxAttempts, last.Err)
	} else {
		last.Err = fmt.Errorf("%w after %d attempts", ErrRetryExhausted, maxAttempts)
	}
	return Outcome{URL: rawURL, StatusCode: last.StatusCode, Attempts: maxAttempts, Failure: last}
}

// Forget drops the cached body of rawURL, e.g. after it failed extraction.
func (f *Fetcher) Forget(ctx context.Context, rawURL string) {
	if f.config.Cache == nil {
		return
	}
	if err := f.config.Cache.Evict(ctx, rawURL); err != nil {
		f.logger.Warn().Err(err).Str("url", rawURL).Msg("Failed to evict cached page")
		return
	}
	f.logger.Debug().Str("url", rawURL).Msg("Evicted cached page")
}

// do performs a single GET and returns the decoded body for 2xx responses.
func (f *Fetcher) do(ctx context.Context, rawURL string) ([]byte, int, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Encoding", acceptEncoding)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 64*1024)
		return nil, resp.StatusCode, resp.Header, nil
	}

	body, err := readBody(resp, f.config.MaxBodyBytes)
	if err != nil {
		return nil, resp.StatusCode, resp.Header, err
	}
	return body, resp.StatusCode, resp.Header, nil
}

func (f *Fetcher) cancelled(ctx context.Context, rawURL string, attempts int) Outcome {
	failure := transportFailure(ctx, ctx.Err())
	failure.Attempts = attempts
	f.logAttempt(rawURL, attempts, failure)
	return Outcome{URL: rawURL, Attempts: attempts, Failure: failure}
}

func (f *Fetcher) logAttempt(rawURL string, attempt int, failure *Failure) {
	f.logger.Warn().
		Str("url", rawURL).
		Int("attempt", attempt).
		Str("failure_kind", string(failure.Kind)).
		Int("status_code", failure.StatusCode).
		Str("detail", failure.Detail).
		Msg("Fetch attempt failed")
}
