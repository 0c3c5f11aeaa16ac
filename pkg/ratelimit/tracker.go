package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for politeness tracking.
var (
	politenessBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_politeness_blocks_total",
		Help: "Total number of Retry-After blocks recorded by status code",
	}, []string{"status_code"})

	politenessWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_politeness_waits_total",
		Help: "Total number of requests delayed by a host block",
	})

	politenessWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_politeness_wait_seconds",
		Help:    "Time spent waiting for a blocked host",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120},
	})
)

// Tracker gates requests per host based on Retry-After state shared in Redis.
// It satisfies fetch.HostGate.
type Tracker struct {
	redis   *redis.Client
	logger  zerolog.Logger
	maxWait time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a new politeness tracker. A maxWait <= 0 uses DefaultMaxWait.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, maxWait time.Duration) *Tracker {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Tracker{
		redis:   redisClient,
		logger:  logger,
		maxWait: maxWait,
		sleep:   sleepCtx,
	}
}

// GetState retrieves the state of host. Returns nil, nil if the host is not blocked.
func (t *Tracker) GetState(ctx context.Context, host string) (*HostState, error) {
	data, err := t.redis.Get(ctx, HostKey(host)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get host state: %w", err)
	}

	var state HostState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal host state: %w", err)
	}
	return &state, nil
}

// Observe records a block for host when the response is a 429 or 503 with a
// usable Retry-After header. Any other response is ignored.
func (t *Tracker) Observe(ctx context.Context, host string, statusCode int, header http.Header) error {
	if !blockingStatus(statusCode) {
		return nil
	}

	now := time.Now()
	d := retryAfter(header, now)
	if d <= 0 {
		return nil
	}

	state := HostState{
		Host:         host,
		BlockedUntil: now.Add(d),
		LastStatus:   statusCode,
		LastUpdate:   now,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal host state: %w", err)
	}

	// The key expires together with the block so Redis needs no sweeping.
	if err := t.redis.Set(ctx, HostKey(host), data, d).Err(); err != nil {
		return fmt.Errorf("store host state in redis: %w", err)
	}

	politenessBlocksTotal.WithLabelValues(fmt.Sprintf("%d", statusCode)).Inc()
	t.logger.Warn().
		Str("host", host).
		Int("status_code", statusCode).
		Dur("retry_after", d).
		Time("blocked_until", state.BlockedUntil).
		Msg("Host asked us to back off")

	return nil
}

// Wait blocks until host is no longer blocked, for at most MaxWait.
// It returns the context error if ctx ends first.
func (t *Tracker) Wait(ctx context.Context, host string) error {
	state, err := t.GetState(ctx, host)
	if err != nil {
		return fmt.Errorf("get politeness state: %w", err)
	}
	if state == nil || !state.IsBlocked() {
		return nil
	}

	wait := min(state.TimeUntilUnblocked(), t.maxWait)

	t.logger.Info().
		Str("host", host).
		Dur("wait_duration", wait).
		Msg("Host blocked - delaying request")

	politenessWaitsTotal.Inc()
	start := time.Now()
	defer func() {
		politenessWaitSeconds.Observe(time.Since(start).Seconds())
	}()

	return t.sleep(ctx, wait)
}

// MaxWait returns the upper bound of a single Wait.
func (t *Tracker) MaxWait() time.Duration {
	return t.maxWait
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
