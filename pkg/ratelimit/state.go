// Package ratelimit implements per-host politeness tracking and request gating.
// It records the Retry-After hints of throttled responses in Redis so every
// worker, and every harvester process sharing the Redis instance, backs off
// from the same host together.
package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RedisKeyPrefix is the prefix of the per-host state keys.
const RedisKeyPrefix = "harvest:politeness"

// DefaultMaxWait bounds a single Wait regardless of what the host asked for.
const DefaultMaxWait = 2 * time.Minute

// HostState is the politeness state stored for one host.
type HostState struct {
	// Host is the request host, including the port when one was used.
	Host string `json:"host"`

	// BlockedUntil is the earliest time a new request may be sent.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastStatus is the status code that produced the block.
	LastStatus int `json:"last_status"`

	// LastUpdate is when the state was written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked reports whether the host is still asking us to wait.
func (s *HostState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblocked returns the remaining block duration, or 0.
func (s *HostState) TimeUntilUnblocked() time.Duration {
	d := time.Until(s.BlockedUntil)
	if d < 0 {
		return 0
	}
	return d
}

// HostKey returns the Redis key holding the state of host.
func HostKey(host string) string {
	return RedisKeyPrefix + ":" + strings.ToLower(host)
}

// blockingStatus reports whether a status code may carry a block request.
func blockingStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// retryAfter parses a Retry-After header given either as delta seconds or as
// an HTTP date. Returns 0 when absent, malformed or already in the past.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
