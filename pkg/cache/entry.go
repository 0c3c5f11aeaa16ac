package cache

import (
	"time"
)

// Entry represents a cached page body.
type Entry struct {
	// Body is the decoded UTF-8 response body.
	Body []byte `json:"body"`

	// StatusCode is the HTTP status code of the cached response.
	StatusCode int `json:"status_code"`

	// ContentType is the original Content-Type header.
	ContentType string `json:"content_type"`

	// FetchedAt is when the page was fetched from the network.
	FetchedAt time.Time `json:"fetched_at"`

	// Expires is when the entry becomes stale.
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
