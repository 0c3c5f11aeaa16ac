package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every page key in Redis.
const KeyPrefix = "harvest:page"

// PageKey identifies a cached page body.
type PageKey struct {
	// URL is the absolute page URL as requested.
	URL string
}

// String generates a deterministic cache key string.
// Format: harvest:page:host/path:query1=val1:query2=val2
//
// The scheme is not part of the key, so the http and https variants of a
// URL share one entry. Only the first value of a repeated query parameter
// is kept.
//
// Example:
//
//	harvest:page:www.azquotes.com/quotes/topics/life.html:p=2
func (k PageKey) String() string {
	parts := []string{KeyPrefix}

	u, err := url.Parse(k.URL)
	if err != nil || u.Host == "" {
		return strings.Join(append(parts, strings.TrimSpace(k.URL)), ":")
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")
	parts = append(parts, strings.ToLower(u.Host)+path)

	// Add query params (sorted for determinism)
	query := u.Query()
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, query.Get(key)))
		}
	}

	return strings.Join(parts, ":")
}
