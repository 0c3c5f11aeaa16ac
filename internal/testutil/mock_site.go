// Package testutil provides testing utilities for the quote harvester.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockSiteResponse defines the behavior for a mock page response.
type MockSiteResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSite is a configurable mock quote website for testing.
type MockSite struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount  int
	requestsByURI map[string]int
	lastUserAgent string
	inFlight      int
	maxInFlight   int
}

// NewMockSite creates a new mock quote site.
func NewMockSite() *MockSite {
	mock := &MockSite{
		handlers:      make(map[string]func(w http.ResponseWriter, r *http.Request)),
		requestsByURI: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.requestsByURI[r.URL.RequestURI()]++
		mock.lastUserAgent = r.UserAgent()
		mock.inFlight++
		if mock.inFlight > mock.maxInFlight {
			mock.maxInFlight = mock.inFlight
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}
		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSite) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSite) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSite) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.requestsByURI = make(map[string]int)
	m.lastUserAgent = ""
	m.maxInFlight = m.inFlight
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSite) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockSite) SetResponse(path string, resp MockSiteResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		writeResponse(w, r, resp)
	})
}

// SetSequence serves resps in order for successive requests to path. The
// last response repeats once the sequence is used up.
func (m *MockSite) SetSequence(path string, resps ...MockSiteResponse) {
	var mu sync.Mutex
	next := 0
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[min(next, len(resps)-1)]
		next++
		mu.Unlock()
		writeResponse(w, r, resp)
	})
}

// SetListing serves an azquotes-style quote listing at path with the given
// number of pages selected by the "p" query parameter. Every page holds
// perPage quotes and a "Page N of pages" pager. Pages past the end are 404.
func (m *MockSite) SetListing(path string, pages, perPage int, delay time.Duration) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if p := r.URL.Query().Get("p"); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				http.Error(w, "bad page", http.StatusBadRequest)
				return
			}
			page = n
		}
		if page < 1 || page > pages {
			writeResponse(w, r, MockSiteResponse{StatusCode: http.StatusNotFound, Delay: delay})
			return
		}

		quotes := make([]string, perPage)
		for i := range quotes {
			quotes[i] = fmt.Sprintf("Quote %d of page %d on %s.", i+1, page, path)
		}
		writeResponse(w, r, NewPageResponse(AZQuotesPage(quotes, page, pages), delay))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSite) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// GetRequestCountFor returns the number of requests for a request URI
// (path plus query).
func (m *MockSite) GetRequestCountFor(requestURI string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsByURI[requestURI]
}

// MaxInFlight returns the highest number of concurrently served requests.
func (m *MockSite) MaxInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxInFlight
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockSite) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp MockSiteResponse) {
	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewPageResponse creates a 200 OK HTML response.
func NewPageResponse(html string, delay time.Duration) MockSiteResponse {
	return MockSiteResponse{
		StatusCode: http.StatusOK,
		Body:       html,
		Delay:      delay,
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 503 Service Unavailable response.
func NewServerErrorResponse() MockSiteResponse {
	return MockSiteResponse{
		StatusCode: http.StatusServiceUnavailable,
		Body:       "<html><body>Service Unavailable</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response asking the
// client to wait retryAfter seconds.
func NewRateLimitResponse(retryAfter int) MockSiteResponse {
	return MockSiteResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfter),
			"Content-Type": "text/html; charset=utf-8",
		},
	}
}

// AZQuotesPage renders an azquotes-style listing page. A total of 0 omits
// the pager.
func AZQuotesPage(quotes []string, page, total int) string {
	var b strings.Builder
	b.WriteString("<html><body><ul class=\"list-quotes\">\n")
	for i, q := range quotes {
		fmt.Fprintf(&b, `<li><div class="wrap-block">
<p><a class="title" href="/quote/%d-%d">%s</a></p>
<div class="author"><a href="/author/%d">Author %d</a></div>
<div class="mytags"><a href="/quotes/topics/test.html">test</a></div>
<div class="share-icons"><a class="heart24 heart24-off" href="#">%d likes</a></div>
</div></li>
`, page, i, q, i, i, (i+1)*10)
	}
	b.WriteString("</ul>\n")
	if total > 0 {
		fmt.Fprintf(&b, "<div class=\"pager\"><span>Page %d of %d</span></div>\n", page, total)
	}
	b.WriteString("</body></html>\n")
	return b.String()
}
