package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/fetch"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Discovery results.
const (
	resultPager       = "pager"
	resultNoPager     = "no_pager"
	resultFetchFailed = "fetch_failed"
	resultParseError  = "parse_error"
)

var discoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "harvest_pagination_discoveries_total",
	Help: "Total number of page count discoveries by result",
}, []string{"result"})

// ErrNoPageParam is returned by PageURL for page > 1 on a site without a
// page query parameter.
var ErrNoPageParam = errors.New("site has no page parameter")

// ParseError reports pager text whose last token is not a page number.
type ParseError struct {
	URL  string
	Text string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse pager %q on %s: %v", e.Text, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// PageFetcher is the part of *fetch.Fetcher the Discoverer needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) fetch.Outcome
}

// Discoverer determines page counts, memoising them per listing URL.
type Discoverer struct {
	fetcher PageFetcher
	logger  zerolog.Logger

	mu    sync.Mutex
	memo  map[string]int
	group singleflight.Group
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(fetcher PageFetcher) *Discoverer {
	return &Discoverer{
		fetcher: fetcher,
		logger:  logging.NewLogger("pagination"),
		memo:    make(map[string]int),
	}
}

// DiscoverPageCount returns the number of pages of listingURL, always >= 1.
// Concurrent calls for the same URL share one fetch.
func (d *Discoverer) DiscoverPageCount(ctx context.Context, src extract.Source, listingURL string) int {
	key := src.String() + " " + listingURL

	d.mu.Lock()
	n, ok := d.memo[key]
	d.mu.Unlock()
	if ok {
		return n
	}

	v, _, _ := d.group.Do(key, func() (any, error) {
		d.mu.Lock()
		n, ok := d.memo[key]
		d.mu.Unlock()
		if ok {
			return n, nil
		}

		n = d.discover(ctx, src, listingURL)
		// A cancelled run says nothing about the listing.
		if ctx.Err() == nil {
			d.mu.Lock()
			d.memo[key] = n
			d.mu.Unlock()
		}
		return n, nil
	})
	return v.(int)
}

func (d *Discoverer) discover(ctx context.Context, src extract.Source, listingURL string) int {
	out := d.fetcher.Fetch(ctx, listingURL)
	if !out.OK() {
		discoveriesTotal.WithLabelValues(resultFetchFailed).Inc()
		d.logger.Warn().
			Err(out.Err()).
			Str("url", listingURL).
			Msg("Page count discovery failed, assuming a single page")
		return 1
	}

	extractor, err := extract.Lookup(src)
	if err != nil {
		discoveriesTotal.WithLabelValues(resultNoPager).Inc()
		d.logger.Warn().Err(err).Str("url", listingURL).Msg("No extractor for source, assuming a single page")
		return 1
	}

	doc, err := extract.Parse(out.Body)
	if err != nil {
		discoveriesTotal.WithLabelValues(resultParseError).Inc()
		d.logger.Warn().Err(err).Str("url", listingURL).Msg("Listing page is not parseable, assuming a single page")
		return 1
	}

	text, ok := extractor.FindPagerText(doc)
	if !ok {
		discoveriesTotal.WithLabelValues(resultNoPager).Inc()
		d.logger.Debug().Str("url", listingURL).Msg("No pager found, single page listing")
		return 1
	}

	n, err := ParsePageCount(text)
	if err != nil {
		discoveriesTotal.WithLabelValues(resultParseError).Inc()
		d.logger.Warn().
			Err(&ParseError{URL: listingURL, Text: text, Err: err}).
			Str("url", listingURL).
			Msg("Malformed pager, assuming a single page")
		return 1
	}

	discoveriesTotal.WithLabelValues(resultPager).Inc()
	d.logger.Info().
		Str("url", listingURL).
		Str("source", src.String()).
		Int("total_pages", n).
		Msg("Discovered page count")
	return n
}

// ParsePageCount parses the last whitespace token of pager text, ignoring
// thousands separators. Counts below 1 are reported as 1.
func ParsePageCount(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, errors.New("empty pager text")
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[len(fields)-1], ",", ""))
	if err != nil {
		return 0, err
	}
	return max(n, 1), nil
}

// PageURL returns the URL of page n of the listing at base, selecting the
// page through the key query parameter. Page 1 is base itself so that
// discovery and the first page share one cached body.
func PageURL(base, key string, n int) (string, error) {
	if n <= 1 {
		return base, nil
	}
	if key == "" {
		return "", fmt.Errorf("%w: page %d of %s", ErrNoPageParam, n, base)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	q := u.Query()
	q.Set(key, strconv.Itoa(n))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// URLFunc returns the URL of page n (1-based) of the listing at base.
type URLFunc func(base string, n int) (string, error)

// QueryPages selects pages through the key query parameter, as PageURL does.
func QueryPages(key string) URLFunc {
	return func(base string, n int) (string, error) {
		return PageURL(base, key, n)
	}
}

// PathPages appends the page number as the last path segment, page 1
// included: ".../authors/a/" becomes ".../authors/a/1".
func PathPages(base string, n int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strconv.Itoa(max(n, 1))
	u.RawPath = ""
	return u.String(), nil
}
