package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupportedSource is returned for a (Site, Listing) pair with no extractor.
var ErrUnsupportedSource = errors.New("unsupported source")

// ExtractionError reports markup that does not have the expected structure.
type ExtractionError struct {
	Source Source
	URL    string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract %s from %s: %s", e.Source, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// PageExtractor pulls records and the pager out of one site's pages.
type PageExtractor interface {
	// ExtractRecords returns the records on the page. An empty page is not
	// an error; unexpected markup is reported as *ExtractionError.
	ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error)

	// FindPagerText returns the text of the page navigation, if any.
	FindPagerText(doc *goquery.Document) (string, bool)
}

var extractors = map[Source]PageExtractor{
	{SiteAZQuotes, ListingQuotes}:      azQuotes{},
	{SiteAZQuotes, ListingAuthors}:     azAuthors{},
	{SiteAZQuotes, ListingTopics}:      azTopics{},
	{SiteGoodreads, ListingQuotes}:     grQuotes{},
	{SiteGoodreads, ListingTopics}:     grTopics{},
	{SiteFamousQuotes, ListingQuotes}:  fqQuotes{},
	{SiteFamousQuotes, ListingAuthors}: fqAuthors{},
	{SiteFamousQuotes, ListingTopics}:  fqTopics{},
}

// Lookup returns the extractor for src.
func Lookup(src Source) (PageExtractor, error) {
	e, ok := extractors[src]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, src)
	}
	return e, nil
}

// Parse builds a document from a page body.
func Parse(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// resolve makes href absolute against pageURL, falling back to base.
func resolve(pageURL, base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if ref.IsAbs() {
		return ref.String()
	}
	for _, root := range []string{pageURL, base} {
		if u, err := url.Parse(root); err == nil && u.IsAbs() {
			return u.ResolveReference(ref).String()
		}
	}
	return href
}

// leadingInt parses the first whitespace token of s, ignoring thousands
// separators. Returns nil when there is no number.
func leadingInt(s string) *int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
