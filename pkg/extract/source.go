// Package extract turns fetched quote-site pages into records.
//
// Each supported (Site, Listing) pair has one PageExtractor in a fixed
// dispatch table. Extractors are pure: they take a parsed document and the
// URL it came from and never touch the network.
package extract

import (
	"fmt"
	"strings"
)

// Site identifies a quote website.
type Site string

// Supported sites.
const (
	SiteAZQuotes     Site = "azquotes"
	SiteGoodreads    Site = "goodreads"
	SiteFamousQuotes Site = "famousquotes"
)

// Sites lists every supported site.
var Sites = []Site{SiteAZQuotes, SiteGoodreads, SiteFamousQuotes}

// PageParam returns the query parameter that selects a listing page.
// An empty key means the site does not paginate through the query string.
func (s Site) PageParam() string {
	switch s {
	case SiteAZQuotes:
		return "p"
	case SiteGoodreads:
		return "page"
	default:
		return ""
	}
}

// BaseURL returns the site root used to resolve relative links.
func (s Site) BaseURL() string {
	switch s {
	case SiteAZQuotes:
		return "https://www.azquotes.com"
	case SiteGoodreads:
		return "https://www.goodreads.com"
	case SiteFamousQuotes:
		return "http://www.famousquotesandauthors.com"
	default:
		return ""
	}
}

// ParseSite maps a name to a Site.
func ParseSite(name string) (Site, error) {
	s := Site(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Sites {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: site %q", ErrUnsupportedSource, name)
}

// Listing identifies the kind of page within a site.
type Listing string

// Supported listings.
const (
	ListingQuotes  Listing = "quotes"
	ListingAuthors Listing = "authors"
	ListingTopics  Listing = "topics"
)

// ParseListing maps a name to a Listing.
func ParseListing(name string) (Listing, error) {
	l := Listing(strings.ToLower(strings.TrimSpace(name)))
	switch l {
	case ListingQuotes, ListingAuthors, ListingTopics:
		return l, nil
	}
	return "", fmt.Errorf("%w: listing %q", ErrUnsupportedSource, name)
}

// Source is the (Site, Listing) pair a WorkItem is extracted with.
type Source struct {
	Site    Site
	Listing Listing
}

// String returns "site/listing".
func (s Source) String() string {
	return string(s.Site) + "/" + string(s.Listing)
}
