package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/harvest"
	"github.com/quoteharvest/harvester/pkg/pagination"
)

// parseTopics splits a comma-separated topic list, dropping blanks and
// duplicates while keeping the given order.
func parseTopics(raw string) []string {
	seen := make(map[string]bool)
	var topics []string
	for _, t := range strings.Split(raw, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		topics = append(topics, t)
	}
	return topics
}

// siteRoot returns override when set, else the site's public root.
func siteRoot(site extract.Site, override string) string {
	if override != "" {
		return strings.TrimRight(override, "/")
	}
	return site.BaseURL()
}

// topicURL returns the first page of a site's quote listing for topic.
func topicURL(root string, site extract.Site, topic string) (string, error) {
	words := strings.Fields(topic)
	switch site {
	case extract.SiteAZQuotes:
		return root + "/quotes/topics/" + url.PathEscape(strings.Join(words, "-")) + ".html", nil
	case extract.SiteGoodreads:
		return root + "/quotes/tag/" + url.PathEscape(strings.Join(words, "-")), nil
	case extract.SiteFamousQuotes:
		return root + "/topics/" + url.PathEscape(strings.Join(words, "_")) + "_quotes.html", nil
	}
	return "", fmt.Errorf("%w: site %q", extract.ErrUnsupportedSource, site)
}

// planQuotes adds pages start..end of every topic. famousquotes topic pages
// are never paginated.
func planQuotes(ctx context.Context, p *harvest.Planner, root string, site extract.Site, topics []string, start, end int) error {
	src := extract.Source{Site: site, Listing: extract.ListingQuotes}
	for _, topic := range topics {
		u, err := topicURL(root, site, topic)
		if err != nil {
			return err
		}
		if site.PageParam() == "" {
			p.Single(src, u)
			continue
		}
		if _, err := p.Range(ctx, src, u, start, end); err != nil {
			return fmt.Errorf("topic %s: %w", topic, err)
		}
	}
	return nil
}

// indexListing describes where a site publishes an authors or topics index.
// A nil pages selects the site's page query parameter.
type indexListing struct {
	path      string
	perLetter bool
	pages     pagination.URLFunc
}

var indexListings = map[extract.Source]indexListing{
	{Site: extract.SiteAZQuotes, Listing: extract.ListingAuthors}:     {path: "/quotes/authors/" + harvest.LetterPlaceholder + "/", perLetter: true, pages: pagination.PathPages},
	{Site: extract.SiteAZQuotes, Listing: extract.ListingTopics}:      {path: "/quotes/tags/" + harvest.LetterPlaceholder + "/", perLetter: true},
	{Site: extract.SiteGoodreads, Listing: extract.ListingTopics}:     {path: "/quotes"},
	{Site: extract.SiteFamousQuotes, Listing: extract.ListingTopics}:  {path: "/quotes_by_topic.html"},
	{Site: extract.SiteFamousQuotes, Listing: extract.ListingAuthors}: {path: "/quotes_by_author.html"},
}

// planIndex adds every page of the authors or topics index of a site.
func planIndex(ctx context.Context, p *harvest.Planner, root string, src extract.Source) error {
	listing, ok := indexListings[src]
	if !ok {
		return fmt.Errorf("%w: no index for %s", extract.ErrUnsupportedSource, src)
	}
	if listing.perLetter {
		_, err := p.Index(ctx, harvest.IndexSeed{Source: src, URLPattern: root + listing.path, Pages: listing.pages})
		return err
	}
	if src.Site.PageParam() == "" {
		p.Single(src, root+listing.path)
		return nil
	}
	_, err := p.Range(ctx, src, root+listing.path, 1, 0)
	return err
}
