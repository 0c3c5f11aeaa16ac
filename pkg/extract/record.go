package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// Record is one item extracted from a page.
type Record interface {
	// Key identifies the record across pages and runs.
	Key() string
}

// Quote is a quote with its attribution.
type Quote struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"quote" yaml:"quote"`
	Author    *string   `json:"author,omitempty" yaml:"author,omitempty"`
	Tags      []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
	Likes     *int      `json:"likes,omitempty" yaml:"likes,omitempty"`
	Source    Site      `json:"source" yaml:"source"`
	SourceURL string    `json:"source_url" yaml:"source_url"`
	ScrapedAt time.Time `json:"scraped_at" yaml:"scraped_at"`
}

// Key implements Record.
func (q Quote) Key() string { return q.ID }

// Author is an entry of an author index.
type Author struct {
	Name       string `json:"author" yaml:"author"`
	URL        string `json:"url" yaml:"url"`
	Profession string `json:"profession,omitempty" yaml:"profession,omitempty"`
	Birthday   string `json:"birthday,omitempty" yaml:"birthday,omitempty"`
	Source     Site   `json:"source" yaml:"source"`
}

// Key implements Record.
func (a Author) Key() string {
	return "author:" + string(a.Source) + ":" + strings.ToLower(a.Name)
}

// Topic is an entry of a topic index.
type Topic struct {
	Name   string `json:"topic" yaml:"topic"`
	URL    string `json:"url" yaml:"url"`
	Source Site   `json:"source" yaml:"source"`
}

// Key implements Record.
func (t Topic) Key() string {
	return "topic:" + string(t.Source) + ":" + strings.ToLower(t.Name)
}

// QuoteID returns sha1(lower(text)|lower(author)|site) in hex. A missing
// author hashes as the empty string.
func QuoteID(text string, author *string, site Site) string {
	a := ""
	if author != nil {
		a = *author
	}
	h := sha1.Sum([]byte(strings.ToLower(text) + "|" + strings.ToLower(a) + "|" + string(site)))
	return hex.EncodeToString(h[:])
}

func newQuote(site Site, text string, author *string, tags []string, likes *int, sourceURL string, at time.Time) Quote {
	return Quote{
		ID:        QuoteID(text, author, site),
		Text:      text,
		Author:    author,
		Tags:      tags,
		Likes:     likes,
		Source:    site,
		SourceURL: sourceURL,
		ScrapedAt: at,
	}
}
