package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// famousquotesandauthors.com markup. The site has no CSS classes, only
// inline styles.
const (
	fqCellSel         = `td[style="padding-left:16px; padding-right:16px;"][valign="top"]`
	fqCellFallbackSel = `td[valign="top"]`
	fqQuoteSel        = `div[style="font-size:12px;font-family:Arial;"]`
	fqAuthorSel       = `div[style="padding-top:2px;"] a`
	fqHeaderSel       = `div[style*="font-size:19px"][style*="Times New Roman"]`
	fqTopicRowSel     = `tr[height="14"] a`
	fqAuthorRowSel    = `tr[height="15"] a`
)

// famousquotes listings are single pages.
func fqPager(*goquery.Document) (string, bool) { return "", false }

type fqQuotes struct{}

func (fqQuotes) FindPagerText(doc *goquery.Document) (string, bool) { return fqPager(doc) }

func (fqQuotes) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	src := Source{SiteFamousQuotes, ListingQuotes}

	cell := doc.Find(fqCellSel).First()
	if cell.Length() == 0 {
		cell = doc.Find(fqCellFallbackSel).Has(`div[style*="font-size:12px"]`).First()
	}
	if cell.Length() == 0 {
		return nil, &ExtractionError{Source: src, URL: pageURL, Reason: "quote cell not found"}
	}

	var tags []string
	if hdr := strings.TrimSpace(cell.Find(fqHeaderSel).First().Text()); hdr != "" {
		if idx := strings.Index(hdr, " Quote"); idx > 0 {
			hdr = strings.TrimSpace(hdr[:idx])
		}
		tags = []string{hdr}
	}

	var quotes []string
	cell.Find(fqQuoteSel).Each(func(_ int, q *goquery.Selection) {
		quotes = append(quotes, normalizeSpaces(q.Text()))
	})

	var authors []string
	cell.Find(fqAuthorSel).Each(func(_ int, a *goquery.Selection) {
		authors = append(authors, strings.TrimSpace(a.Text()))
	})

	// Quotes and authors are sibling lists paired by position.
	if len(quotes) != len(authors) {
		return nil, &ExtractionError{
			Source: src,
			URL:    pageURL,
			Reason: fmt.Sprintf("%d quotes but %d authors", len(quotes), len(authors)),
		}
	}

	now := time.Now().UTC()
	out := make([]Record, 0, len(quotes))
	for i, text := range quotes {
		if text == "" {
			continue
		}
		out = append(out, newQuote(SiteFamousQuotes, text, stringPtr(authors[i]), tags, nil, pageURL, now))
	}
	return out, nil
}

type fqAuthors struct{}

func (fqAuthors) FindPagerText(doc *goquery.Document) (string, bool) { return fqPager(doc) }

func (fqAuthors) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	var out []Record
	doc.Find(fqAuthorRowSel).Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		out = append(out, Author{
			Name:   name,
			URL:    resolve(pageURL, SiteFamousQuotes.BaseURL(), href),
			Source: SiteFamousQuotes,
		})
	})
	return out, nil
}

type fqTopics struct{}

func (fqTopics) FindPagerText(doc *goquery.Document) (string, bool) { return fqPager(doc) }

func (fqTopics) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	var out []Record
	doc.Find(fqTopicRowSel).Each(func(_ int, a *goquery.Selection) {
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		out = append(out, Topic{
			Name:   name,
			URL:    resolve(pageURL, SiteFamousQuotes.BaseURL(), href),
			Source: SiteFamousQuotes,
		})
	})
	return out, nil
}
