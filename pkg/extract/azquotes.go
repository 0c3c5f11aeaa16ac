package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// azquotes.com markup.
const (
	azBlockSel   = "div.wrap-block"
	azTitleSel   = "a.title"
	azAuthorSel  = "div.author"
	azTagSel     = "div.mytags a"
	azLikesSel   = "div.share-icons a.heart24, div.share-icons a.heart24-off"
	azPagerSel   = "div.pager span"
	azTopicsSel  = "section.authors-page li"
	azAuthorsSel = "tbody tr"
)

// azPager reads "Page 1 of 12" style pagers shared by all azquotes listings.
func azPager(doc *goquery.Document) (string, bool) {
	span := doc.Find(azPagerSel).First()
	if span.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(span.Text()), true
}

type azQuotes struct{}

func (azQuotes) FindPagerText(doc *goquery.Document) (string, bool) { return azPager(doc) }

func (azQuotes) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	now := time.Now().UTC()
	var out []Record

	doc.Find(azBlockSel).Each(func(_ int, blk *goquery.Selection) {
		title := blk.Find(azTitleSel).First()
		text := normalizeSpaces(title.Text())
		if text == "" {
			return
		}

		var tags []string
		blk.Find(azTagSel).Each(func(_ int, a *goquery.Selection) {
			if t := strings.TrimSpace(a.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		sourceURL := pageURL
		if href, ok := title.Attr("href"); ok && href != "" {
			sourceURL = resolve(pageURL, SiteAZQuotes.BaseURL(), href)
		}

		author := stringPtr(strings.TrimSpace(blk.Find(azAuthorSel).First().Text()))
		likes := leadingInt(blk.Find(azLikesSel).First().Text())

		out = append(out, newQuote(SiteAZQuotes, text, author, tags, likes, sourceURL, now))
	})

	return out, nil
}

type azAuthors struct{}

func (azAuthors) FindPagerText(doc *goquery.Document) (string, bool) { return azPager(doc) }

func (azAuthors) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	rows := doc.Find(azAuthorsSel)
	if doc.Find("tbody").Length() == 0 {
		return nil, &ExtractionError{
			Source: Source{SiteAZQuotes, ListingAuthors},
			URL:    pageURL,
			Reason: "author table not found",
		}
	}

	var out []Record
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() == 0 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		if name == "" {
			return
		}
		href, _ := row.Find("a").First().Attr("href")

		out = append(out, Author{
			Name:       name,
			URL:        resolve(pageURL, SiteAZQuotes.BaseURL(), href),
			Profession: strings.TrimSpace(cells.Eq(1).Text()),
			Birthday:   strings.TrimSpace(cells.Eq(2).Text()),
			Source:     SiteAZQuotes,
		})
	})
	return out, nil
}

type azTopics struct{}

func (azTopics) FindPagerText(doc *goquery.Document) (string, bool) { return azPager(doc) }

func (azTopics) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	if doc.Find("section.authors-page").Length() == 0 {
		return nil, &ExtractionError{
			Source: Source{SiteAZQuotes, ListingTopics},
			URL:    pageURL,
			Reason: "topic section not found",
		}
	}

	var out []Record
	doc.Find(azTopicsSel).Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		name := strings.TrimSpace(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		out = append(out, Topic{
			Name:   name,
			URL:    resolve(pageURL, SiteAZQuotes.BaseURL(), href),
			Source: SiteAZQuotes,
		})
	})
	return out, nil
}
