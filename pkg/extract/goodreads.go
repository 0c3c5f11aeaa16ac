package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// goodreads.com markup.
const (
	grBlockSel     = "div.quote.mediumText"
	grQuoteTextSel = "div.quoteText"
	grAuthorSel    = "span.authorOrTitle"
	grLikesLinkSel = "div.quoteFooter a.smallText"
	grTagLinkSel   = "div.quoteFooter a[href*='/quotes/tag/']"
	grPagerSel     = "div.pagination"
	grTopicSel     = "li.greyText"
)

// grPager returns the page numbers of a will_paginate block with the
// previous/next links removed, so the last token is the highest page.
func grPager(doc *goquery.Document) (string, bool) {
	pager := doc.Find(grPagerSel).First()
	if pager.Length() == 0 {
		return "", false
	}
	p := pager.Clone()
	p.Find(".previous_page, .next_page").Remove()
	return normalizeSpaces(p.Text()), true
}

type grQuotes struct{}

func (grQuotes) FindPagerText(doc *goquery.Document) (string, bool) { return grPager(doc) }

func (grQuotes) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	now := time.Now().UTC()
	var out []Record

	doc.Find(grBlockSel).Each(func(_ int, blk *goquery.Selection) {
		author := stringPtr(strings.TrimSpace(strings.TrimRight(strings.TrimSpace(blk.Find(grAuthorSel).First().Text()), ",")))

		// The quote text node also holds the author span and the
		// "likes" link.
		q := blk.Find(grQuoteTextSel).First().Clone()
		q.Find(grAuthorSel).Remove()
		q.Find("a.smallText").Remove()
		q.Find("br").Remove()
		text := strings.Trim(normalizeSpaces(q.Text()), " ―-,")
		if text == "" {
			return
		}

		var tags []string
		blk.Find(grTagLinkSel).Each(func(_ int, a *goquery.Selection) {
			if t := strings.TrimSpace(a.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		likes := leadingInt(blk.Find(grLikesLinkSel).First().Text())

		out = append(out, newQuote(SiteGoodreads, text, author, tags, likes, pageURL, now))
	})

	return out, nil
}

type grTopics struct{}

func (grTopics) FindPagerText(doc *goquery.Document) (string, bool) { return grPager(doc) }

func (grTopics) ExtractRecords(doc *goquery.Document, pageURL string) ([]Record, error) {
	var out []Record
	doc.Find(grTopicSel).Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		// "love 123,456 quotes" -> "love"
		fields := strings.Fields(li.Text())
		if len(fields) == 0 {
			return
		}
		out = append(out, Topic{
			Name:   fields[0],
			URL:    resolve(pageURL, SiteGoodreads.BaseURL(), href),
			Source: SiteGoodreads,
		})
	})
	return out, nil
}
