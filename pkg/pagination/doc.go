// Package pagination discovers how many pages a paginated listing has.
//
// Discovery fetches the listing's first page, asks the site's extractor for
// the pager text and parses its last token as the page count:
//
//	d := pagination.NewDiscoverer(fetcher)
//	n := d.DiscoverPageCount(ctx, src, "https://www.azquotes.com/quotes/topics/life.html")
//	for p := 1; p <= n; p++ {
//		u, _ := pagination.PageURL(base, src.Site.PageParam(), p)
//	}
//
// Discovery fails open: a page that cannot be fetched, has no pager or has
// an unparseable pager counts as a single page. Results are memoised per
// Discoverer, so one Discoverer should live for exactly one harvest run.
package pagination
