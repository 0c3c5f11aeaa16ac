package harvest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/quoteharvest/harvester/pkg/pagination"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LetterPlaceholder is replaced by each letter in IndexSeed.URLPattern.
const LetterPlaceholder = "{letter}"

// Letters are the index keys of per-letter listings.
var Letters = strings.Split("abcdefghijklmnopqrstuvwxyz", "")

// PageCounter is the part of *pagination.Discoverer the Planner needs.
type PageCounter interface {
	DiscoverPageCount(ctx context.Context, src extract.Source, listingURL string) int
}

// IndexSeed describes a listing split across one sub-listing per letter,
// such as "https://www.azquotes.com/quotes/authors/{letter}/".
type IndexSeed struct {
	Source     extract.Source
	URLPattern string

	// Pages builds page URLs of one letter's listing. Page 1 is also the
	// discovery URL. Default: the site's page query parameter.
	Pages pagination.URLFunc
}

// Planner accumulates the WorkItems of a run.
type Planner struct {
	counter     PageCounter
	concurrency int
	logger      zerolog.Logger

	mu    sync.Mutex
	items []WorkItem
}

// NewPlanner creates a Planner. concurrency bounds parallel discoveries and
// should match the Scheduler's width.
func NewPlanner(counter PageCounter, concurrency int) *Planner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Planner{
		counter:     counter,
		concurrency: concurrency,
		logger:      logging.NewLogger("planner"),
	}
}

// Single adds one unpaginated page.
func (p *Planner) Single(src extract.Source, pageURL string) {
	p.append([]WorkItem{{Source: src, URL: pageURL, Page: 1}})
}

// Range adds pages start..end of the listing at baseURL. end is clamped to
// the discovered page count; end <= 0 means every page. Returns the number
// of items added.
func (p *Planner) Range(ctx context.Context, src extract.Source, baseURL string, start, end int) (int, error) {
	items, err := p.rangeItems(ctx, src, baseURL, "", start, end, nil)
	if err != nil {
		return 0, err
	}
	p.append(items)
	return len(items), nil
}

func (p *Planner) rangeItems(ctx context.Context, src extract.Source, baseURL, letter string, start, end int, pages pagination.URLFunc) ([]WorkItem, error) {
	if pages == nil {
		pages = pagination.QueryPages(src.Site.PageParam())
	}
	start = max(start, 1)

	first, err := pages(baseURL, 1)
	if err != nil {
		return nil, fmt.Errorf("build page 1 url: %w", err)
	}
	total := p.counter.DiscoverPageCount(ctx, src, first)
	if end <= 0 || end > total {
		if end > total {
			p.logger.Info().
				Str("url", baseURL).
				Int("requested_end", end).
				Int("total_pages", total).
				Msg("Clamping page range to discovered page count")
		}
		end = total
	}
	if start > end {
		return nil, nil
	}

	items := make([]WorkItem, 0, end-start+1)
	for page := start; page <= end; page++ {
		u, err := pages(baseURL, page)
		if err != nil {
			return nil, fmt.Errorf("build page %d url: %w", page, err)
		}
		items = append(items, WorkItem{Source: src, URL: u, Page: page, Letter: letter})
	}
	return items, nil
}

// Index discovers every letter of seed independently and adds one item per
// (letter, page). Letters are discovered concurrently; items are added in
// letter order.
func (p *Planner) Index(ctx context.Context, seed IndexSeed) (int, error) {
	if !strings.Contains(seed.URLPattern, LetterPlaceholder) {
		return 0, fmt.Errorf("index pattern %q has no %s placeholder", seed.URLPattern, LetterPlaceholder)
	}

	perLetter := make([][]WorkItem, len(Letters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, letter := range Letters {
		g.Go(func() error {
			base := strings.ReplaceAll(seed.URLPattern, LetterPlaceholder, letter)
			items, err := p.rangeItems(gctx, seed.Source, base, letter, 1, 0, seed.Pages)
			if err != nil {
				return fmt.Errorf("letter %s: %w", letter, err)
			}
			perLetter[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, items := range perLetter {
		p.append(items)
		n += len(items)
	}

	p.logger.Info().
		Str("source", seed.Source.String()).
		Int("letters", len(Letters)).
		Int("items", n).
		Msg("Index expanded")
	return n, nil
}

// Items returns the plan with sequential Seq values.
func (p *Planner) Items() []WorkItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]WorkItem, len(p.items))
	copy(out, p.items)
	return out
}

func (p *Planner) append(items []WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, it := range items {
		it.Seq = len(p.items)
		p.items = append(p.items, it)
	}
}
