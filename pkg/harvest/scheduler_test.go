package harvest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/quoteharvest/harvester/internal/testutil"
	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/fetch"
	"github.com/quoteharvest/harvester/pkg/pagination"
)

var azQuotes = extract.Source{Site: extract.SiteAZQuotes, Listing: extract.ListingQuotes}

// countingFetcher serves one azquotes page per URL and records the highest
// number of concurrent Fetch calls.
type countingFetcher struct {
	delay    time.Duration
	failURLs map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (c *countingFetcher) Fetch(ctx context.Context, rawURL string) fetch.Outcome {
	c.calls.Add(1)
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		cur := c.maxInFlight.Load()
		if n <= cur || c.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return fetch.Outcome{URL: rawURL, Attempts: 1, Failure: &fetch.Failure{Kind: fetch.KindCancelled, Attempts: 1, Detail: ctx.Err().Error()}}
		}
	}

	if code, ok := c.failURLs[rawURL]; ok {
		return fetch.Outcome{URL: rawURL, StatusCode: code, Attempts: 1, Failure: &fetch.Failure{Kind: fetch.KindHTTPStatus, StatusCode: code, Attempts: 1}}
	}

	body := testutil.AZQuotesPage([]string{"First on " + rawURL, "Second on " + rawURL}, 1, 0)
	return fetch.Outcome{URL: rawURL, Body: []byte(body), StatusCode: 200, Attempts: 1}
}

func makeItems(n int) []WorkItem {
	items := make([]WorkItem, n)
	for i := range items {
		items[i] = WorkItem{Source: azQuotes, URL: fmt.Sprintf("https://www.azquotes.com/list?p=%d", i+1), Seq: i, Page: i + 1}
	}
	return items
}

func recordKeys(recs []extract.Record) []string {
	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key()
	}
	sort.Strings(keys)
	return keys
}

func TestHarvest_EndToEnd(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetListing("/quotes/topics/life.html", 3, 2, 0)

	f := fetch.New(fetch.DefaultConfig("test-agent"))
	planner := NewPlanner(pagination.NewDiscoverer(f), 4)

	n, err := planner.Range(context.Background(), azQuotes, site.URL()+"/quotes/topics/life.html", 1, 3)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("Range() added %d items, want 3", n)
	}

	result := NewScheduler(f).Harvest(context.Background(), planner.Items(), 4)

	if got := result.Len(); got != 6 {
		t.Errorf("records = %d, want 6", got)
	}
	if failures := result.Failures(); len(failures) != 0 {
		t.Errorf("failures = %v, want none", failures)
	}
	if result.Submitted != 3 || result.Succeeded() != 3 {
		t.Errorf("Submitted = %d, Succeeded = %d, want 3 and 3", result.Submitted, result.Succeeded())
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
}

func TestPlanner_RangeClampsToDiscoveredPages(t *testing.T) {
	site := testutil.NewMockSite()
	defer site.Close()
	site.SetListing("/quotes/topics/life.html", 3, 2, 0)

	f := fetch.New(fetch.DefaultConfig("test-agent"))
	planner := NewPlanner(pagination.NewDiscoverer(f), 4)

	n, err := planner.Range(context.Background(), azQuotes, site.URL()+"/quotes/topics/life.html", 1, 100)
	if err != nil {
		t.Fatalf("Range() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Range(1, 100) added %d items, want 3", n)
	}

	result := NewScheduler(f).Harvest(context.Background(), planner.Items(), 4)
	if result.Len() != 6 || len(result.Failures()) != 0 {
		t.Errorf("records = %d, failures = %d, want 6 and 0", result.Len(), len(result.Failures()))
	}
	// Discovery and page 1 share a URL; pages 4..100 are never requested.
	if got := site.GetRequestCountFor("/quotes/topics/life.html?p=4"); got != 0 {
		t.Errorf("page 4 requested %d times", got)
	}
}

func TestHarvest_FailureIsolation(t *testing.T) {
	items := makeItems(10)
	fetcher := &countingFetcher{failURLs: map[string]int{items[3].URL: 404}}

	s := NewScheduler(fetcher)
	s.Extractors = func(src extract.Source) (extract.PageExtractor, error) {
		base, err := extract.Lookup(src)
		if err != nil {
			return nil, err
		}
		return panicOn{PageExtractor: base, url: items[7].URL}, nil
	}

	result := s.Harvest(context.Background(), items, 3)

	failures := result.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2: %v", len(failures), failures)
	}
	kinds := map[FailureKind]string{}
	for _, f := range failures {
		kinds[f.Kind] = f.Item.URL
	}
	if kinds[FailureKind(fetch.KindHTTPStatus)] != items[3].URL {
		t.Errorf("missing http_status failure for %s: %v", items[3].URL, kinds)
	}
	if kinds[KindPanic] != items[7].URL {
		t.Errorf("missing panic failure for %s: %v", items[7].URL, kinds)
	}
	if got := result.Len(); got != 16 {
		t.Errorf("records = %d, want 16", got)
	}
	if result.Succeeded() != 8 {
		t.Errorf("Succeeded = %d, want 8", result.Succeeded())
	}
}

type panicOn struct {
	extract.PageExtractor
	url string
}

func (p panicOn) ExtractRecords(doc *goquery.Document, pageURL string) ([]extract.Record, error) {
	if pageURL == p.url {
		panic("extractor exploded")
	}
	return p.PageExtractor.ExtractRecords(doc, pageURL)
}

type failingExtractor struct{ extract.PageExtractor }

func (failingExtractor) ExtractRecords(*goquery.Document, string) ([]extract.Record, error) {
	return nil, &extract.ExtractionError{Reason: "layout changed"}
}

func TestHarvest_ExtractionError(t *testing.T) {
	s := NewScheduler(&countingFetcher{})
	s.Extractors = func(extract.Source) (extract.PageExtractor, error) { return failingExtractor{}, nil }

	result := s.Harvest(context.Background(), makeItems(2), 2)
	failures := result.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(failures))
	}
	var extErr *extract.ExtractionError
	if failures[0].Kind != KindExtraction || !errors.As(failures[0], &extErr) {
		t.Errorf("failure = %+v, want extraction", failures[0])
	}
}

// forgettingFetcher records which URLs the scheduler asked to forget.
type forgettingFetcher struct {
	countingFetcher

	mu        sync.Mutex
	forgotten []string
}

func (f *forgettingFetcher) Forget(ctx context.Context, rawURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgotten = append(f.forgotten, rawURL)
}

func TestHarvest_ExtractionErrorForgetsCachedPage(t *testing.T) {
	fetcher := &forgettingFetcher{}
	s := NewScheduler(fetcher)
	s.Extractors = func(extract.Source) (extract.PageExtractor, error) { return failingExtractor{}, nil }

	items := makeItems(3)
	s.Harvest(context.Background(), items, 2)

	sort.Strings(fetcher.forgotten)
	if len(fetcher.forgotten) != 3 || fetcher.forgotten[0] != items[0].URL {
		t.Errorf("forgotten = %v, want every item url", fetcher.forgotten)
	}

	// Successful pages stay cached.
	ok := &forgettingFetcher{}
	NewScheduler(ok).Harvest(context.Background(), makeItems(3), 2)
	if len(ok.forgotten) != 0 {
		t.Errorf("forgotten = %v, want none", ok.forgotten)
	}
}

func TestHarvest_UnsupportedSource(t *testing.T) {
	items := []WorkItem{{Source: extract.Source{Site: extract.SiteGoodreads, Listing: extract.ListingAuthors}, URL: "https://www.goodreads.com/x"}}
	fetcher := &countingFetcher{}
	result := NewScheduler(fetcher).Harvest(context.Background(), items, 1)

	if f := result.Failures(); len(f) != 1 || f[0].Kind != KindExtraction {
		t.Errorf("failures = %v, want one extraction failure", f)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("unsupported source should not be fetched")
	}
}

func TestHarvest_ConcurrencyBound(t *testing.T) {
	tests := []struct {
		name  string
		width int
		want  int
	}{
		{"width 1", 1, 1},
		{"width 4", 4, 4},
		{"default width", 0, DefaultConcurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &countingFetcher{delay: 20 * time.Millisecond}
			result := NewScheduler(fetcher).Harvest(context.Background(), makeItems(30), tt.width)

			if got := fetcher.maxInFlight.Load(); int(got) > tt.want {
				t.Errorf("max in flight = %d, want <= %d", got, tt.want)
			}
			if result.Len() != 60 {
				t.Errorf("records = %d, want 60", result.Len())
			}
		})
	}
}

func TestHarvest_Cancellation(t *testing.T) {
	items := makeItems(20)
	fetcher := &countingFetcher{delay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	result := NewScheduler(fetcher).Harvest(ctx, items, 2)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Harvest took %v after cancellation", elapsed)
	}

	failures := result.Failures()
	if len(failures)+result.Succeeded() != len(items) {
		t.Errorf("failures %d + succeeded %d != submitted %d", len(failures), result.Succeeded(), len(items))
	}
	for _, f := range failures {
		if f.Kind != KindCancelled {
			t.Errorf("failure kind = %s, want cancelled", f.Kind)
		}
		if !errors.Is(f, fetch.ErrContextCancelled) && f.Err == nil {
			t.Errorf("cancelled failure has no cause: %+v", f)
		}
	}
	if int(fetcher.calls.Load()) >= len(items) {
		t.Errorf("fetches = %d, want fewer than %d after cancellation", fetcher.calls.Load(), len(items))
	}
}

func TestHarvest_Idempotent(t *testing.T) {
	items := makeItems(8)
	s := NewScheduler(&countingFetcher{})

	first := recordKeys(s.Harvest(context.Background(), items, 3).Records())
	second := recordKeys(s.Harvest(context.Background(), items, 5).Records())

	if len(first) != len(second) {
		t.Fatalf("record counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("record sets differ at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestHarvest_OnProgress(t *testing.T) {
	var calls, lastDone, lastTotal int
	s := NewScheduler(&countingFetcher{})
	s.OnProgress = func(done, total int) {
		calls++
		lastDone, lastTotal = done, total
	}

	s.Harvest(context.Background(), makeItems(5), 2)
	if calls != 5 || lastDone != 5 || lastTotal != 5 {
		t.Errorf("OnProgress calls = %d, last = %d/%d, want 5 and 5/5", calls, lastDone, lastTotal)
	}
}

func TestHarvest_NoItems(t *testing.T) {
	result := NewScheduler(&countingFetcher{}).Harvest(context.Background(), nil, 4)
	if result.Len() != 0 || len(result.Failures()) != 0 || result.Submitted != 0 {
		t.Errorf("empty harvest = %d records, %d failures", result.Len(), len(result.Failures()))
	}
}

func TestResult_SortedRecords(t *testing.T) {
	items := makeItems(12)
	result := NewScheduler(&countingFetcher{}).Harvest(context.Background(), items, 6)

	sorted := result.SortedRecords()
	if len(sorted) != 24 {
		t.Fatalf("records = %d, want 24", len(sorted))
	}
	for i, rec := range sorted {
		q := rec.(extract.Quote)
		want := items[i/2].URL
		if q.Text != "First on "+want && q.Text != "Second on "+want {
			t.Fatalf("record %d = %q, want one of page %s", i, q.Text, want)
		}
	}
}

func TestResult_ConcurrentAppend(t *testing.T) {
	result := newResult("run", 100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%10 == 0 {
				result.addFailure(Failure{Item: WorkItem{Seq: i}, Kind: KindExtraction})
				return
			}
			result.addRecords(i, []extract.Record{extract.Topic{Name: fmt.Sprint(i), Source: extract.SiteAZQuotes}})
		}()
	}
	wg.Wait()

	if result.Len() != 90 || len(result.Failures()) != 10 || result.Succeeded() != 90 {
		t.Errorf("Len = %d, failures = %d, succeeded = %d", result.Len(), len(result.Failures()), result.Succeeded())
	}
}
