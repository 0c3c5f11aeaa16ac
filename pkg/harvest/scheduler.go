package harvest

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/fetch"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/rs/zerolog"
)

// DefaultConcurrency is the worker pool width when none is given.
const DefaultConcurrency = 10

// PageFetcher is the part of *fetch.Fetcher the Scheduler needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) fetch.Outcome
}

// pageForgetter is implemented by fetchers with a body cache. Pages that
// fail extraction are forgotten so the next run fetches them again.
type pageForgetter interface {
	Forget(ctx context.Context, rawURL string)
}

// Scheduler runs WorkItems through a bounded worker pool.
type Scheduler struct {
	fetcher PageFetcher
	logger  zerolog.Logger

	// Extractors resolves the extractor of an item. Default: extract.Lookup.
	Extractors func(extract.Source) (extract.PageExtractor, error)

	// OnProgress is called from the collecting goroutine after every item.
	OnProgress func(done, total int)
}

// NewScheduler creates a Scheduler.
func NewScheduler(fetcher PageFetcher) *Scheduler {
	return &Scheduler{
		fetcher:    fetcher,
		logger:     logging.NewLogger("harvest"),
		Extractors: extract.Lookup,
	}
}

type itemOutcome struct {
	index   int
	records []extract.Record
	failure *Failure
}

// Harvest processes every item with at most maxConcurrency in flight and
// returns once all of them finished. It never fails as a whole: per-item
// failures, including panics, are recorded in Result.Failures. When ctx
// ends, items not yet processed are recorded as cancelled.
func (s *Scheduler) Harvest(ctx context.Context, items []WorkItem, maxConcurrency int) *Result {
	start := time.Now()
	result := newResult(uuid.NewString(), len(items))
	logger := s.logger.With().Str("run_id", result.RunID).Logger()

	width := maxConcurrency
	if width <= 0 {
		width = DefaultConcurrency
	}
	width = max(1, min(width, len(items)))

	logger.Info().
		Int("items", len(items)).
		Int("workers", width).
		Msg("Starting harvest")

	queue := make(chan int)
	outcomes := make(chan itemOutcome, width)

	go func() {
		defer close(queue)
		for i := range items {
			select {
			case queue <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < width; w++ {
		wg.Add(1)
		go s.worker(ctx, items, queue, outcomes, &wg, w)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	processed := make([]bool, len(items))
	done := 0
	for out := range outcomes {
		processed[out.index] = true
		done++

		if out.failure != nil {
			result.addFailure(*out.failure)
			status := "failed"
			if out.failure.Kind == KindCancelled {
				status = "cancelled"
			}
			workItemsTotal.WithLabelValues(status).Inc()
		} else {
			result.addRecords(items[out.index].Seq, out.records)
			workItemsTotal.WithLabelValues("ok").Inc()
			recordsTotal.WithLabelValues(items[out.index].Source.String()).Add(float64(len(out.records)))
		}

		if s.OnProgress != nil {
			s.OnProgress(done, len(items))
		}
	}

	// Items the feeder never handed out because the run was cancelled.
	for i, ok := range processed {
		if ok {
			continue
		}
		result.addFailure(cancelledFailure(items[i], ctx.Err()))
		workItemsTotal.WithLabelValues("cancelled").Inc()
	}

	result.Duration = time.Since(start)
	runDuration.Observe(result.Duration.Seconds())

	failures := result.Failures()
	evt := logger.Info()
	if len(failures) > 0 {
		evt = logger.Warn()
	}
	evt.Int("submitted", result.Submitted).
		Int("succeeded", result.Succeeded()).
		Int("failed", len(failures)).
		Int("records", result.Len()).
		Dur("duration", result.Duration).
		Msg("Harvest complete")

	return result
}

func (s *Scheduler) worker(ctx context.Context, items []WorkItem, queue <-chan int, outcomes chan<- itemOutcome, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for i := range queue {
		workersInFlight.Inc()
		recs, failure := s.process(ctx, items[i])
		workersInFlight.Dec()
		processed++

		// outcomes is drained until every worker exits, so this never blocks forever.
		outcomes <- itemOutcome{index: i, records: recs, failure: failure}
	}

	s.logger.Debug().
		Int("worker_id", workerID).
		Int("items_processed", processed).
		Msg("Worker completed")
}

// process runs fetch, parse and extract for one item. A panic anywhere in
// the chain becomes a KindPanic failure.
func (s *Scheduler) process(ctx context.Context, item WorkItem) (recs []extract.Record, failure *Failure) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("url", item.URL).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Recovered panic while processing work item")
			recs = nil
			failure = &Failure{
				Item:   item,
				Kind:   KindPanic,
				Detail: fmt.Sprint(r),
				Err:    fmt.Errorf("panic: %v", r),
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		f := cancelledFailure(item, err)
		return nil, &f
	}

	extractor, err := s.Extractors(item.Source)
	if err != nil {
		return nil, extractionFailure(item, err)
	}

	out := s.fetcher.Fetch(ctx, item.URL)
	if !out.OK() {
		return nil, &Failure{
			Item:       item,
			Kind:       FailureKind(out.Failure.Kind),
			StatusCode: out.Failure.StatusCode,
			Attempts:   out.Failure.Attempts,
			Detail:     out.Failure.Error(),
			Err:        out.Failure,
		}
	}

	doc, err := extract.Parse(out.Body)
	if err != nil {
		s.forget(ctx, item.URL)
		return nil, extractionFailure(item, &extract.ExtractionError{Source: item.Source, URL: item.URL, Reason: "unparseable html", Err: err})
	}

	recs, err = extractor.ExtractRecords(doc, item.URL)
	if err != nil {
		s.forget(ctx, item.URL)
		return nil, extractionFailure(item, err)
	}

	s.logger.Debug().
		Str("url", item.URL).
		Int("records", len(recs)).
		Bool("from_cache", out.FromCache).
		Msg("Work item complete")
	return recs, nil
}

func (s *Scheduler) forget(ctx context.Context, rawURL string) {
	if f, ok := s.fetcher.(pageForgetter); ok {
		f.Forget(ctx, rawURL)
	}
}

func extractionFailure(item WorkItem, err error) *Failure {
	return &Failure{Item: item, Kind: KindExtraction, Detail: err.Error(), Err: err}
}

func cancelledFailure(item WorkItem, err error) Failure {
	detail := "run cancelled"
	if err != nil {
		detail = err.Error()
	}
	return Failure{
		Item:   item,
		Kind:   KindCancelled,
		Detail: detail,
		Err:    fmt.Errorf("%w: %v", fetch.ErrContextCancelled, err),
	}
}
