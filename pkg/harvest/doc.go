// Package harvest expands seeds into work items and runs them through a
// bounded worker pool.
//
// A Planner turns listing URLs into WorkItems, discovering page counts and
// clamping requested ranges. A Scheduler fetches, parses and extracts every
// item with at most maxConcurrency items in flight, isolating per-item
// failures so one broken page never aborts the run:
//
//	planner := harvest.NewPlanner(pagination.NewDiscoverer(fetcher), 10)
//	planner.Range(ctx, src, "https://www.azquotes.com/quotes/topics/life.html", 1, 20)
//
//	scheduler := harvest.NewScheduler(fetcher)
//	result := scheduler.Harvest(ctx, planner.Items(), 10)
//
// Records are aggregated in completion order; use Result.SortedRecords for
// submission order. Failures form the run's failure manifest.
//
// Metrics:
//   - harvest_work_items_total{status}: items by ok, failed or cancelled
//   - harvest_records_total{source}: records extracted per source
//   - harvest_workers_in_flight: items currently being processed
//   - harvest_run_duration_seconds: wall time of Harvest calls
package harvest
