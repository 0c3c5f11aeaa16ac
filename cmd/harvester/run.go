package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/quoteharvest/harvester/pkg/cache"
	"github.com/quoteharvest/harvester/pkg/fetch"
	"github.com/quoteharvest/harvester/pkg/harvest"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/quoteharvest/harvester/pkg/metrics"
	"github.com/quoteharvest/harvester/pkg/pagination"
	"github.com/quoteharvest/harvester/pkg/ratelimit"
	"github.com/quoteharvest/harvester/pkg/sink"
	"github.com/redis/go-redis/v9"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// planFunc adds the work items of one command to a Planner.
type planFunc func(ctx context.Context, p *harvest.Planner) error

// run plans, harvests and persists one command's work. Only planning,
// setup and persistence errors are returned; failed pages end up in the
// printed failure manifest.
func (a *app) run(cmd *cobra.Command, dest string, plan planFunc) error {
	// An unusable destination is a configuration error: fail before any fetch.
	if err := sink.CheckFormat(dest); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.NewLogger("cli")
	cfg := a.cfg

	fetchCfg := cfg.FetchConfig()
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis, page cache and politeness tracking enabled")

		fetchCfg.Cache = cache.NewManager(rdb, cfg.Redis.CacheTTL)
		fetchCfg.Gate = ratelimit.NewTracker(rdb, logging.NewLogger("ratelimit"), cfg.Redis.PolitenessMaxWait)
	}

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("Metrics server failed")
			}
		}()
	}

	fetcher := fetch.New(fetchCfg)
	workers := cfg.Harvest.Workers

	planner := harvest.NewPlanner(pagination.NewDiscoverer(fetcher), workers)
	if err := plan(ctx, planner); err != nil {
		return fmt.Errorf("plan harvest: %w", err)
	}
	items := planner.Items()

	scheduler := harvest.NewScheduler(fetcher)
	var bar *progressbar.ProgressBar
	if !a.noProgress && len(items) > 0 {
		bar = newProgressBar(cmd.ErrOrStderr(), len(items))
		scheduler.OnProgress = func(done, total int) {
			_ = bar.Set(done)
		}
	}

	result := scheduler.Harvest(ctx, items, workers)
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(cmd.ErrOrStderr())
	}

	s := sink.New()
	s.Accumulate(result)
	path, err := s.Flush(dest)
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), result, path)
	return nil
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("harvesting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// printSummary writes run totals followed by the failure manifest.
func printSummary(w io.Writer, result *harvest.Result, path string) {
	failures := result.Failures()

	fmt.Fprintf(w, "run %s: %d items, %d succeeded, %d failed, %d records in %s\n",
		result.RunID, result.Submitted, result.Succeeded(), len(failures), result.Len(),
		result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "saved: %s\n", path)

	if len(failures) == 0 {
		return
	}

	fmt.Fprintln(w, "\nfailed items:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSTATUS\tATTEMPTS\tURL\tDETAIL")
	for _, f := range failures {
		status := "-"
		if f.StatusCode != 0 {
			status = fmt.Sprint(f.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", f.Kind, status, f.Attempts, f.Item.URL, f.Detail)
	}
	tw.Flush()
}
