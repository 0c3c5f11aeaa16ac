// Command harvester collects quotes, authors and topics from quote websites
// and writes them to a JSON, JSON Lines, YAML or gob file.
//
//	harvester quotes --site azquotes --topics life,love --start 1 --end 20
//	harvester index --site azquotes --listing authors --out authors.jsonl
//
// Failed pages are listed in a failure manifest at the end of a run. The
// exit status is non-zero only for configuration and persistence errors.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/quoteharvest/harvester/internal/config"
	"github.com/quoteharvest/harvester/pkg/extract"
	"github.com/quoteharvest/harvester/pkg/harvest"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app holds state shared by all commands of one invocation.
type app struct {
	configFile string
	overrides  config.Overrides
	baseURL    string
	noProgress bool

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "harvester",
		Short: "Concurrent quote harvester",
		Long: `harvester fetches quote, author and topic listings from azquotes,
goodreads and famousquotes with a bounded worker pool, retrying transient
failures and isolating broken pages.

Configuration is read from harvester.yaml (./configs, . or ~/.harvester),
HARVESTER_* environment variables and the flags below.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.MergeCLIFlags(a.overrides); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logCfg := cfg.LoggingConfig()
			logCfg.Output = cmd.ErrOrStderr()
			logging.Setup(logCfg)

			a.cfg = cfg
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file path")
	flags.StringVar(&a.overrides.LogLevel, "log-level", "", "log level (debug|info|warn|error)")
	flags.BoolVar(&a.overrides.Pretty, "pretty", false, "human-readable console logs")
	flags.IntVarP(&a.overrides.Workers, "workers", "w", 0, "maximum concurrent page fetches")
	flags.StringVar(&a.overrides.RedisAddr, "redis-addr", "", "Redis address for the page cache and host politeness state")
	flags.StringVar(&a.overrides.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&a.overrides.Format, "format", "", "output format when --out is not given (json|jsonl|yaml|gob)")
	flags.StringVar(&a.baseURL, "base-url", "", "override the site root, e.g. for a mirror")
	flags.BoolVar(&a.noProgress, "no-progress", false, "disable the progress bar")

	root.AddCommand(newQuotesCmd(a), newIndexCmd(a), newVersionCmd())
	return root
}

func newQuotesCmd(a *app) *cobra.Command {
	var (
		siteName string
		topics   string
		start    int
		end      int
		out      string
	)

	cmd := &cobra.Command{
		Use:   "quotes",
		Short: "Harvest quotes for one or more topics",
		Example: `  harvester quotes --site azquotes --topics life,love --start 1 --end 5
  harvester quotes --site famousquotes --topics friendship --out friendship.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := extract.ParseSite(siteName)
			if err != nil {
				return err
			}
			topicList := parseTopics(topics)
			if len(topicList) == 0 {
				return fmt.Errorf("--topics must name at least one topic")
			}
			if start < 1 {
				return fmt.Errorf("--start must be >= 1, got %d", start)
			}
			if end > 0 && end < start {
				return fmt.Errorf("--end %d is before --start %d", end, start)
			}

			root := siteRoot(site, a.baseURL)
			src := extract.Source{Site: site, Listing: extract.ListingQuotes}
			return a.run(cmd, a.destination(out, src), func(ctx context.Context, p *harvest.Planner) error {
				return planQuotes(ctx, p, root, site, topicList, start, end)
			})
		},
	}

	cmd.Flags().StringVarP(&siteName, "site", "s", string(extract.SiteAZQuotes), "site (azquotes|goodreads|famousquotes)")
	cmd.Flags().StringVarP(&topics, "topics", "t", "", "comma-separated topics, e.g. life,love,success")
	cmd.Flags().IntVar(&start, "start", 1, "first page")
	cmd.Flags().IntVar(&end, "end", 1, "last page, clamped to the discovered page count (0 = all pages)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; the extension selects the format and a timestamp is appended")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	var (
		siteName    string
		listingName string
		out         string
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Harvest the authors or topics index of a site",
		Example: `  harvester index --site azquotes --listing authors
  harvester index --site goodreads --listing topics --out topics.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			site, err := extract.ParseSite(siteName)
			if err != nil {
				return err
			}
			listing, err := extract.ParseListing(listingName)
			if err != nil {
				return err
			}
			if listing == extract.ListingQuotes {
				return fmt.Errorf("use the quotes command for quote listings")
			}

			root := siteRoot(site, a.baseURL)
			src := extract.Source{Site: site, Listing: listing}
			return a.run(cmd, a.destination(out, src), func(ctx context.Context, p *harvest.Planner) error {
				return planIndex(ctx, p, root, src)
			})
		},
	}

	cmd.Flags().StringVarP(&siteName, "site", "s", string(extract.SiteAZQuotes), "site (azquotes|goodreads|famousquotes)")
	cmd.Flags().StringVarP(&listingName, "listing", "l", string(extract.ListingAuthors), "index listing (authors|topics)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; the extension selects the format and a timestamp is appended")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// No configuration needed.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "harvester %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "built: %s\n", BuildTime)
		},
	}
}

// destination returns out, or a file named after src in the configured
// output directory.
func (a *app) destination(out string, src extract.Source) string {
	if out != "" {
		return out
	}
	name := string(src.Site) + "_" + string(src.Listing) + a.cfg.Output.Format
	return filepath.Join(a.cfg.Output.Dir, name)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "harvester: %v\n", err)
		stop()
		os.Exit(1)
	}
}
