package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/fetch"
	"github.com/nao1215/feedscan/internal/log"
	"github.com/nao1215/feedscan/internal/report"
	"github.com/nao1215/feedscan/internal/scope"
	"github.com/nao1215/feedscan/internal/search"
)

// NewFindCmd creates the find command.
func NewFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find [site-url...]",
		Short: "Find the feeds of one or more websites",
		Long: `Find discovers the RSS, Atom and JSON feeds of websites.

By default three strategies run in order and discovery stops after the
first one that finds a feed:
  1. metasearch   <link rel="alternate"> tags on the site page
  2. anchors      feed-like links on the site page
  3. blindsearch  well-known feed locations such as /feed and /rss.xml

--deepsearch adds a crawl of the site as a fourth strategy, and --all runs
every selected strategy and keeps every feed found.

Examples:
  # Find the feeds of a site
  feedscan find example.com

  # Crawl the site too and keep every feed
  feedscan find --deepsearch --all https://example.com/blog

  # Several sites at once, as JSON written to a file
  feedscan find --json -o feeds.json example.com example.org

  # Only probe well-known locations, trying every endpoint
  feedscan find --blindsearch --search-mode exhaustive example.com

Results are stored in the history database unless --no-save is given; see
"feedscan history".`,
		Args: cobra.ArbitraryArgs,
		RunE: runFindCmd,
	}

	// Strategy flags
	cmd.Flags().Bool("metasearch", false, "Only scan <link> tags of the site page")
	cmd.Flags().Bool("anchorsonly", false, "Only scan anchors of the site page")
	cmd.Flags().Bool("blindsearch", false, "Only probe well-known feed locations")
	cmd.Flags().Bool("deepsearch", false, "Crawl the site after the default strategies")
	cmd.Flags().Bool("deepsearch-only", false, "Only crawl the site")
	cmd.Flags().BoolP("all", "a", false, "Run every selected strategy and keep all feeds")

	// Search tuning flags
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth, "Maximum crawl depth")
	cmd.Flags().IntP("max-links", "l", config.DefaultMaxLinks, "Maximum number of URLs one crawl visits")
	cmd.Flags().DurationP("timeout", "t", config.DefaultSearchTimeout, "Timeout for each request (1s to 60s)")
	cmd.Flags().Int("max-errors", config.DefaultMaxErrors, "Stop a strategy after this many errors")
	cmd.Flags().Int("max-feeds", config.DefaultMaxFeeds, "Stop after this many feeds (0 is unlimited)")
	cmd.Flags().String("search-mode", string(config.DefaultSearchMode), "Blind search tier: fast, standard or exhaustive")
	cmd.Flags().Int("concurrency", 0, "Concurrent requests per strategy (0 uses the strategy default)")
	cmd.Flags().Duration("request-delay", config.DefaultRequestDelay, "Delay between requests")
	cmd.Flags().IntP("batch", "b", config.DefaultSiteConcurrency, "Number of sites searched concurrently")
	cmd.Flags().Bool("check-foreign-feeds", false, "Also classify links to other domains")
	cmd.Flags().Bool("keep-query-params", false, "Append the site URL's query string to probed locations")
	cmd.Flags().Bool("show-errors", false, "Log every failed URL")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .feedscan in current or home directory)")

	// Transport flags
	cmd.Flags().String("proxy", "", "Route requests through a SOCKS5 proxy (host:port)")
	cmd.Flags().Bool("tor", false, "Start an embedded Tor daemon and route requests through it")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout, "Timeout for embedded Tor startup")
	cmd.Flags().StringP("user-agent", "u", "", "User-Agent header sent with every request")

	// Report flags
	cmd.Flags().BoolP("json", "j", false, "Output JSON (default)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown")
	cmd.Flags().Bool("text", false, "Output plain text")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to the specified file path (creates directories if needed)")

	// History flags
	cmd.Flags().Bool("no-save", false, "Do not store the run in the history database")
	cmd.Flags().String("db-dir", "", "History database directory (default: XDG data directory)")

	return cmd
}

func runFindCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runFind(ctx, cfg, logger, cmd.OutOrStdout())
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if cfg.Strategies.MetaOnly, err = flags.GetBool("metasearch"); err != nil {
		return nil, err
	}
	if cfg.Strategies.AnchorsOnly, err = flags.GetBool("anchorsonly"); err != nil {
		return nil, err
	}
	if cfg.Strategies.BlindOnly, err = flags.GetBool("blindsearch"); err != nil {
		return nil, err
	}
	if cfg.Strategies.Deep, err = flags.GetBool("deepsearch"); err != nil {
		return nil, err
	}
	if cfg.Strategies.DeepOnly, err = flags.GetBool("deepsearch-only"); err != nil {
		return nil, err
	}
	if cfg.Search.All, err = flags.GetBool("all"); err != nil {
		return nil, err
	}

	if cfg.Search.MaxDepth, err = flags.GetInt("depth"); err != nil {
		return nil, err
	}
	if cfg.Search.MaxLinks, err = flags.GetInt("max-links"); err != nil {
		return nil, err
	}
	if cfg.Search.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Search.MaxErrors, err = flags.GetInt("max-errors"); err != nil {
		return nil, err
	}
	if cfg.Search.MaxFeeds, err = flags.GetInt("max-feeds"); err != nil {
		return nil, err
	}
	if cfg.Search.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.Search.RequestDelay, err = flags.GetDuration("request-delay"); err != nil {
		return nil, err
	}
	if cfg.Search.CheckForeignFeeds, err = flags.GetBool("check-foreign-feeds"); err != nil {
		return nil, err
	}
	if cfg.Search.KeepQueryParams, err = flags.GetBool("keep-query-params"); err != nil {
		return nil, err
	}
	if cfg.Search.ShowErrors, err = flags.GetBool("show-errors"); err != nil {
		return nil, err
	}

	mode, err := flags.GetString("search-mode")
	if err != nil {
		return nil, err
	}
	if cfg.Search.SearchMode, err = config.ParseSearchMode(mode); err != nil {
		return nil, err
	}

	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	// An explicit --config must exist; otherwise a missing file is fine.
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		cfg.SiteConfigs, err = config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.TextReport, err = flags.GetBool("text"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Targets = args

	return cfg, nil
}

// runFind searches every target and writes the report to stdout or the
// report file. It returns the joined per-site errors; finding no feed is
// not an error.
func runFind(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	targets := make([]string, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		normalized, err := search.NormalizeSiteURL(t)
		if err != nil {
			return fmt.Errorf("invalid site URL %q: %w", t, err)
		}
		targets = append(targets, normalized)
	}

	logger.Info("starting discovery",
		"targets", targets,
		"batchSize", cfg.BatchSize,
		"saveToDB", cfg.SaveToDB,
	)

	var db *database.HistoryDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer db.Close()
	}

	proxyAddr := cfg.ProxyAddress
	if cfg.UseTor {
		embedded, err := startEmbeddedTor(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		}()
		proxyAddr = embedded.SocksAddr()
	}

	bp := search.NewBatchProcessor(
		newSiteFactory(cfg, proxyAddr, logger),
		search.WithConcurrency(cfg.BatchSize),
		search.WithBatchLogger(logger),
	)

	// On cancellation the sites that never started have empty results;
	// the partial results of the others are still reported.
	results, batchErr := bp.ProcessBatch(ctx, targets)
	results = slices.DeleteFunc(results, func(r search.SiteResult) bool { return r.Site == "" })

	for i := range results {
		if err := saveRun(ctx, db, &results[i], logger); err != nil {
			logger.Error("failed to save run", "site", results[i].Site, "error", err)
		}
	}

	if err := writeReport(cfg, results, stdout); err != nil {
		return err
	}

	errs := make([]error, 0, len(results)+1)
	if batchErr != nil {
		errs = append(errs, batchErr)
	}
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Site, r.Err))
		}
	}
	return errors.Join(errs...)
}

// newSiteFactory returns the factory that builds one Orchestrator per
// site with that site's configuration file overrides.
func newSiteFactory(cfg *config.Config, proxyAddr string, logger *slog.Logger) search.Factory {
	return func(site string) (*search.Orchestrator, error) {
		siteCfg := cfg.SiteConfigs.GetSiteConfig(site)
		siteLogger := logger.With("site", site)

		clientOpts := []fetch.Option{fetch.WithLogger(siteLogger)}
		if proxyAddr != "" {
			clientOpts = append(clientOpts, fetch.WithProxy(proxyAddr))
		}
		if cfg.UserAgent != "" {
			clientOpts = append(clientOpts, fetch.WithUserAgent(cfg.UserAgent))
		}
		if siteCfg.Cookie != "" {
			clientOpts = append(clientOpts, fetch.WithCookie(siteCfg.Cookie))
		}
		if len(siteCfg.Headers) > 0 {
			clientOpts = append(clientOpts, fetch.WithHeaders(siteCfg.Headers))
		}
		client, err := fetch.NewClient(clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}

		opts := siteCfg.Apply(cfg.Search).Normalize(siteLogger)
		classifier := feed.NewClassifier(client,
			feed.WithTimeout(opts.Timeout),
			feed.WithLogger(siteLogger),
		)

		return search.New(client, classifier, opts,
			search.WithBus(newEventBus(siteLogger)),
			search.WithLogger(siteLogger),
			search.WithStrategySet(search.NewStrategySet(cfg.Strategies)),
			search.WithCrawlFilter(scope.Filter{
				Ignore: siteCfg.IgnorePatterns,
				Follow: siteCfg.FollowPatterns,
			}),
		), nil
	}
}

// newEventBus returns a bus whose listeners render discovery events as log
// records. The error listener keeps per-URL failures from aborting a run.
func newEventBus(logger *slog.Logger) *eventbus.Bus {
	bus := eventbus.New(eventbus.WithLogger(logger))

	debug := func(payload any) error {
		logger.Debug(fmt.Sprint(payload))
		return nil
	}
	bus.On(eventbus.EventStart, debug)
	bus.On(eventbus.EventEnd, debug)
	bus.On(eventbus.EventLog, debug)
	bus.On(eventbus.EventProgress, debug)

	bus.On(eventbus.EventLimit, func(payload any) error {
		logger.Warn(fmt.Sprint(payload))
		return nil
	})
	bus.On(eventbus.EventError, func(payload any) error {
		logger.Warn(fmt.Sprint(payload))
		return nil
	})
	bus.On(eventbus.EventFeed, func(payload any) error {
		if f, ok := payload.(feed.Feed); ok {
			logger.Info("feed found", "url", f.URL, "type", f.Type)
		}
		return nil
	})

	return bus
}

// startEmbeddedTor starts an embedded Tor daemon for the run.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*fetch.EmbeddedTor, error) {
	logger.Warn("starting embedded Tor daemon, this may take a few minutes")

	embedded := fetch.NewEmbeddedTor(fetch.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embedded.SocksAddr(),
		"controlAddr", embedded.ControlAddr(),
	)
	return embedded, nil
}

// saveRun stores result in db. A nil db is a no-op.
func saveRun(ctx context.Context, db *database.HistoryDB, result *search.SiteResult, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	run := &database.Run{
		Site:       result.Site,
		StartedAt:  result.StartedAt,
		Duration:   result.Duration,
		Strategies: result.Strategies,
		Feeds:      result.Feeds,
	}
	if result.Err != nil {
		run.Err = result.Err.Error()
	}

	// A cancelled run is still recorded, so the save must outlive ctx.
	id, err := db.SaveRun(context.WithoutCancel(ctx), run)
	if err != nil {
		return err
	}
	logger.Debug("run saved", "site", result.Site, "run", id)
	return nil
}

// reportFormat returns the output format selected in cfg.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	case cfg.TextReport:
		return report.FormatText
	default:
		return report.FormatJSON
	}
}

// writeReport writes a single-site report for one result and a batch
// report otherwise.
func writeReport(cfg *config.Config, results []search.SiteResult, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	w, err := report.New(reportFormat(cfg), output)
	if err != nil {
		return err
	}

	if len(results) == 1 {
		_, err = w.WriteFeeds(results[0].Site, results[0].Feeds)
	} else {
		_, err = w.WriteBatch(results)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// createReportFile creates path and its parent directories. Reports may
// reveal member-only feed URLs, so the file is readable by the owner only.
func createReportFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
