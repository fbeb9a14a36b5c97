package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/feedscan/internal/feed"
)

// DefaultBatchConcurrency is the number of sites searched at once when
// WithConcurrency is not given.
const DefaultBatchConcurrency = 3

// SiteResult is the outcome of discovery for one site.
type SiteResult struct {
	// Site is the site URL as given.
	Site string

	// Feeds are the feeds found, possibly partial when Err is set.
	Feeds []feed.Feed

	// Strategies names the strategies that were configured, in run order.
	Strategies []string

	// Err is the error that ended discovery for the site, if any.
	Err error

	// StartedAt and Duration time the run.
	StartedAt time.Time
	Duration  time.Duration
}

// Factory builds the Orchestrator used for one site, so that per-site
// settings such as cookies or crawl depth can differ.
type Factory func(site string) (*Orchestrator, error)

// BatchProcessor runs discovery for many sites concurrently.
type BatchProcessor struct {
	factory     Factory
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	results []SiteResult
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets the logger for batch-level messages.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the number of sites searched at once.
// Non-positive values are ignored.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor that builds one Orchestrator
// per site with factory.
func NewBatchProcessor(factory Factory, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		factory:     factory,
		concurrency: DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch searches every site and returns the results in input
// order. A failing site does not stop the others; its error is recorded in
// its SiteResult. The returned error is non-nil only when ctx is done.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, sites []string) ([]SiteResult, error) {
	bp.logger.Debug("starting batch discovery",
		"total_sites", len(sites),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.mu.Lock()
	bp.results = make([]SiteResult, len(sites))
	bp.mu.Unlock()

	err := bp.ProcessBatchWithCallback(ctx, sites, func(result SiteResult, index int) {
		bp.mu.Lock()
		bp.results[index] = result
		bp.mu.Unlock()
	})

	bp.logger.Debug("batch discovery complete",
		"total_sites", len(sites),
		"elapsed", time.Since(startTime),
	)

	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.results, err
}

// ProcessBatchWithCallback searches every site and calls callback with each
// result as soon as it is available. callback runs on the worker goroutine
// and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	sites []string,
	callback func(result SiteResult, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, site := range sites {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			result := bp.searchSite(ctx, site)
			callback(result, i)
			return nil
		})
	}

	return g.Wait()
}

func (bp *BatchProcessor) searchSite(ctx context.Context, site string) SiteResult {
	result := SiteResult{Site: site, StartedAt: time.Now()}

	o, err := bp.factory(site)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(result.StartedAt)
		return result
	}

	result.Strategies = o.Strategies()
	result.Feeds, result.Err = o.Search(ctx, site)
	result.Duration = time.Since(result.StartedAt)
	if result.Err != nil {
		bp.logger.Warn("discovery failed", "site", site, "error", result.Err)
	} else {
		bp.logger.Debug("discovery completed", "site", site, "feeds", len(result.Feeds))
	}
	return result
}
