package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/crawler"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/probe"
	"github.com/nao1215/feedscan/internal/scope"
)

// ModuleName identifies the orchestrator in event payloads.
const ModuleName = "search"

// Orchestrator runs the selected strategies for a site and merges their
// results. It is safe for concurrent use by multiple Search calls.
type Orchestrator struct {
	env        *env
	strategies []Strategy

	set     StrategySet
	filter  scope.Filter
	headers map[string]string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBus sets the bus that receives the events of every strategy.
func WithBus(bus *eventbus.Bus) Option {
	return func(o *Orchestrator) {
		o.env.bus = bus
	}
}

// WithLogger sets the logger of the orchestrator and its strategies.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.env.logger = logger
		}
	}
}

// WithStrategySet selects the strategies. The default is
// DefaultStrategySet.
func WithStrategySet(set StrategySet) Option {
	return func(o *Orchestrator) {
		o.set = set
	}
}

// WithCrawlFilter restricts which links deep search expands.
func WithCrawlFilter(f scope.Filter) Option {
	return func(o *Orchestrator) {
		o.filter = f
	}
}

// WithHeaders sets extra headers for site page fetches.
func WithHeaders(headers map[string]string) Option {
	return func(o *Orchestrator) {
		o.headers = headers
	}
}

// WithStrategies replaces the built-in strategies. The strategies run in
// the given order and the StrategySet is ignored.
func WithStrategies(strategies ...Strategy) Option {
	return func(o *Orchestrator) {
		o.strategies = strategies
	}
}

// New creates an Orchestrator whose strategies fetch through fetcher and
// classify through classifier. opts is normalized before use.
func New(fetcher Fetcher, classifier Classifier, opts config.SearchOptions, options ...Option) *Orchestrator {
	o := &Orchestrator{
		env: &env{
			fetcher:    fetcher,
			classifier: classifier,
			logger:     slog.Default(),
		},
		set: DefaultStrategySet(),
	}
	for _, opt := range options {
		opt(o)
	}

	e := o.env
	e.opts = opts.Normalize(e.logger)
	e.loader = newPageLoader(fetcher, e.opts.Timeout, o.headers)

	if o.strategies == nil {
		o.strategies = o.buildStrategies()
	}
	return o
}

// buildStrategies returns the selected strategies in priority order.
func (o *Orchestrator) buildStrategies() []Strategy {
	e := o.env
	var out []Strategy
	if o.set.Meta {
		out = append(out, newMetaScanner(e))
	}
	if o.set.Anchors {
		out = append(out, newAnchorScanner(e))
	}
	if o.set.Blind {
		out = append(out, &probeStrategy{probe.New(e.classifier, e.opts,
			probe.WithBus(e.bus), probe.WithLogger(e.logger))})
	}
	if o.set.Deep {
		out = append(out, &crawlStrategy{crawler.New(e.fetcher, e.classifier, e.opts,
			crawler.WithBus(e.bus),
			crawler.WithLogger(e.logger),
			crawler.WithFilter(o.filter),
			crawler.WithHeaders(o.headers),
		)})
	}
	return out
}

// Strategies returns the names of the strategies in run order.
func (o *Orchestrator) Strategies() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Search discovers the feeds of siteURL. Strategy failures on individual
// URLs never fail the search; the returned error is non-nil for an invalid
// siteURL, a cancelled ctx, or an unhandled error event.
func (o *Orchestrator) Search(ctx context.Context, siteURL string) ([]feed.Feed, error) {
	site, err := NormalizeSiteURL(siteURL)
	if err != nil {
		return nil, err
	}
	o.env.loader.hold(site)
	defer o.env.loader.release(site)

	opts := o.env.opts
	results := newResultSet()

	for _, s := range o.strategies {
		if err := ctx.Err(); err != nil {
			return results.feeds(opts), err
		}

		feeds, err := s.Search(ctx, site)
		results.add(feeds)
		if err != nil {
			if isFatal(ctx, err) {
				return results.feeds(opts), err
			}
			o.env.logger.Warn("strategy failed", "strategy", s.Name(), "url", site, "error", err)
		}

		if o.capReached(results.len()) {
			o.env.logger.Debug("result cap reached", "strategy", s.Name(), "feeds", results.len())
			if err := o.env.emit(eventbus.EventLog, eventbus.Message{
				Module: ModuleName,
				Text:   fmt.Sprintf("found %d feeds, skipping remaining strategies", results.len()),
				URL:    site,
			}); err != nil {
				return results.feeds(opts), err
			}
			break
		}
	}

	return results.feeds(opts), nil
}

// capReached reports whether no further strategy should run.
func (o *Orchestrator) capReached(n int) bool {
	opts := o.env.opts
	switch {
	case opts.All:
		return false
	case opts.MaxFeeds > 0:
		return n >= opts.MaxFeeds
	default:
		return n > 0
	}
}

// NormalizeSiteURL trims siteURL and adds an https scheme when it has
// none. It returns ErrInvalidSiteURL when the result is not an absolute
// http or https URL.
func NormalizeSiteURL(siteURL string) (string, error) {
	s := strings.TrimSpace(siteURL)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSiteURL)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSiteURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidSiteURL, siteURL)
	}
	return u.String(), nil
}

// resultSet merges strategy results by URL. The first feed recorded for a
// URL is kept.
type resultSet struct {
	order []feed.Feed
	index map[string]struct{}
}

func newResultSet() *resultSet {
	return &resultSet{index: make(map[string]struct{})}
}

func (r *resultSet) add(feeds []feed.Feed) {
	for _, f := range feeds {
		if _, ok := r.index[f.URL]; ok {
			continue
		}
		r.index[f.URL] = struct{}{}
		r.order = append(r.order, f)
	}
}

func (r *resultSet) len() int {
	return len(r.order)
}

// feeds returns the merged feeds in first-seen order, truncated to
// MaxFeeds unless All is set.
func (r *resultSet) feeds(opts config.SearchOptions) []feed.Feed {
	out := r.order
	if !opts.All && opts.MaxFeeds > 0 && len(out) > opts.MaxFeeds {
		out = out[:opts.MaxFeeds]
	}
	result := make([]feed.Feed, len(out))
	copy(result, out)
	return result
}

// probeStrategy adapts probe.Prober to Strategy.
type probeStrategy struct {
	p *probe.Prober
}

func (s *probeStrategy) Name() string { return probe.ModuleName }

func (s *probeStrategy) Search(ctx context.Context, siteURL string) ([]feed.Feed, error) {
	return s.p.Probe(ctx, siteURL)
}

// crawlStrategy adapts crawler.Crawler to Strategy.
type crawlStrategy struct {
	c *crawler.Crawler
}

func (s *crawlStrategy) Name() string { return crawler.ModuleName }

func (s *crawlStrategy) Search(ctx context.Context, siteURL string) ([]feed.Feed, error) {
	return s.c.Crawl(ctx, siteURL)
}
