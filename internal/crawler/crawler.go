package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/fetch"
	"github.com/nao1215/feedscan/internal/scope"
)

// ModuleName identifies deep search in event payloads.
const ModuleName = "deepsearch"

// ErrInvalidStartURL is returned when the start URL is not an absolute
// http or https URL.
var ErrInvalidStartURL = errors.New("invalid start URL")

// Fetcher retrieves pages. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, headers map[string]string) (*fetch.Response, error)
}

// Classifier decides whether a URL is a feed. *feed.Classifier
// implements it.
type Classifier interface {
	Classify(ctx context.Context, url, content string) (*feed.Result, error)
}

// Crawler discovers feeds by following links within a site's registrable
// domain.
type Crawler struct {
	fetcher    Fetcher
	classifier Classifier
	opts       config.SearchOptions
	filter     scope.Filter
	headers    map[string]string
	bus        *eventbus.Bus
	logger     *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithBus sets the bus that receives crawl events.
func WithBus(bus *eventbus.Bus) Option {
	return func(c *Crawler) {
		c.bus = bus
	}
}

// WithLogger sets the crawler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFilter restricts which in-scope links are expanded into new tasks.
// Links rejected by the filter are still classified.
func WithFilter(f scope.Filter) Option {
	return func(c *Crawler) {
		c.filter = f
	}
}

// WithHeaders sets extra headers sent with every page fetch.
func WithHeaders(headers map[string]string) Option {
	return func(c *Crawler) {
		c.headers = headers
	}
}

// New creates a Crawler. opts is normalized before use.
func New(fetcher Fetcher, classifier Classifier, opts config.SearchOptions, options ...Option) *Crawler {
	c := &Crawler{
		fetcher:    fetcher,
		classifier: classifier,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(c)
	}
	c.opts = opts.Normalize(c.logger)
	return c
}

// Crawl runs a deep search from startURL and returns the feeds found.
// Per-URL failures never fail the crawl; they count towards the error
// breaker. The returned error is non-nil only for an invalid start URL,
// a cancelled ctx, or an emitted event that was not handled.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]feed.Feed, error) {
	u, err := url.Parse(strings.TrimSpace(startURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStartURL, startURL)
	}
	sc, err := scope.New(u.String())
	if err != nil {
		return nil, err
	}

	killCtx, kill := context.WithCancel(ctx)
	defer kill()

	r := &run{
		Crawler: c,
		scope:   sc,
		queue:   newQueue(),
		kill:    kill,
		visited: make(map[string]struct{}),
		checked: make(map[string]int),
		seen:    make(map[string]struct{}),
	}
	if c.opts.RequestDelay > 0 {
		r.limiter = rate.NewLimiter(rate.Every(c.opts.RequestDelay), 1)
	}
	stop := context.AfterFunc(killCtx, r.queue.close)
	defer stop()

	if err := c.emit(eventbus.EventStart, eventbus.Message{
		Module: ModuleName,
		Text:   "starting deep search",
		URL:    u.String(),
	}); err != nil {
		return nil, err
	}

	r.queue.push(Task{URL: u.String(), Depth: 0})

	var g errgroup.Group
	for range c.opts.CrawlConcurrency() {
		g.Go(func() error {
			return r.work(ctx, killCtx)
		})
	}
	if err := g.Wait(); err != nil {
		return r.results(), err
	}

	if err := ctx.Err(); err != nil {
		return r.results(), err
	}

	feeds := r.results()
	if err := c.emit(eventbus.EventEnd, eventbus.Message{
		Module: ModuleName,
		Text:   "deep search finished",
		URL:    u.String(),
		Done:   len(feeds),
	}); err != nil {
		return feeds, err
	}
	return feeds, nil
}

func (c *Crawler) emit(event string, payload any) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.Emit(event, payload)
}

// run is the shared state of one Crawl call.
type run struct {
	*Crawler

	scope   *scope.Scope
	queue   *queue
	kill    context.CancelFunc
	limiter *rate.Limiter

	mu        sync.Mutex
	visited   map[string]struct{}
	checked   map[string]int
	feeds     []feed.Feed
	seen      map[string]struct{}
	errCount  int
	limitOnce sync.Once
}

// work is the loop of one pool worker. In-flight requests use ctx so that
// a kill only prevents future dequeues.
func (r *run) work(ctx, killCtx context.Context) error {
	for {
		if killCtx.Err() != nil {
			return nil
		}
		task, ok := r.queue.pop()
		if !ok {
			return nil
		}
		err := r.process(ctx, killCtx, task)
		r.queue.done()
		if err != nil {
			r.kill()
			return err
		}
	}
}

// process runs the per-task algorithm for task.
func (r *run) process(ctx, killCtx context.Context, task Task) error {
	if task.Depth > r.opts.MaxDepth {
		return nil
	}
	if !r.scope.Contains(task.URL) || scope.IsExcluded(task.URL) {
		return nil
	}

	visited, limited := r.tryVisit(task.URL)
	if limited {
		return r.notifyLimit(task.URL)
	}
	if !visited {
		return nil
	}

	if err := r.emit(eventbus.EventLog, eventbus.Message{
		Module: ModuleName,
		Text:   "crawling",
		URL:    task.URL,
		Depth:  task.Depth,
	}); err != nil {
		return err
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil
		}
	}

	resp, err := r.fetcher.Fetch(ctx, task.URL, r.opts.Timeout, r.headers)
	if err != nil {
		return r.fail(ctx, task.URL, "fetch failed", err)
	}

	parser, err := NewParser(task.URL)
	if err != nil {
		return nil
	}
	page, err := parser.Parse(strings.NewReader(resp.Body))
	if err != nil {
		r.logger.Debug("unparsable page", "url", task.URL, "error", err)
		return nil
	}

	for _, link := range page.Anchors {
		if killCtx.Err() != nil {
			return nil
		}

		target := scope.Normalize(link.URL)
		if scope.IsExcluded(target) || r.isVisited(target) || !r.claim(target, task.Depth+1) {
			continue
		}
		if r.visitedCount() >= r.opts.MaxLinks {
			return r.notifyLimit(target)
		}

		inScope := r.scope.Contains(target)
		if !inScope && !r.opts.CheckForeignFeeds {
			continue
		}

		res, err := r.classifier.Classify(ctx, target, "")
		if err != nil {
			if err := r.fail(ctx, target, "classify failed", err); err != nil {
				return err
			}
		} else if res != nil {
			if err := r.record(target, res); err != nil {
				return err
			}
		}
		if killCtx.Err() != nil {
			return nil
		}

		if inScope && task.Depth+1 <= r.opts.MaxDepth && r.filter.Allow(target) {
			r.queue.push(Task{URL: target, Depth: task.Depth + 1})
		}
	}
	return nil
}

// tryVisit marks rawURL visited. visited is false when it already was;
// limited is true when the visited set is full.
func (r *run) tryVisit(rawURL string) (visited, limited bool) {
	key := scope.Normalize(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[key]; ok {
		return false, false
	}
	if len(r.visited) >= r.opts.MaxLinks {
		return false, true
	}
	r.visited[key] = struct{}{}
	return true, false
}

// claim reports whether rawURL is seen as a link at a shallower depth
// than any earlier sighting in this run. A link first found on a deep page
// is checked again when a shallower page links it.
func (r *run) claim(rawURL string, depth int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.checked[rawURL]; ok && prev <= depth {
		return false
	}
	r.checked[rawURL] = depth
	return true
}

func (r *run) isVisited(rawURL string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.visited[scope.Normalize(rawURL)]
	return ok
}

func (r *run) visitedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.visited)
}

// notifyLimit emits the link budget notification once per run.
func (r *run) notifyLimit(rawURL string) error {
	var err error
	r.limitOnce.Do(func() {
		r.logger.Debug("max links reached", "max_links", r.opts.MaxLinks, "url", rawURL)
		err = r.emit(eventbus.EventLimit, eventbus.Message{
			Module: ModuleName,
			Text:   fmt.Sprintf("reached max links (%d)", r.opts.MaxLinks),
			URL:    rawURL,
			Total:  r.opts.MaxLinks,
		})
	})
	return err
}

// fail counts err towards the breaker and kills the queue when it trips.
// Failures caused by a cancelled parent context are not counted.
func (r *run) fail(ctx context.Context, rawURL, text string, err error) error {
	if ctx.Err() != nil {
		return nil
	}

	r.mu.Lock()
	tripped := false
	if r.errCount < r.opts.MaxErrors {
		r.errCount++
		tripped = r.errCount >= r.opts.MaxErrors
	}
	r.mu.Unlock()

	r.logger.Debug(text, "url", rawURL, "error", err)
	if tripped {
		r.kill()
		r.logger.Debug("deep search stopped", "reason", "too many errors", "max_errors", r.opts.MaxErrors)
	}

	if r.opts.ShowErrors {
		if err := r.emit(eventbus.EventError, eventbus.Message{
			Module: ModuleName,
			Text:   text,
			URL:    rawURL,
			Err:    err,
		}); err != nil {
			return err
		}
	}
	if tripped {
		return r.emit(eventbus.EventLog, eventbus.Message{
			Module: ModuleName,
			Text:   fmt.Sprintf("too many errors (%d)", r.opts.MaxErrors),
		})
	}
	return nil
}

// record appends a newly found feed and kills the queue once MaxFeeds is
// reached.
func (r *run) record(rawURL string, res *feed.Result) error {
	f := feed.New(rawURL, res, "")

	r.mu.Lock()
	if _, dup := r.seen[rawURL]; dup {
		r.mu.Unlock()
		return nil
	}
	r.seen[rawURL] = struct{}{}
	r.feeds = append(r.feeds, f)
	reached := r.opts.MaxFeeds > 0 && len(r.feeds) >= r.opts.MaxFeeds
	r.mu.Unlock()

	if reached {
		r.kill()
	}
	return r.emit(eventbus.EventFeed, f)
}

func (r *run) results() []feed.Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]feed.Feed, len(r.feeds))
	copy(out, r.feeds)
	return out
}
