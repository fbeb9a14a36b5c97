package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/fetch"
)

// ModuleName identifies blind search in event payloads.
const ModuleName = "blindsearch"

// Classifier decides whether a URL is a feed. *feed.Classifier
// implements it.
type Classifier interface {
	Classify(ctx context.Context, url, content string) (*feed.Result, error)
}

// Prober runs blind search against one site at a time.
type Prober struct {
	classifier Classifier
	opts       config.SearchOptions
	bus        *eventbus.Bus
	logger     *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithBus sets the bus that receives progress, feed and error events.
func WithBus(bus *eventbus.Bus) Option {
	return func(p *Prober) {
		p.bus = bus
	}
}

// WithLogger sets the prober's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Prober) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a Prober. opts is normalized before use.
func New(classifier Classifier, opts config.SearchOptions, options ...Option) *Prober {
	p := &Prober{
		classifier: classifier,
		logger:     slog.Default(),
	}
	for _, opt := range options {
		opt(p)
	}
	p.opts = opts.Normalize(p.logger)
	return p
}

// outcome is the classification result of one candidate.
type outcome struct {
	url string
	res *feed.Result
	err error
}

// run is the mutable state of one Probe call.
type run struct {
	mu       sync.Mutex
	probed   map[string]struct{}
	feeds    []feed.Feed
	seen     map[string]struct{}
	hasRSS   bool
	hasAtom  bool
	errCount int
}

// claim marks url as probed and reports whether it was new.
func (r *run) claim(url string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.probed[url]; ok {
		return false
	}
	r.probed[url] = struct{}{}
	return true
}

// Probe classifies the blind search candidates of siteURL and returns the
// feeds found, in candidate order. Per-candidate failures never fail the
// run. The returned error is non-nil only when siteURL is invalid, when
// ctx is cancelled, or when an emitted event was not handled.
func (p *Prober) Probe(ctx context.Context, siteURL string) ([]feed.Feed, error) {
	candidates, err := Candidates(siteURL, p.opts.SearchMode, p.opts.KeepQueryParams)
	if err != nil {
		return nil, err
	}

	r := &run{
		probed: make(map[string]struct{}, len(candidates)),
		seen:   make(map[string]struct{}),
	}

	if err := p.emit(eventbus.EventStart, eventbus.Message{
		Module: ModuleName,
		Text:   "starting blind search",
		URL:    siteURL,
		Total:  len(candidates),
	}); err != nil {
		return nil, err
	}

	batchSize := p.opts.ProbeConcurrency()
	for start := 0; start < len(candidates); start += batchSize {
		if start > 0 {
			if err := sleep(ctx, p.opts.RequestDelay); err != nil {
				return r.feeds, err
			}
		}
		if err := ctx.Err(); err != nil {
			return r.feeds, err
		}

		end := min(start+batchSize, len(candidates))
		results := p.classifyBatch(ctx, r, candidates[start:end])

		stop, err := p.record(ctx, r, results)
		if err != nil {
			return r.feeds, err
		}

		if err := p.emit(eventbus.EventProgress, eventbus.Message{
			Module: ModuleName,
			Text:   "probed",
			URL:    siteURL,
			Done:   end,
			Total:  len(candidates),
		}); err != nil {
			return r.feeds, err
		}

		if stop != "" {
			p.logger.Debug("blind search stopped early", "url", siteURL, "reason", stop)
			if err := p.emit(eventbus.EventLog, eventbus.Message{
				Module: ModuleName,
				Text:   stop,
				URL:    siteURL,
			}); err != nil {
				return r.feeds, err
			}
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return r.feeds, err
	}

	if err := p.emit(eventbus.EventEnd, eventbus.Message{
		Module: ModuleName,
		Text:   "blind search finished",
		URL:    siteURL,
		Done:   len(r.feeds),
	}); err != nil {
		return r.feeds, err
	}

	return r.feeds, nil
}

// classifyBatch classifies every unprobed URL of batch concurrently and
// returns the outcomes in batch order.
func (p *Prober) classifyBatch(ctx context.Context, r *run, batch []string) []outcome {
	results := make([]outcome, len(batch))

	var g errgroup.Group
	g.SetLimit(len(batch))
	for i, u := range batch {
		if !r.claim(u) {
			continue
		}
		results[i].url = u
		g.Go(func() error {
			res, err := p.classifier.Classify(ctx, u, "")
			results[i].res = res
			results[i].err = err
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return results
}

// record folds one batch of outcomes into r in batch order. It returns a
// non-empty reason when no further batch should start.
func (p *Prober) record(ctx context.Context, r *run, results []outcome) (string, error) {
	for _, o := range results {
		if o.url == "" {
			continue
		}

		if o.err != nil {
			if isBreakerError(ctx, o.err) {
				r.errCount++
			}
			p.logger.Debug("probe failed", "url", o.url, "error", o.err)
			if p.opts.ShowErrors {
				if err := p.emit(eventbus.EventError, eventbus.Message{
					Module: ModuleName,
					Text:   "probe failed",
					URL:    o.url,
					Err:    o.err,
				}); err != nil {
					return "", err
				}
			}
			continue
		}

		if o.res == nil {
			continue
		}
		if _, dup := r.seen[o.url]; dup {
			continue
		}
		if p.opts.MaxFeeds > 0 && len(r.feeds) >= p.opts.MaxFeeds {
			continue
		}
		r.seen[o.url] = struct{}{}

		f := feed.New(o.url, o.res, "")
		r.feeds = append(r.feeds, f)
		r.hasRSS = r.hasRSS || o.res.Type == feed.TypeRSS
		r.hasAtom = r.hasAtom || o.res.Type == feed.TypeAtom

		if err := p.emit(eventbus.EventFeed, f); err != nil {
			return "", err
		}
	}

	switch {
	case r.hasRSS && r.hasAtom && !p.opts.All:
		return "found rss and atom feeds", nil
	case p.opts.MaxFeeds > 0 && len(r.feeds) >= p.opts.MaxFeeds:
		return fmt.Sprintf("reached max feeds (%d)", p.opts.MaxFeeds), nil
	case r.errCount >= p.opts.MaxErrors:
		return fmt.Sprintf("too many errors (%d)", r.errCount), nil
	default:
		return "", nil
	}
}

func (p *Prober) emit(event string, payload any) error {
	if p.bus == nil {
		return nil
	}
	return p.bus.Emit(event, payload)
}

// isBreakerError reports whether err counts towards the error breaker.
// Only transport failures count; HTTP status errors do not.
func isBreakerError(ctx context.Context, err error) bool {
	var statusErr *fetch.StatusError
	switch {
	case ctx.Err() != nil:
		return false
	case errors.As(err, &statusErr):
		return false
	case errors.Is(err, feed.ErrContentTooLarge), errors.Is(err, feed.ErrInvalidURL):
		return false
	default:
		return true
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
