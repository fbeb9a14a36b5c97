package search

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/fetch"
)

func rssFeed(url, title string) feed.Feed {
	return feed.New(url, &feed.Result{Type: feed.TypeRSS, Title: &title}, "")
}

type stubStrategy struct {
	name  string
	feeds []feed.Feed
	err   error
	calls atomic.Int32
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Search(_ context.Context, _ string) ([]feed.Feed, error) {
	s.calls.Add(1)
	return s.feeds, s.err
}

func feedURLs(feeds []feed.Feed) []string {
	out := make([]string, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, f.URL)
	}
	return out
}

func TestNewStrategySet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   config.Strategies
		want StrategySet
	}{
		{"default", config.Strategies{}, StrategySet{Meta: true, Anchors: true, Blind: true}},
		{"deep added", config.Strategies{Deep: true}, StrategySet{Meta: true, Anchors: true, Blind: true, Deep: true}},
		{"meta only", config.Strategies{MetaOnly: true}, StrategySet{Meta: true}},
		{"anchors only", config.Strategies{AnchorsOnly: true}, StrategySet{Anchors: true}},
		{"blind only", config.Strategies{BlindOnly: true}, StrategySet{Blind: true}},
		{"deep only", config.Strategies{DeepOnly: true, Deep: true}, StrategySet{Deep: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NewStrategySet(tt.in); got != tt.want {
				t.Errorf("NewStrategySet(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}

	if !(StrategySet{}).Empty() || DefaultStrategySet().Empty() {
		t.Error("Empty mismatch")
	}
}

func TestNormalizeSiteURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "https://example.com/blog", want: "https://example.com/blog"},
		{in: "  example.com ", want: "https://example.com"},
		{in: "http://example.com/?a=1", want: "http://example.com/?a=1"},
		{in: "", wantErr: true},
		{in: "ftp://example.com", wantErr: true},
		{in: "https://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeSiteURL(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSiteURL) {
					t.Errorf("error = %v, want ErrInvalidSiteURL", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrchestratorSearch(t *testing.T) {
	t.Parallel()

	t.Run("first strategy to report a URL wins", func(t *testing.T) {
		t.Parallel()

		meta := &stubStrategy{name: "meta", feeds: []feed.Feed{rssFeed("https://example.com/feed", "From meta")}}
		blind := &stubStrategy{name: "blind", feeds: []feed.Feed{
			rssFeed("https://example.com/feed", "From blind"),
			rssFeed("https://example.com/atom", "Atom"),
		}}
		opts := config.NewSearchOptions()
		opts.All = true
		o := New(nil, nil, opts, WithStrategies(meta, blind))

		got, err := o.Search(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"https://example.com/feed", "https://example.com/atom"}; !slices.Equal(feedURLs(got), want) {
			t.Fatalf("feeds = %v, want %v", feedURLs(got), want)
		}
		if got[0].DisplayTitle() != "From meta" {
			t.Errorf("title = %q, want the first strategy's", got[0].DisplayTitle())
		}
	})

	t.Run("stops after the first productive strategy without a cap", func(t *testing.T) {
		t.Parallel()

		empty := &stubStrategy{name: "meta"}
		anchors := &stubStrategy{name: "anchors", feeds: []feed.Feed{rssFeed("https://example.com/a", "a")}}
		blind := &stubStrategy{name: "blind", feeds: []feed.Feed{rssFeed("https://example.com/b", "b")}}
		o := New(nil, nil, config.NewSearchOptions(), WithStrategies(empty, anchors, blind))

		got, err := o.Search(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d feeds, want 1", len(got))
		}
		if empty.calls.Load() != 1 || blind.calls.Load() != 0 {
			t.Errorf("calls meta=%d blind=%d, want 1 and 0", empty.calls.Load(), blind.calls.Load())
		}
	})

	t.Run("max feeds cap skips later strategies and truncates", func(t *testing.T) {
		t.Parallel()

		meta := &stubStrategy{name: "meta", feeds: []feed.Feed{rssFeed("https://example.com/1", "1")}}
		blind := &stubStrategy{name: "blind", feeds: []feed.Feed{
			rssFeed("https://example.com/2", "2"),
			rssFeed("https://example.com/3", "3"),
		}}
		deep := &stubStrategy{name: "deep", feeds: []feed.Feed{rssFeed("https://example.com/4", "4")}}
		opts := config.NewSearchOptions()
		opts.MaxFeeds = 2
		o := New(nil, nil, opts, WithStrategies(meta, blind, deep))

		got, err := o.Search(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"https://example.com/1", "https://example.com/2"}; !slices.Equal(feedURLs(got), want) {
			t.Errorf("feeds = %v, want %v", feedURLs(got), want)
		}
		if deep.calls.Load() != 0 {
			t.Error("deep search ran although the cap was met")
		}
	})

	t.Run("all runs every strategy without truncation", func(t *testing.T) {
		t.Parallel()

		a := &stubStrategy{name: "a", feeds: []feed.Feed{rssFeed("https://example.com/1", "1")}}
		b := &stubStrategy{name: "b", feeds: []feed.Feed{rssFeed("https://example.com/2", "2")}}
		c := &stubStrategy{name: "c", feeds: []feed.Feed{rssFeed("https://example.com/3", "3")}}
		opts := config.NewSearchOptions()
		opts.MaxFeeds = 1
		opts.All = true
		o := New(nil, nil, opts, WithStrategies(a, b, c))

		got, err := o.Search(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("got %d feeds, want 3", len(got))
		}
	})

	t.Run("non-fatal strategy error continues", func(t *testing.T) {
		t.Parallel()

		broken := &stubStrategy{name: "broken", err: errors.New("bad input")}
		ok := &stubStrategy{name: "ok", feeds: []feed.Feed{rssFeed("https://example.com/feed", "f")}}
		o := New(nil, nil, config.NewSearchOptions(), WithStrategies(broken, ok))

		got, err := o.Search(context.Background(), "https://example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d feeds, want 1", len(got))
		}
	})

	t.Run("unhandled error event aborts", func(t *testing.T) {
		t.Parallel()

		failing := &stubStrategy{name: "failing", err: eventbus.ErrUnhandledError}
		later := &stubStrategy{name: "later"}
		o := New(nil, nil, config.NewSearchOptions(), WithStrategies(failing, later))

		if _, err := o.Search(context.Background(), "https://example.com"); !errors.Is(err, eventbus.ErrUnhandledError) {
			t.Errorf("error = %v, want ErrUnhandledError", err)
		}
		if later.calls.Load() != 0 {
			t.Error("later strategy ran after a fatal error")
		}
	})

	t.Run("invalid site URL", func(t *testing.T) {
		t.Parallel()

		o := New(nil, nil, config.NewSearchOptions(), WithStrategies())
		if _, err := o.Search(context.Background(), "ftp://example.com"); !errors.Is(err, ErrInvalidSiteURL) {
			t.Errorf("error = %v, want ErrInvalidSiteURL", err)
		}
	})

	t.Run("strategy order follows the set", func(t *testing.T) {
		t.Parallel()

		o := New(&pageFetcher{}, &urlClassifier{}, config.NewSearchOptions(),
			WithStrategySet(StrategySet{Meta: true, Anchors: true, Blind: true, Deep: true}))
		want := []string{MetaModuleName, AnchorsModuleName, "blindsearch", "deepsearch"}
		if got := o.Strategies(); !slices.Equal(got, want) {
			t.Errorf("strategies = %v, want %v", got, want)
		}
	})
}

// pageFetcher serves fixed pages and counts fetches per URL.
type pageFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls map[string]int
}

func (f *pageFetcher) Fetch(_ context.Context, url string, _ time.Duration, _ map[string]string) (*fetch.Response, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	f.mu.Unlock()

	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.StatusError{URL: url, StatusCode: http.StatusNotFound}
	}
	return &fetch.Response{URL: url, StatusCode: http.StatusOK, Body: body}, nil
}

func (f *pageFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// urlClassifier classifies by URL from a fixed table and records the
// classified URLs in sorted order.
type urlClassifier struct {
	mu    sync.Mutex
	feeds map[string]feed.Type
	calls []string
}

func (c *urlClassifier) Classify(_ context.Context, url, _ string) (*feed.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, url)
	c.mu.Unlock()

	typ, ok := c.feeds[url]
	if !ok {
		return nil, nil
	}
	title := "Classified " + string(typ)
	return &feed.Result{Type: typ, Title: &title}, nil
}

func (c *urlClassifier) classified() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.calls)
	slices.Sort(out)
	return out
}

const sitePage = `<html><head>
<title>Example</title>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" title="Posts" href="/posts.xml">
<link rel="alternate" type="application/atom+xml; charset=utf-8" title="Comments" href="https://example.com/comments.atom">
<link rel="alternate" hreflang="de" href="/de/">
<link rel="feed" href="/h-feed">
</head><body>
<a href="/about">About us</a>
<a href="/rss/">Subscribe</a>
<a href="/news">RSS</a>
<a href="https://feeds.feedburner.com/example/rss">Newsletter</a>
<a href="https://other.org/page">Subscribe elsewhere</a>
<a href="/logo.png">feed icon</a>
</body></html>`

func TestPageScanners(t *testing.T) {
	t.Parallel()

	newEnv := func(fetcher Fetcher, classifier Classifier, opts config.SearchOptions) *env {
		opts = opts.Normalize(nil)
		return &env{
			fetcher:    fetcher,
			classifier: classifier,
			opts:       opts,
			logger:     slog.New(slog.DiscardHandler),
			loader:     newPageLoader(fetcher, opts.Timeout, nil),
		}
	}

	t.Run("meta scan classifies feed alternates", func(t *testing.T) {
		t.Parallel()

		fetcher := &pageFetcher{pages: map[string]string{"https://example.com/": sitePage}}
		classifier := &urlClassifier{feeds: map[string]feed.Type{
			"https://example.com/posts.xml":     feed.TypeRSS,
			"https://example.com/comments.atom": feed.TypeAtom,
		}}
		s := newMetaScanner(newEnv(fetcher, classifier, config.NewSearchOptions()))

		got, err := s.Search(context.Background(), "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"https://example.com/posts.xml", "https://example.com/comments.atom"}; !slices.Equal(feedURLs(got), want) {
			t.Fatalf("feeds = %v, want %v", feedURLs(got), want)
		}
		if got[0].DisplayTitle() != "Posts" {
			t.Errorf("title = %q, want the link title", got[0].DisplayTitle())
		}
		if got[0].FeedTitle == nil || *got[0].FeedTitle != "Classified rss" {
			t.Errorf("feedTitle = %v, want the classifier title", got[0].FeedTitle)
		}
		want := []string{"https://example.com/comments.atom", "https://example.com/h-feed", "https://example.com/posts.xml"}
		if c := classifier.classified(); !slices.Equal(c, want) {
			t.Errorf("classified %v, want %v", c, want)
		}
	})

	t.Run("anchor scan classifies feed-like anchors", func(t *testing.T) {
		t.Parallel()

		fetcher := &pageFetcher{pages: map[string]string{"https://example.com/": sitePage}}
		classifier := &urlClassifier{feeds: map[string]feed.Type{
			"https://example.com/rss/": feed.TypeRSS,
		}}
		s := newAnchorScanner(newEnv(fetcher, classifier, config.NewSearchOptions()))

		got, err := s.Search(context.Background(), "https://example.com/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].DisplayTitle() != "Subscribe" {
			t.Fatalf("feeds = %+v, want /rss/ labelled Subscribe", got)
		}
		want := []string{
			"https://example.com/news",
			"https://example.com/rss/",
			"https://feeds.feedburner.com/example/rss",
		}
		if c := classifier.classified(); !slices.Equal(c, want) {
			t.Errorf("classified %v, want %v", c, want)
		}
	})

	t.Run("anchor scan considers foreign text matches with check foreign feeds", func(t *testing.T) {
		t.Parallel()

		fetcher := &pageFetcher{pages: map[string]string{"https://example.com/": sitePage}}
		classifier := &urlClassifier{}
		opts := config.NewSearchOptions()
		opts.CheckForeignFeeds = true
		s := newAnchorScanner(newEnv(fetcher, classifier, opts))

		if _, err := s.Search(context.Background(), "https://example.com/"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c := classifier.classified(); !slices.Contains(c, "https://other.org/page") {
			t.Errorf("classified %v, want other.org included", c)
		}
	})

	t.Run("scans share one page fetch", func(t *testing.T) {
		t.Parallel()

		fetcher := &pageFetcher{pages: map[string]string{"https://example.com/": sitePage}}
		e := newEnv(fetcher, &urlClassifier{}, config.NewSearchOptions())

		for _, s := range []*pageScanner{newMetaScanner(e), newAnchorScanner(e)} {
			if _, err := s.Search(context.Background(), "https://example.com/"); err != nil {
				t.Fatalf("%s: unexpected error: %v", s.Name(), err)
			}
		}
		if n := fetcher.count("https://example.com/"); n != 1 {
			t.Errorf("site page fetched %d times, want 1", n)
		}
	})

	t.Run("unavailable site page yields nothing", func(t *testing.T) {
		t.Parallel()

		s := newMetaScanner(newEnv(&pageFetcher{}, &urlClassifier{}, config.NewSearchOptions()))
		got, err := s.Search(context.Background(), "https://example.com/")
		if err != nil || len(got) != 0 {
			t.Errorf("got %v, %v; want no feeds and no error", got, err)
		}
	})

	t.Run("unavailable site page with show errors and no listener", func(t *testing.T) {
		t.Parallel()

		opts := config.NewSearchOptions()
		opts.ShowErrors = true
		e := newEnv(&pageFetcher{}, &urlClassifier{}, opts)
		e.bus = eventbus.New()
		s := newMetaScanner(e)

		if _, err := s.Search(context.Background(), "https://example.com/"); !errors.Is(err, eventbus.ErrUnhandledError) {
			t.Errorf("error = %v, want ErrUnhandledError", err)
		}
	})
}

// gateStrategy blocks its first call until release is closed.
type gateStrategy struct {
	entered chan struct{}
	release chan struct{}
	n       atomic.Int32
}

func (g *gateStrategy) Name() string { return "gate" }

func (g *gateStrategy) Search(ctx context.Context, _ string) ([]feed.Feed, error) {
	if g.n.Add(1) == 1 {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, nil
}

// TestPageLoader tests the page cache shared by the page scans.
func TestPageLoader(t *testing.T) {
	t.Parallel()

	t.Run("page stays cached until the last run releases it", func(t *testing.T) {
		t.Parallel()

		const site = "https://example.com/"
		fetcher := &pageFetcher{pages: map[string]string{site: sitePage}}
		l := newPageLoader(fetcher, time.Second, nil)

		l.hold(site)
		l.hold(site)
		if _, err := l.load(context.Background(), site); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		l.release(site)
		if _, err := l.load(context.Background(), site); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := fetcher.count(site); n != 1 {
			t.Errorf("fetched %d times while held, want 1", n)
		}

		l.release(site)
		if _, err := l.load(context.Background(), site); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := fetcher.count(site); n != 2 {
			t.Errorf("fetched %d times after release, want 2", n)
		}
	})

	t.Run("overlapping searches of one site share the page", func(t *testing.T) {
		t.Parallel()

		const site = "https://example.com/"
		fetcher := &pageFetcher{pages: map[string]string{site: sitePage}}
		opts := config.NewSearchOptions()
		opts.All = true
		o := New(fetcher, &urlClassifier{}, opts, WithLogger(slog.New(slog.DiscardHandler)))
		gate := &gateStrategy{entered: make(chan struct{}), release: make(chan struct{})}
		o.strategies = []Strategy{newMetaScanner(o.env), gate, newAnchorScanner(o.env)}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			_, err := o.Search(ctx, site)
			done <- err
		}()

		<-gate.entered
		if _, err := o.Search(ctx, site); err != nil {
			t.Fatalf("second search: %v", err)
		}
		close(gate.release)
		if err := <-done; err != nil {
			t.Fatalf("first search: %v", err)
		}

		if n := fetcher.count(site); n != 1 {
			t.Errorf("site page fetched %d times, want 1", n)
		}
	})
}

func TestOrchestratorWithHTTPServer(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><head><link rel="alternate" type="application/rss+xml" title="Main" href="/main.xml"></head>` + //nolint:errcheck
				`<body><a href="/about">About</a></body></html>`))
		case "/main.xml", "/feed":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(`<rss version="2.0"><channel><title>Main feed</title><description>d</description><item></item></channel></rss>`)) //nolint:errcheck
		case "/atom.xml":
			w.Header().Set("Content-Type", "application/atom+xml")
			_, _ = w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"><title>Atom feed</title><entry><title>e</title></entry></feed>`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := fetch.NewClient()
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	classifier := feed.NewClassifier(client)

	t.Run("meta scan satisfies the default run", func(t *testing.T) {
		t.Parallel()

		o := New(client, classifier, config.NewSearchOptions())
		got, err := o.Search(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].URL != server.URL+"/main.xml" {
			t.Fatalf("feeds = %v, want only main.xml", feedURLs(got))
		}
		if got[0].DisplayTitle() != "Main" {
			t.Errorf("title = %q, want Main", got[0].DisplayTitle())
		}
	})

	t.Run("all merges meta and blind results", func(t *testing.T) {
		t.Parallel()

		opts := config.NewSearchOptions()
		opts.All = true
		opts.SearchMode = config.SearchModeFast
		o := New(client, classifier, opts)

		got, err := o.Search(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		urls := feedURLs(got)
		for _, want := range []string{server.URL + "/main.xml", server.URL + "/feed", server.URL + "/atom.xml"} {
			if !slices.Contains(urls, want) {
				t.Errorf("missing %s in %v", want, urls)
			}
		}
		if urls[0] != server.URL+"/main.xml" {
			t.Errorf("meta result should come first, got %v", urls)
		}
		seen := make(map[string]bool)
		for _, u := range urls {
			if seen[u] {
				t.Errorf("duplicate feed %s", u)
			}
			seen[u] = true
		}
	})
}

func TestBatchProcessor(t *testing.T) {
	t.Parallel()

	factory := func(site string) (*Orchestrator, error) {
		if strings.Contains(site, "broken") {
			return nil, errors.New("no config")
		}
		s := &stubStrategy{name: "stub", feeds: []feed.Feed{rssFeed(site+"/feed", site)}}
		return New(nil, nil, config.NewSearchOptions(), WithStrategies(s)), nil
	}

	t.Run("returns results in input order", func(t *testing.T) {
		t.Parallel()

		sites := []string{"https://a.example", "https://broken.example", "https://c.example"}
		bp := NewBatchProcessor(factory, WithConcurrency(2))

		results, err := bp.ProcessBatch(context.Background(), sites)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("got %d results, want 3", len(results))
		}
		for i, r := range results {
			if r.Site != sites[i] {
				t.Errorf("result %d is for %s, want %s", i, r.Site, sites[i])
			}
		}
		if results[1].Err == nil {
			t.Error("expected an error for the broken site")
		}
		if len(results[0].Feeds) != 1 || results[0].Feeds[0].URL != "https://a.example/feed" {
			t.Errorf("unexpected feeds %v", results[0].Feeds)
		}
	})

	t.Run("callback sees every site", func(t *testing.T) {
		t.Parallel()

		var count atomic.Int32
		bp := NewBatchProcessor(factory)
		err := bp.ProcessBatchWithCallback(context.Background(),
			[]string{"https://a.example", "https://b.example"},
			func(SiteResult, int) { count.Add(1) })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count.Load() != 2 {
			t.Errorf("callback called %d times, want 2", count.Load())
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		bp := NewBatchProcessor(factory)
		if _, err := bp.ProcessBatch(ctx, []string{"https://a.example"}); !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("ignores non-positive concurrency", func(t *testing.T) {
		t.Parallel()

		bp := NewBatchProcessor(factory, WithConcurrency(0))
		if bp.concurrency != DefaultBatchConcurrency {
			t.Errorf("concurrency = %d, want %d", bp.concurrency, DefaultBatchConcurrency)
		}
	})
}
