package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/feedscan/internal/crawler"
	"github.com/nao1215/feedscan/internal/fetch"
)

// Fetcher retrieves pages. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, headers map[string]string) (*fetch.Response, error)
}

// page is a fetched and parsed site page.
type page struct {
	url    string
	parsed *crawler.ParseResult
}

// pageLoader fetches and parses site pages once per discovery run so that
// the meta and anchor scans share a single request. Pages stay cached while
// at least one run of their site holds them.
type pageLoader struct {
	fetcher Fetcher
	timeout time.Duration
	headers map[string]string

	group singleflight.Group
	mu    sync.Mutex
	pages map[string]*page
	refs  map[string]int
}

func newPageLoader(fetcher Fetcher, timeout time.Duration, headers map[string]string) *pageLoader {
	return &pageLoader{
		fetcher: fetcher,
		timeout: timeout,
		headers: headers,
		pages:   make(map[string]*page),
		refs:    make(map[string]int),
	}
}

// load returns the parsed page at siteURL. Failures are not remembered.
func (l *pageLoader) load(ctx context.Context, siteURL string) (*page, error) {
	l.mu.Lock()
	p, ok := l.pages[siteURL]
	l.mu.Unlock()
	if ok {
		return p, nil
	}

	v, err, _ := l.group.Do(siteURL, func() (any, error) {
		resp, err := l.fetcher.Fetch(ctx, siteURL, l.timeout, l.headers)
		if err != nil {
			return nil, err
		}
		parser, err := crawler.NewParser(resp.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", resp.URL, err)
		}
		parsed, err := parser.Parse(strings.NewReader(resp.Body))
		if err != nil {
			return nil, err
		}

		p := &page{url: resp.URL, parsed: parsed}
		l.mu.Lock()
		l.pages[siteURL] = p
		l.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*page), nil //nolint:forcetypeassert // only *page is stored
}

// hold marks siteURL as used by one more run.
func (l *pageLoader) hold(siteURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs[siteURL]++
}

// release ends one run of siteURL. The cached page is dropped when no run
// holds it any more.
func (l *pageLoader) release(siteURL string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs[siteURL] > 1 {
		l.refs[siteURL]--
		return
	}
	delete(l.refs, siteURL)
	delete(l.pages, siteURL)
}
