package search

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/crawler"
	"github.com/nao1215/feedscan/internal/eventbus"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/scope"
)

// Module names of the page scans.
const (
	MetaModuleName    = "metasearch"
	AnchorsModuleName = "anchors"
)

// feedMIMETypes are <link type> values that announce a feed.
var feedMIMETypes = map[string]struct{}{
	"application/rss+xml":    {},
	"application/atom+xml":   {},
	"application/rdf+xml":    {},
	"application/feed+json":  {},
	"application/json+feed":  {},
	"application/x-rss+xml":  {},
	"application/x-atom+xml": {},
	"application/xml":        {},
	"text/rss+xml":           {},
	"text/xml":               {},
}

var (
	feedURLPattern  = regexp.MustCompile(`(?i)(rss|atom|feed|syndicat|jsonfeed|\.xml$|\.rdf$)`)
	feedTextPattern = regexp.MustCompile(`(?i)\b(rss|atom|feeds?|subscribe|syndicat\w*)\b`)
)

// env carries the collaborators shared by every strategy of an
// Orchestrator.
type env struct {
	fetcher    Fetcher
	classifier Classifier
	opts       config.SearchOptions
	bus        *eventbus.Bus
	logger     *slog.Logger
	loader     *pageLoader
}

func (e *env) emit(event string, payload any) error {
	if e.bus == nil {
		return nil
	}
	return e.bus.Emit(event, payload)
}

// pageScanner classifies the candidates that pick selects from the site
// page.
type pageScanner struct {
	*env
	name string
	pick func(siteURL string, p *page, opts config.SearchOptions) []candidate
}

// newMetaScanner scans <link rel="alternate"> elements. The link's title
// attribute labels the feed.
func newMetaScanner(e *env) *pageScanner {
	return &pageScanner{env: e, name: MetaModuleName, pick: pickAlternates}
}

// newAnchorScanner scans <a> elements whose URL or text looks like a feed
// link. The anchor text labels the feed.
func newAnchorScanner(e *env) *pageScanner {
	return &pageScanner{env: e, name: AnchorsModuleName, pick: pickAnchors}
}

// Name implements Strategy.
func (s *pageScanner) Name() string {
	return s.name
}

// Search implements Strategy. A site page that cannot be fetched yields no
// feeds and no error.
func (s *pageScanner) Search(ctx context.Context, siteURL string) ([]feed.Feed, error) {
	if err := s.emit(eventbus.EventStart, eventbus.Message{
		Module: s.name,
		Text:   "scanning site page",
		URL:    siteURL,
	}); err != nil {
		return nil, err
	}

	p, err := s.loader.load(ctx, siteURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("site page unavailable", "module", s.name, "url", siteURL, "error", err)
		if err := s.reportError(siteURL, "site page unavailable", err); err != nil {
			return nil, err
		}
		return nil, s.emit(eventbus.EventEnd, eventbus.Message{Module: s.name, URL: siteURL, Text: "scan finished"})
	}

	candidates := s.pick(siteURL, p, s.opts)
	verdicts := classifyAll(ctx, s.classifier, candidates, s.opts.ProbeConcurrency())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var feeds []feed.Feed
	seen := make(map[string]struct{}, len(verdicts))
	for _, v := range verdicts {
		if v.err != nil {
			s.logger.Debug("classify failed", "module", s.name, "url", v.url, "error", v.err)
			if err := s.reportError(v.url, "classify failed", v.err); err != nil {
				return feeds, err
			}
			continue
		}
		if v.res == nil {
			continue
		}
		if _, dup := seen[v.url]; dup {
			continue
		}
		seen[v.url] = struct{}{}

		f := feed.New(v.url, v.res, v.label)
		feeds = append(feeds, f)
		if err := s.emit(eventbus.EventFeed, f); err != nil {
			return feeds, err
		}
	}

	return feeds, s.emit(eventbus.EventEnd, eventbus.Message{
		Module: s.name,
		Text:   "scan finished",
		URL:    siteURL,
		Done:   len(feeds),
		Total:  len(candidates),
	})
}

func (s *pageScanner) reportError(rawURL, text string, err error) error {
	if !s.opts.ShowErrors {
		return nil
	}
	return s.emit(eventbus.EventError, eventbus.Message{
		Module: s.name,
		Text:   text,
		URL:    rawURL,
		Err:    err,
	})
}

// pickAlternates selects <link> elements with rel "alternate" or "feed"
// and a feed MIME type. A rel="feed" link may omit the type.
func pickAlternates(_ string, p *page, _ config.SearchOptions) []candidate {
	var out []candidate
	seen := make(map[string]struct{})
	for _, l := range p.parsed.Links {
		if !l.HasRel("alternate") && !l.HasRel("feed") {
			continue
		}
		_, feedType := feedMIMETypes[mimeType(l.Type)]
		if !feedType && (l.Type != "" || !l.HasRel("feed")) {
			continue
		}
		out = appendCandidate(out, seen, l.URL, l.Title)
	}
	return out
}

// pickAnchors selects anchors whose URL looks like a feed, or whose text
// mentions one and which stay on the site. Other domains are considered
// only for feed-like URLs or with CheckForeignFeeds.
func pickAnchors(siteURL string, p *page, opts config.SearchOptions) []candidate {
	var out []candidate
	seen := map[string]struct{}{scope.Normalize(p.url): {}, scope.Normalize(siteURL): {}}
	for _, a := range p.parsed.Anchors {
		if scope.IsExcluded(a.URL) {
			continue
		}

		urlLike := feedURLPattern.MatchString(pathAndQuery(a.URL))
		textLike := feedTextPattern.MatchString(a.Text) || feedTextPattern.MatchString(a.Title)
		if !urlLike && !textLike {
			continue
		}
		if !urlLike && !opts.CheckForeignFeeds && !scope.SameSite(siteURL, a.URL) {
			continue
		}

		out = appendCandidate(out, seen, a.URL, anchorLabel(a))
	}
	return out
}

func appendCandidate(out []candidate, seen map[string]struct{}, rawURL, label string) []candidate {
	key := scope.Normalize(rawURL)
	if _, ok := seen[key]; ok {
		return out
	}
	seen[key] = struct{}{}
	return append(out, candidate{url: key, label: label})
}

func anchorLabel(a crawler.Link) string {
	if a.Text != "" {
		return a.Text
	}
	return a.Title
}

// mimeType strips parameters such as "; charset=utf-8".
func mimeType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

func pathAndQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.RawQuery == "" {
		return u.Path
	}
	return u.Path + "?" + u.RawQuery
}

// isFatal reports whether a strategy error must abort discovery.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, eventbus.ErrUnhandledError) || ctx.Err() != nil
}
