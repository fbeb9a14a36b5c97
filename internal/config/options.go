package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// SearchMode selects how many endpoint names the blind prober tries.
type SearchMode string

const (
	// SearchModeFast probes only the most common endpoint names.
	SearchModeFast SearchMode = "fast"

	// SearchModeStandard adds common CMS and framework endpoints.
	SearchModeStandard SearchMode = "standard"

	// SearchModeExhaustive adds rare and legacy endpoints.
	SearchModeExhaustive SearchMode = "exhaustive"
)

// Search defaults.
const (
	DefaultSearchTimeout    = 5 * time.Second
	MinSearchTimeout        = 1 * time.Second
	MaxSearchTimeout        = 60 * time.Second
	DefaultMaxDepth         = 3
	DefaultCrawlConcurrency = 5
	DefaultProbeConcurrency = 3
	DefaultMaxLinks         = 1000
	DefaultMaxErrors        = 5
	DefaultMaxFeeds         = 0
	DefaultSearchMode       = SearchModeStandard
	DefaultRequestDelay     = time.Duration(0)
	DefaultSiteConcurrency  = 3
)

// ParseSearchMode parses a search mode name case-insensitively.
func ParseSearchMode(s string) (SearchMode, error) {
	m := SearchMode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q (expected fast, standard or exhaustive)", ErrInvalidSearchMode, s)
	}
	return m, nil
}

// Valid reports whether m is a known mode.
func (m SearchMode) Valid() bool {
	switch m {
	case SearchModeFast, SearchModeStandard, SearchModeExhaustive:
		return true
	default:
		return false
	}
}

// String returns the mode name.
func (m SearchMode) String() string {
	return string(m)
}

// SearchOptions tunes one discovery run. Use NewSearchOptions for defaults
// and Normalize before use.
type SearchOptions struct {
	// Timeout applies to every single request.
	Timeout time.Duration

	// MaxDepth is the deepest crawl level; 0 crawls the start page only.
	MaxDepth int

	// Concurrency is the number of concurrent requests per strategy.
	// Zero selects each strategy's own default.
	Concurrency int

	// MaxLinks bounds the number of distinct URLs a crawl visits.
	MaxLinks int

	// CheckForeignFeeds classifies links to other domains without
	// crawling them.
	CheckForeignFeeds bool

	// MaxErrors trips the error breaker of a crawl or probe run.
	MaxErrors int

	// MaxFeeds stops a run once that many feeds are found. Zero is
	// unlimited.
	MaxFeeds int

	// All disables early termination and result truncation.
	All bool

	// KeepQueryParams appends the site URL's query string to probe
	// candidates.
	KeepQueryParams bool

	// SearchMode selects the blind search endpoint tier.
	SearchMode SearchMode

	// RequestDelay is slept between probe batches and between crawler
	// fetches.
	RequestDelay time.Duration

	// ShowErrors emits per-URL failures as error events.
	ShowErrors bool
}

// NewSearchOptions returns options populated with the defaults.
func NewSearchOptions() SearchOptions {
	return SearchOptions{
		Timeout:      DefaultSearchTimeout,
		MaxDepth:     DefaultMaxDepth,
		MaxLinks:     DefaultMaxLinks,
		MaxErrors:    DefaultMaxErrors,
		MaxFeeds:     DefaultMaxFeeds,
		SearchMode:   DefaultSearchMode,
		RequestDelay: DefaultRequestDelay,
	}
}

// Normalize replaces invalid values with the nearest valid value or the
// default, logging a warning for each adjustment. It never fails.
// A nil logger discards the warnings.
func (o SearchOptions) Normalize(logger *slog.Logger) SearchOptions {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	warn := func(field string, got, used any) {
		logger.Warn("invalid search option, using fallback",
			"option", field, "value", got, "using", used)
	}

	switch {
	case o.Timeout == 0:
		o.Timeout = DefaultSearchTimeout
	case o.Timeout < MinSearchTimeout:
		warn("timeout", o.Timeout, MinSearchTimeout)
		o.Timeout = MinSearchTimeout
	case o.Timeout > MaxSearchTimeout:
		warn("timeout", o.Timeout, MaxSearchTimeout)
		o.Timeout = MaxSearchTimeout
	}

	if o.MaxDepth < 0 {
		warn("maxDepth", o.MaxDepth, DefaultMaxDepth)
		o.MaxDepth = DefaultMaxDepth
	}

	if o.Concurrency < 0 {
		warn("concurrency", o.Concurrency, 0)
		o.Concurrency = 0
	}

	if o.MaxLinks <= 0 {
		if o.MaxLinks < 0 {
			warn("maxLinks", o.MaxLinks, DefaultMaxLinks)
		}
		o.MaxLinks = DefaultMaxLinks
	}

	if o.MaxErrors <= 0 {
		if o.MaxErrors < 0 {
			warn("maxErrors", o.MaxErrors, DefaultMaxErrors)
		}
		o.MaxErrors = DefaultMaxErrors
	}

	if o.MaxFeeds < 0 {
		warn("maxFeeds", o.MaxFeeds, 0)
		o.MaxFeeds = 0
	}

	if o.SearchMode == "" {
		o.SearchMode = DefaultSearchMode
	} else if m, err := ParseSearchMode(string(o.SearchMode)); err != nil {
		warn("searchMode", o.SearchMode, DefaultSearchMode)
		o.SearchMode = DefaultSearchMode
	} else {
		o.SearchMode = m
	}

	if o.RequestDelay < 0 {
		warn("requestDelay", o.RequestDelay, time.Duration(0))
		o.RequestDelay = 0
	}

	return o
}

// CrawlConcurrency returns the crawler worker count.
func (o SearchOptions) CrawlConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultCrawlConcurrency
}

// ProbeConcurrency returns the prober batch size.
func (o SearchOptions) ProbeConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultProbeConcurrency
}
