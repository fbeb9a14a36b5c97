package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/nao1215/feedscan/internal/fetch"
)

const (
	// MaxContentSize is the largest document the classifier inspects.
	MaxContentSize = 10 * 1024 * 1024

	// MinTimeout and MaxTimeout bound the fetch timeout.
	MinTimeout = 1 * time.Second
	MaxTimeout = 60 * time.Second

	// DefaultTimeout is used when no timeout is configured.
	DefaultTimeout = 5 * time.Second

	// DefaultCacheTTL is how long classification results are remembered.
	DefaultCacheTTL = 10 * time.Minute
)

// oEmbedPaths are path fragments of oEmbed endpoints. Their JSON responses
// overlap JSON Feed detection, so they are never classified.
var oEmbedPaths = []string{"/wp-json/oembed/", "/oembed"}

// Fetcher retrieves documents for classification. *fetch.Client
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration, headers map[string]string) (*fetch.Response, error)
}

// Classifier detects feeds by URL, fetching content on demand.
// It is safe for concurrent use.
type Classifier struct {
	fetcher  Fetcher
	timeout  time.Duration
	headers  map[string]string
	cacheTTL time.Duration
	cache    *cache.Cache
	group    singleflight.Group
	logger   *slog.Logger
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithTimeout sets the fetch timeout. Values outside [MinTimeout,
// MaxTimeout] are clamped with a warning.
func WithTimeout(timeout time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.timeout = timeout
	}
}

// WithRequestHeaders sets headers sent with every classification fetch.
func WithRequestHeaders(headers map[string]string) ClassifierOption {
	return func(c *Classifier) {
		c.headers = headers
	}
}

// WithCacheTTL sets how long results are cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) ClassifierOption {
	return func(c *Classifier) {
		c.cacheTTL = ttl
	}
}

// WithLogger sets the classifier's logger.
func WithLogger(logger *slog.Logger) ClassifierOption {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClassifier creates a Classifier that fetches through fetcher.
func NewClassifier(fetcher Fetcher, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		fetcher:  fetcher,
		timeout:  DefaultTimeout,
		cacheTTL: DefaultCacheTTL,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.timeout = ClampTimeout(c.logger, c.timeout)
	if c.cacheTTL > 0 {
		c.cache = cache.New(c.cacheTTL, 2*c.cacheTTL)
	}

	return c
}

// Timeout returns the effective fetch timeout.
func (c *Classifier) Timeout() time.Duration {
	return c.timeout
}

// cachedResult distinguishes a cached "not a feed" from a cache miss.
type cachedResult struct {
	res *Result
}

// Classify reports whether rawURL is a feed. When content is empty it is
// fetched. A nil result with a nil error means "not a feed".
//
// Errors: ErrInvalidURL for non-http(s) URLs, ErrContentTooLarge for
// documents above MaxContentSize, and fetch failures as returned by the
// Fetcher (network errors or *fetch.StatusError).
func (c *Classifier) Classify(ctx context.Context, rawURL, content string) (*Result, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if IsOEmbedURL(u) {
		return nil, nil
	}

	if content != "" {
		if len(content) > MaxContentSize {
			return nil, fmt.Errorf("%w: %s (%d bytes)", ErrContentTooLarge, rawURL, len(content))
		}
		return Detect(content), nil
	}

	key := u.String()
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			if cr, ok := v.(cachedResult); ok {
				return cr.res, nil
			}
		}
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchAndDetect(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	res, _ := v.(*Result)
	return res, nil
}

func (c *Classifier) fetchAndDetect(ctx context.Context, rawURL string) (*Result, error) {
	resp, err := c.fetcher.Fetch(ctx, rawURL, c.timeout, c.headers)
	if err != nil {
		return nil, err
	}

	if resp.Truncated {
		return nil, fmt.Errorf("%w: %s", ErrContentTooLarge, rawURL)
	}

	res := Detect(resp.Body)
	if c.cache != nil {
		c.cache.SetDefault(rawURL, cachedResult{res: res})
	}

	if res != nil {
		c.logger.Debug("feed detected", "url", rawURL, "type", res.Type)
	}
	return res, nil
}

// IsOEmbedURL reports whether u addresses a known oEmbed endpoint.
func IsOEmbedURL(u *url.URL) bool {
	p := strings.ToLower(u.Path)
	for _, fragment := range oEmbedPaths {
		if strings.Contains(p, fragment) {
			return true
		}
	}
	return false
}

// ClampTimeout bounds timeout to [MinTimeout, MaxTimeout], logging a
// warning when it has to adjust. Zero selects DefaultTimeout silently.
func ClampTimeout(logger *slog.Logger, timeout time.Duration) time.Duration {
	switch {
	case timeout == 0:
		return DefaultTimeout
	case timeout < MinTimeout:
		logger.Warn("timeout too small, clamping", "timeout", timeout, "min", MinTimeout)
		return MinTimeout
	case timeout > MaxTimeout:
		logger.Warn("timeout too large, clamping", "timeout", timeout, "max", MaxTimeout)
		return MaxTimeout
	default:
		return timeout
	}
}
