package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/proxy"
)

const (
	// DefaultUserAgent is a current desktop browser User-Agent. Many sites
	// answer unknown agents with 403, which would hide their feeds.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36"

	// DefaultMaxBodySize is the body size callers are interested in. Fetch
	// reads one byte more so that oversized bodies remain detectable.
	DefaultMaxBodySize int64 = 10 * 1024 * 1024

	// maxRedirects bounds redirect chains.
	maxRedirects = 10

	// drainLimit is how much of an error response body is discarded so the
	// connection can be reused.
	drainLimit = 4096
)

// defaultHeaders are sent with every request unless overridden per call.
// Accept-Encoding is negotiated by the transport, which also decompresses.
var defaultHeaders = map[string]string{
	"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9," +
		"application/rss+xml,application/atom+xml,application/feed+json,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"Connection":      "keep-alive",
}

// Response is a successfully fetched document.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	// StatusCode is the HTTP status code (always 2xx).
	StatusCode int

	// Header holds the response headers.
	Header http.Header

	// Body is the response body decoded to UTF-8.
	Body string

	// Truncated is true when the body was longer than the client's
	// maximum body size. Body then holds one byte more than the maximum.
	Truncated bool
}

// Client performs GET requests on behalf of feed discovery.
// It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
	proxyAddr   string
	cookie      string
	headers     map[string]string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProxy routes all requests through the SOCKS5 proxy at addr
// ("host:port").
func WithProxy(addr string) Option {
	return func(c *Client) {
		c.proxyAddr = addr
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(size int64) Option {
	return func(c *Client) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// WithCookie sets a raw cookie string (e.g. "session=abc") that is sent
// with every request.
func WithCookie(cookie string) Option {
	return func(c *Client) {
		c.cookie = cookie
	}
}

// WithHeaders sets headers that are sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		c.headers = headers
	}
}

// WithHTTPClient uses hc instead of building a client. Proxy settings are
// ignored in that case; cookie and header injection still apply.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger for per-request debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client. It fails only when the proxy address is
// malformed; it never contacts the proxy.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		hc, err := c.newHTTPClient()
		if err != nil {
			return nil, err
		}
		c.httpClient = hc
	} else {
		copied := *c.httpClient
		c.httpClient = &copied
	}

	if c.cookie != "" || len(c.headers) > 0 {
		base := c.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c.httpClient.Transport = &headerInjectingTransport{
			base:    base,
			cookie:  c.cookie,
			headers: c.headers,
		}
	}

	return c, nil
}

// newHTTPClient builds the default client, dialing through the SOCKS5
// proxy when one is configured.
func (c *Client) newHTTPClient() (*http.Client, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		transport = &http.Transport{}
	}
	transport = transport.Clone()
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 30 * time.Second

	if c.proxyAddr != "" {
		if !isValidProxyAddress(c.proxyAddr) {
			return nil, ErrInvalidProxyAddress
		}

		dialer, err := proxy.SOCKS5("tcp", c.proxyAddr, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}

		transport.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = cd.DialContext
		} else {
			transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		// Compressed response sizes leak content over anonymizing proxies.
		transport.DisableCompression = true
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: transport,
		Jar:       jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}, nil
}

// Fetch GETs rawURL. A positive timeout bounds the whole request including
// reading the body. headers override the default browser headers.
//
// Network failures are returned wrapped; non-2xx responses are returned as
// *StatusError. The body is read up to the maximum body size plus one byte.
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration, headers map[string]string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range defaultHeaders {
		req.Header.Set(key, value)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit)) //nolint:errcheck // best effort drain
		c.logger.Debug("fetch rejected", "url", rawURL, "status", resp.StatusCode)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	c.logger.Debug("fetched", "url", rawURL, "status", resp.StatusCode, "bytes", len(raw))

	return &Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       decodeBody(raw, resp.Header.Get("Content-Type")),
		Truncated:  int64(len(raw)) > c.maxBodySize,
	}, nil
}

// ProxyAddress returns the configured SOCKS5 proxy address, if any.
func (c *Client) ProxyAddress() string {
	return c.proxyAddr
}

// CloseIdleConnections closes idle keep-alive connections.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// decodeBody converts raw to UTF-8. A charset named in contentType wins.
// Without one, bodies that are valid UTF-8 or declare UTF-8 in their XML
// prolog are kept; anything else goes through the <meta charset> prescan.
// Undecodable bodies are returned as-is.
func decodeBody(raw []byte, contentType string) string {
	if !hasCharsetParam(contentType) {
		if validUTF8(raw) || declaresUTF8(raw) {
			return string(bytes.TrimPrefix(raw, utf8BOM))
		}
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

var (
	utf8BOM     = []byte("\xef\xbb\xbf")
	xmlEncoding = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']\s*(?i:utf-?8)\s*["']`)
)

func hasCharsetParam(contentType string) bool {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.TrimSpace(params["charset"]) != ""
}

// validUTF8 reports whether raw is valid UTF-8, ignoring a rune cut off
// at the end of a truncated body.
func validUTF8(raw []byte) bool {
	if utf8.Valid(raw) {
		return true
	}
	for cut := 1; cut < utf8.UTFMax && cut < len(raw); cut++ {
		tail := raw[len(raw)-cut:]
		if utf8.RuneStart(tail[0]) && !utf8.FullRune(tail) {
			return utf8.Valid(raw[:len(raw)-cut])
		}
	}
	return false
}

func declaresUTF8(raw []byte) bool {
	head := bytes.TrimPrefix(raw, utf8BOM)
	if len(head) > 256 {
		head = head[:256]
	}
	return xmlEncoding.Match(head)
}

// isValidProxyAddress reports whether address is "host:port" with a
// non-empty host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n >= 1 && n <= 65535
}
