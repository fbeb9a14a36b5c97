package config

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
)

const (
	// AppName is used for XDG directory paths.
	AppName = "feedscan"

	// DefaultTorStartupTimeout bounds embedded Tor bootstrapping.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Strategies selects which discovery strategies run. The zero value runs
// the default set: meta tags, anchors and blind search.
type Strategies struct {
	// MetaOnly runs only the <link rel="alternate"> scan.
	MetaOnly bool

	// BlindOnly runs only the endpoint prober.
	BlindOnly bool

	// AnchorsOnly runs only the anchor scan.
	AnchorsOnly bool

	// Deep adds the crawler after the default strategies.
	Deep bool

	// DeepOnly runs only the crawler.
	DeepOnly bool
}

// exclusive counts the "only" selections.
func (s Strategies) exclusive() int {
	n := 0
	for _, b := range []bool{s.MetaOnly, s.BlindOnly, s.AnchorsOnly, s.DeepOnly} {
		if b {
			n++
		}
	}
	return n
}

// Config holds the settings of one feedscan invocation. It is populated
// from CLI flags and the configuration file, then passed down explicitly.
type Config struct {
	// Targets are the site URLs to search.
	Targets []string

	// Search tunes every discovery run.
	Search SearchOptions

	// Strategies selects the strategies to run.
	Strategies Strategies

	// BatchSize is the number of sites searched concurrently.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is an explicit path to the configuration file.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, if any.
	SiteConfigs *File

	// JSONReport, MarkdownReport and TextReport select the output format.
	// JSON is used when none is set. At most one may be set.
	JSONReport     bool
	MarkdownReport bool
	TextReport     bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// ProxyAddress routes requests through a SOCKS5 proxy ("host:port").
	ProxyAddress string

	// UseTor starts an embedded Tor daemon and routes requests through it.
	UseTor bool

	// TorStartupTimeout bounds embedded Tor bootstrapping.
	TorStartupTimeout time.Duration

	// UserAgent overrides the default browser User-Agent.
	UserAgent string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB stores every run in the history database.
	SaveToDB bool
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Search:            NewSearchOptions(),
		BatchSize:         DefaultSiteConcurrency,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the data directory, which holds the history database.
// On Linux: ~/.local/share/feedscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the configuration directory.
// On Linux: ~/.config/feedscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the invocation-level settings and returns the first
// problem found. Search options are not validated here; they are clamped
// by SearchOptions.Normalize.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}

	formats := 0
	for _, b := range []bool{c.JSONReport, c.MarkdownReport, c.TextReport} {
		if b {
			formats++
		}
	}
	if formats > 1 {
		return ErrConflictingReportFormats
	}

	if c.Strategies.exclusive() > 1 {
		return ErrConflictingStrategies
	}

	if c.Search.SearchMode != "" && !c.Search.SearchMode.Valid() {
		return ErrInvalidSearchMode
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.UseTor && c.ProxyAddress != "" {
		return ErrConflictingProxy
	}

	if c.ProxyAddress != "" && !validHostPort(c.ProxyAddress) {
		return ErrInvalidProxyAddress
	}

	return nil
}

func validHostPort(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
