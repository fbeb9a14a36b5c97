package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig holds per-site overrides from the configuration file.
type SiteConfig struct {
	// Cookie is sent with every request to the site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are sent with every request to the site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides SearchOptions.MaxDepth when non-zero.
	Depth int `yaml:"depth,omitempty"`

	// MaxLinks overrides SearchOptions.MaxLinks when non-zero.
	MaxLinks int `yaml:"maxLinks,omitempty"`

	// SearchMode overrides SearchOptions.SearchMode when set.
	SearchMode SearchMode `yaml:"searchMode,omitempty"`

	// IgnorePatterns are URL path globs the crawler never expands.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns, when set, are the only URL path globs the crawler
	// expands.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File is the structure of the .feedscan configuration file.
type File struct {
	// Sites maps host names (e.g. "blog.example.com") to overrides.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the merged configuration for siteURL. The site
// entry is looked up by host name, then by host name without "www.".
// A nil File yields the zero SiteConfig.
func (cf *File) GetSiteConfig(siteURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}

	result := cf.Defaults
	result.Headers = maps.Clone(cf.Defaults.Headers)

	site, ok := cf.lookup(siteURL)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Depth != 0 {
		result.Depth = site.Depth
	}
	if site.MaxLinks != 0 {
		result.MaxLinks = site.MaxLinks
	}
	if site.SearchMode != "" {
		result.SearchMode = site.SearchMode
	}
	if len(site.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string, len(site.Headers))
		}
		maps.Copy(result.Headers, site.Headers)
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}

	return result
}

func (cf *File) lookup(siteURL string) (SiteConfig, bool) {
	host := siteURL
	if u, err := url.Parse(siteURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	host = strings.ToLower(host)

	if site, ok := cf.Sites[host]; ok {
		return site, true
	}
	if bare, ok := strings.CutPrefix(host, "www."); ok {
		site, found := cf.Sites[bare]
		return site, found
	}
	return SiteConfig{}, false
}

// Apply returns opts with the site's search overrides applied.
func (sc SiteConfig) Apply(opts SearchOptions) SearchOptions {
	if sc.Depth != 0 {
		opts.MaxDepth = sc.Depth
	}
	if sc.MaxLinks != 0 {
		opts.MaxLinks = sc.MaxLinks
	}
	if sc.SearchMode != "" {
		opts.SearchMode = sc.SearchMode
	}
	return opts
}
