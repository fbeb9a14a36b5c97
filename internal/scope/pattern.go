package scope

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Filter restricts crawling by URL path using glob patterns.
// The zero value allows everything.
type Filter struct {
	// Ignore lists patterns whose matches are never crawled.
	Ignore []string

	// Follow, when non-empty, lists the only patterns that are crawled.
	Follow []string
}

// Allow reports whether rawURL passes the filter. Ignore patterns are
// checked first; then, if Follow is set, the path must match one of them.
func (f Filter) Allow(rawURL string) bool {
	if len(f.Ignore) == 0 && len(f.Follow) == 0 {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	for _, pattern := range f.Ignore {
		if MatchPattern(pattern, p) {
			return false
		}
	}

	if len(f.Follow) == 0 {
		return true
	}
	for _, pattern := range f.Follow {
		if MatchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// MatchPattern reports whether urlPath matches the glob pattern.
//
//   - "/admin/*" matches "/admin" and everything below it
//   - "*.pdf" matches any path ending in .pdf
//   - other patterns use filepath.Match semantics; patterns without a
//     slash are also tried against the last path segment
func MatchPattern(pattern, urlPath string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, "*?[") {
		if strings.HasSuffix(urlPath, ext) {
			return true
		}
	}

	if matched, err := filepath.Match(pattern, urlPath); err == nil && matched {
		return true
	}

	if strings.ContainsAny(pattern, "*?") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, filepath.Base(urlPath))
		return err == nil && matched
	}

	return false
}
