package probe

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/feedscan/internal/config"
)

// ErrInvalidSiteURL is returned when the site URL is not an absolute
// http or https URL.
var ErrInvalidSiteURL = errors.New("invalid site URL")

// Candidates returns the URLs blind search classifies for siteURL. Every
// level of the path, from the deepest directory up to the origin, is
// combined with every endpoint name of the mode's tier. A trailing path
// segment that looks like a file ("index.html") is not treated as a
// directory. When keepQuery is set the site URL's query string is appended
// to each candidate.
func Candidates(siteURL string, mode config.SearchMode, keepQuery bool) ([]string, error) {
	u, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSiteURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSiteURL, siteURL)
	}

	origin := u.Scheme + "://" + u.Host
	names := Endpoints(mode)

	seen := make(map[string]struct{})
	var out []string
	for _, base := range pathLevels(origin, u.Path) {
		for _, name := range names {
			candidate := base + "/" + name
			if keepQuery && u.RawQuery != "" {
				candidate = appendQuery(candidate, u.RawQuery)
			}
			if _, ok := seen[candidate]; ok {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
		}
	}
	return out, nil
}

// pathLevels returns the directory prefixes of path from the deepest one
// up to the origin itself, each without a trailing slash.
func pathLevels(origin, path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if n := len(segments); n > 0 && strings.Contains(segments[n-1], ".") {
		segments = segments[:n-1]
	}

	levels := make([]string, 0, len(segments)+1)
	for i := len(segments); i >= 0; i-- {
		if i == 0 {
			levels = append(levels, origin)
			continue
		}
		levels = append(levels, origin+"/"+strings.Join(segments[:i], "/"))
	}
	return levels
}

func appendQuery(candidate, rawQuery string) string {
	if strings.Contains(candidate, "?") {
		return candidate + "&" + rawQuery
	}
	return candidate + "?" + rawQuery
}
