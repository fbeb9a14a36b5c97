package scope

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// ErrNoDomain is returned by New when the start URL has no registrable
// domain.
var ErrNoDomain = errors.New("URL has no registrable domain")

// excludedExtensions are file extensions that never hold a feed or HTML.
var excludedExtensions = map[string]struct{}{
	// archives
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {},
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".odt": {}, ".ods": {}, ".epub": {},
	// images
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".webp": {},
	".ico": {}, ".tif": {}, ".tiff": {}, ".avif": {},
	// audio
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".m4a": {}, ".aac": {}, ".opus": {},
	// video
	".mp4": {}, ".m4v": {}, ".avi": {}, ".mov": {}, ".mkv": {}, ".webm": {}, ".wmv": {}, ".flv": {},
	// binaries and fonts
	".exe": {}, ".dmg": {}, ".iso": {}, ".apk": {}, ".bin": {}, ".msi": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
}

// RegistrableDomain returns the registrable domain of rawURL.
//
// IP addresses, single-label hosts such as localhost, and hosts that are
// themselves public suffixes are returned unchanged, so that a run against
// them still has a well-defined scope. The second result is false when
// rawURL has no host.
func RegistrableDomain(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}

	if net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host, true
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, true
	}
	return domain, true
}

// SameSite reports whether a and b share a registrable domain.
func SameSite(a, b string) bool {
	da, ok := RegistrableDomain(a)
	if !ok {
		return false
	}
	db, ok := RegistrableDomain(b)
	return ok && da == db
}

// IsExcluded reports whether rawURL points at a binary or media file.
func IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	_, excluded := excludedExtensions[ext]
	return excluded
}

// Scope is the domain boundary of one discovery run.
type Scope struct {
	domain string
}

// New creates the scope of a run starting at startURL.
func New(startURL string) (*Scope, error) {
	domain, ok := RegistrableDomain(startURL)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDomain, startURL)
	}
	return &Scope{domain: domain}, nil
}

// Domain returns the registrable domain of the run.
func (s *Scope) Domain() string {
	return s.domain
}

// Contains reports whether rawURL shares the run's registrable domain.
// Subdomains of the start domain are contained.
func (s *Scope) Contains(rawURL string) bool {
	domain, ok := RegistrableDomain(rawURL)
	return ok && domain == s.domain
}

// Normalize canonicalizes rawURL for visited-set and dedup lookups: the
// fragment is dropped, scheme and host are lowercased, and an empty path
// becomes "/".
func Normalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
