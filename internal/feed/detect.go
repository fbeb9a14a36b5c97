package feed

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	rssRootPattern      = regexp.MustCompile(`(?i)<rss\b[^>]*\bversion\s*=\s*["'][^"']*["'][^>]*>`)
	channelPattern      = regexp.MustCompile(`(?i)<channel\b[^>]*>`)
	channelClosePattern = regexp.MustCompile(`(?i)</channel\s*>`)
	channelSpanPattern  = regexp.MustCompile(`(?is)<channel\b[^>]*>(.*?)</channel\s*>`)
	descriptionPattern  = regexp.MustCompile(`(?i)<description\b[^>]*>`)
	itemPattern         = regexp.MustCompile(`(?i)<item\b[^>]*>`)

	feedRootPattern    = regexp.MustCompile(`(?i)<feed\b[^>]*>`)
	atomXMLNSPattern   = regexp.MustCompile(`(?i)\bxmlns\s*=\s*["'][^"']*atom[^"']*["']`)
	atomPrefixPattern  = regexp.MustCompile(`(?i)\bxmlns:atom\s*=`)
	atomAttrPattern    = regexp.MustCompile(`(?i)\satom:[\w-]+\s*=`)
	entryPattern       = regexp.MustCompile(`(?i)<entry\b[^>]*>`)
	titlePattern       = regexp.MustCompile(`(?is)<title\b[^>]*>(.*?)</title\s*>`)
	titleOpenPattern   = regexp.MustCompile(`(?i)<title\b[^>]*>`)
	cdataPattern       = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	jsonFeedVersionKey = "jsonfeed"
)

// oEmbedTypes are oEmbed response types whose payloads can resemble a
// JSON Feed.
var oEmbedTypes = map[string]struct{}{
	"rich":  {},
	"video": {},
	"photo": {},
	"link":  {},
}

// Detect classifies content. It returns nil when content is not a feed.
// Detect never fetches and never fails; malformed input is "not a feed".
func Detect(content string) *Result {
	if res := detectRSS(content); res != nil {
		return res
	}
	if res := detectAtom(content); res != nil {
		return res
	}
	return detectJSON(content)
}

func detectRSS(content string) *Result {
	if !rssRootPattern.MatchString(content) ||
		!channelPattern.MatchString(content) ||
		!descriptionPattern.MatchString(content) {
		return nil
	}
	if !itemPattern.MatchString(content) && !channelClosePattern.MatchString(content) {
		return nil
	}

	res := &Result{Type: TypeRSS}
	if m := channelSpanPattern.FindStringSubmatch(content); m != nil {
		if t := titlePattern.FindStringSubmatch(m[1]); t != nil {
			res.Title = cleanTitle(t[1])
			return res
		}
	}
	if t := titlePattern.FindStringSubmatch(content); t != nil {
		res.Title = cleanTitle(t[1])
	}
	return res
}

func detectAtom(content string) *Result {
	if !feedRootPattern.MatchString(content) {
		return nil
	}
	if !atomXMLNSPattern.MatchString(content) &&
		!atomPrefixPattern.MatchString(content) &&
		!atomAttrPattern.MatchString(content) {
		return nil
	}
	if !entryPattern.MatchString(content) || !titleOpenPattern.MatchString(content) {
		return nil
	}

	res := &Result{Type: TypeAtom}
	if t := titlePattern.FindStringSubmatch(content); t != nil {
		res.Title = cleanTitle(t[1])
	}
	return res
}

func detectJSON(content string) *Result {
	trimmed := strings.TrimSpace(strings.TrimPrefix(content, "\uFEFF"))
	if !strings.HasPrefix(trimmed, "{") {
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return nil
	}

	if isOEmbedDocument(doc) {
		return nil
	}

	version, _ := doc["version"].(string)
	_, hasItems := doc["items"].([]any)
	_, hasFeedURL := doc["feed_url"]
	if !strings.Contains(version, jsonFeedVersionKey) && !hasItems && !hasFeedURL {
		return nil
	}

	res := &Result{Type: TypeJSON}
	if title, ok := doc["title"].(string); ok {
		res.Title = cleanTitle(title)
	} else if name, ok := doc["name"].(string); ok {
		res.Title = cleanTitle(name)
	}
	return res
}

// isOEmbedDocument reports whether doc looks like an oEmbed response.
func isOEmbedDocument(doc map[string]any) bool {
	typ, _ := doc["type"].(string)
	version, _ := doc["version"].(string)
	if _, ok := oEmbedTypes[typ]; ok && (version == "1.0" || version == "2.0") {
		return true
	}

	_, hasType := doc["type"]
	_, hasVersion := doc["version"]
	_, hasHTML := doc["html"]
	return hasType && hasVersion && hasHTML
}

// cleanTitle strips CDATA markers and collapses whitespace. It returns nil
// for titles that are empty after cleaning.
func cleanTitle(raw string) *string {
	s := collapseSpace(cdataPattern.ReplaceAllString(raw, "$1"))
	if s == "" {
		return nil
	}
	return &s
}
