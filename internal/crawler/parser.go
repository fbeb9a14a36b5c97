package crawler

import (
	"fmt"
	"io"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link is a hyperlink found in a document.
type Link struct {
	// URL is the absolute, resolved target.
	URL string

	// Text is the collapsed text content of an <a> element.
	Text string

	// Title is the title attribute.
	Title string

	// Rel is the lowercased rel attribute of a <link> element.
	Rel string

	// Type is the lowercased type attribute of a <link> element.
	Type string
}

// ParseResult contains the parts of an HTML page used for feed discovery.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Anchors are the <a href> links in document order.
	Anchors []Link

	// Links are the <link href> elements in document order.
	Links []Link
}

// Parser extracts links from HTML documents. Relative references are
// resolved against the URL of the page being parsed.
type Parser struct {
	baseURL *url.URL
}

// NewParser creates a Parser for the page at baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses an HTML document. Hrefs that cannot be resolved to an http
// or https URL are dropped.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := goquery.NewDocumentFromReader(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	result := &ParseResult{
		Title: collapse(doc.Find("title").First().Text()),
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.resolveURL(href)
		if resolved == "" {
			return
		}
		title, _ := s.Attr("title")
		result.Anchors = append(result.Anchors, Link{
			URL:   resolved,
			Text:  collapse(s.Text()),
			Title: collapse(title),
		})
	})

	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved := p.resolveURL(href)
		if resolved == "" {
			return
		}
		title, _ := s.Attr("title")
		rel, _ := s.Attr("rel")
		typ, _ := s.Attr("type")
		result.Links = append(result.Links, Link{
			URL:   resolved,
			Title: collapse(title),
			Rel:   strings.ToLower(strings.TrimSpace(rel)),
			Type:  strings.ToLower(strings.TrimSpace(typ)),
		})
	})

	return result, nil
}

// resolveURL resolves href against the base URL. It returns "" for
// script, mail, phone and data links, bare fragments, unparsable hrefs and
// non-http(s) results.
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// HasRel reports whether the space separated rel attribute of l contains
// token.
func (l Link) HasRel(token string) bool {
	return slices.Contains(strings.Fields(l.Rel), token)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
