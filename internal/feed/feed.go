package feed

import "strings"

// Type is the syndication format of a feed.
type Type string

const (
	// TypeRSS is an RSS 0.9x/2.0 feed.
	TypeRSS Type = "rss"

	// TypeAtom is an Atom 1.0 feed.
	TypeAtom Type = "atom"

	// TypeJSON is a JSON Feed.
	TypeJSON Type = "json"
)

// String returns the type name.
func (t Type) String() string {
	return string(t)
}

// Result is the outcome of a positive classification.
type Result struct {
	// Type is the detected format.
	Type Type

	// Title is the feed's own title, or nil when it has none.
	Title *string
}

// Feed is a discovered feed. The URL is its identity within one run.
type Feed struct {
	// URL is the absolute feed URL.
	URL string `json:"url"`

	// Title is the label of the link that referenced the feed, falling back
	// to the feed's own title.
	Title *string `json:"title"`

	// Type is the feed format.
	Type Type `json:"type"`

	// FeedTitle is the title found inside the feed document.
	FeedTitle *string `json:"feedTitle"`
}

// New creates a Feed for url from a classification result. label is the
// human text of the referencing link (title attribute or anchor text) and
// may be empty.
func New(url string, res *Result, label string) Feed {
	f := Feed{
		URL:       url,
		Type:      res.Type,
		FeedTitle: res.Title,
		Title:     res.Title,
	}
	if label = collapseSpace(label); label != "" {
		f.Title = &label
	}
	return f
}

// DisplayTitle returns the best available title, or "" if there is none.
func (f Feed) DisplayTitle() string {
	if f.Title != nil {
		return *f.Title
	}
	if f.FeedTitle != nil {
		return *f.FeedTitle
	}
	return ""
}

// collapseSpace trims s and collapses internal whitespace runs to a single
// space.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
