package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/search"
)

// ErrUnknownFormat is returned by New for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// Format names an output format.
type Format string

// Output formats.
const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// Writer renders discovery results and history. Every method returns the
// number of bytes written.
type Writer interface {
	// WriteFeeds writes the feeds found for a single site.
	WriteFeeds(site string, feeds []feed.Feed) (int, error)

	// WriteBatch writes the results of a multi-site run.
	WriteBatch(results []search.SiteResult) (int, error)

	// WriteHistory writes the stored runs of site, newest first.
	WriteHistory(site string, runs []database.RunSummary) (int, error)

	// WriteDiff writes the change between two runs.
	WriteDiff(d *database.Diff) (int, error)

	// WriteSites writes the sites that have stored runs.
	WriteSites(sites []string) (int, error)
}

// New returns the Writer for format writing to output.
func New(format Format, output io.Writer) (Writer, error) {
	switch Format(strings.ToLower(string(format))) {
	case FormatJSON, "":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(output), nil
	case FormatText, "txt":
		return NewTextWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// baseWriter holds the output destination shared by the writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// orDash returns "-" for an empty string.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// deref returns *s, or "" for nil.
func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

const timeLayout = "2006-01-02 15:04:05 MST"
