package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/search"
)

// JSONWriter writes results as JSON for scripts and other tools.
type JSONWriter struct {
	baseWriter

	indent       bool
	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output with the given prefix and indent.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter. Output is compact unless an indent
// option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteFeeds writes feeds as a JSON array. No feeds is written as [].
func (w *JSONWriter) WriteFeeds(_ string, feeds []feed.Feed) (int, error) {
	return w.writeJSON(nonNil(feeds))
}

// WriteBatch writes an object mapping each site to its feed array.
func (w *JSONWriter) WriteBatch(results []search.SiteResult) (int, error) {
	out := make(map[string][]feed.Feed, len(results))
	for _, r := range results {
		out[r.Site] = nonNil(r.Feeds)
	}
	return w.writeJSON(out)
}

// WriteHistory writes the run summaries as an array.
func (w *JSONWriter) WriteHistory(_ string, runs []database.RunSummary) (int, error) {
	if runs == nil {
		runs = []database.RunSummary{}
	}
	return w.writeJSON(runs)
}

// WriteDiff writes d as an object.
func (w *JSONWriter) WriteDiff(d *database.Diff) (int, error) {
	return w.writeJSON(d)
}

// WriteSites writes the sites as an array of strings.
func (w *JSONWriter) WriteSites(sites []string) (int, error) {
	if sites == nil {
		sites = []string{}
	}
	return w.writeJSON(sites)
}

func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}

func nonNil(feeds []feed.Feed) []feed.Feed {
	if feeds == nil {
		return []feed.Feed{}
	}
	return feeds
}
