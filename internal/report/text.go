package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/search"
)

// TextWriter writes aligned plain text for terminal display.
type TextWriter struct {
	baseWriter

	title cases.Caser
	upper cases.Caser
}

// NewTextWriter creates a TextWriter.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{
		baseWriter: newBaseWriter(output),
		title:      cases.Title(language.English),
		upper:      cases.Upper(language.English),
	}
}

// WriteFeeds writes one line per feed under a heading for site.
func (w *TextWriter) WriteFeeds(site string, feeds []feed.Feed) (int, error) {
	var sb strings.Builder
	w.writeSite(&sb, site, feeds, nil)
	return w.output.Write([]byte(sb.String()))
}

// WriteBatch writes one block per site.
func (w *TextWriter) WriteBatch(results []search.SiteResult) (int, error) {
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n")
		}
		w.writeSite(&sb, r.Site, r.Feeds, r.Err)
	}
	return w.output.Write([]byte(sb.String()))
}

// WriteHistory writes a table of the stored runs of site.
func (w *TextWriter) WriteHistory(site string, runs []database.RunSummary) (int, error) {
	var sb strings.Builder
	w.writeHeading(&sb, "history of "+site)
	if len(runs) == 0 {
		sb.WriteString("  no runs stored\n")
		return w.output.Write([]byte(sb.String()))
	}

	tw := tabwriter.NewWriter(&sb, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  RUN\tSTARTED\tDURATION\tFEEDS\tSTRATEGIES\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			r.Duration,
			r.FeedCount,
			orDash(w.strategyNames(r.Strategies)),
			orDash(truncateString(r.Err, 40)),
		)
	}
	if err := tw.Flush(); err != nil {
		return 0, err
	}
	return w.output.Write([]byte(sb.String()))
}

// WriteDiff writes added feeds prefixed with "+" and removed feeds with
// "-".
func (w *TextWriter) WriteDiff(d *database.Diff) (int, error) {
	var sb strings.Builder
	w.writeHeading(&sb, "changes for "+d.Site)
	fmt.Fprintf(&sb, "  run %d (%s) -> run %d (%s)\n\n",
		d.From.ID, d.From.StartedAt.Local().Format(timeLayout),
		d.To.ID, d.To.StartedAt.Local().Format(timeLayout))

	if !d.HasChanges() {
		sb.WriteString("  no feeds added or removed\n")
		return w.output.Write([]byte(sb.String()))
	}
	for _, f := range d.Added {
		fmt.Fprintf(&sb, "  + [%s] %s\n", w.upper.String(string(f.Type)), f.URL)
	}
	for _, f := range d.Removed {
		fmt.Fprintf(&sb, "  - [%s] %s\n", w.upper.String(string(f.Type)), f.URL)
	}
	return w.output.Write([]byte(sb.String()))
}

// WriteSites writes one site per line.
func (w *TextWriter) WriteSites(sites []string) (int, error) {
	var sb strings.Builder
	for _, s := range sites {
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return w.output.Write([]byte(sb.String()))
}

func (w *TextWriter) writeSite(sb *strings.Builder, site string, feeds []feed.Feed, err error) {
	w.writeHeading(sb, fmt.Sprintf("%s (%d feeds)", site, len(feeds)))
	if err != nil {
		fmt.Fprintf(sb, "  ! stopped early: %v\n", err)
	}
	if len(feeds) == 0 {
		sb.WriteString("  no feeds found\n")
		return
	}

	tw := tabwriter.NewWriter(sb, 0, 4, 2, ' ', 0)
	for _, f := range feeds {
		fmt.Fprintf(tw, "  [%s]\t%s\t%s\n", w.upper.String(string(f.Type)), f.URL, f.DisplayTitle())
	}
	_ = tw.Flush() //nolint:errcheck // strings.Builder never fails
}

func (w *TextWriter) writeHeading(sb *strings.Builder, text string) {
	sb.WriteString(text)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", min(len(text), 70)))
	sb.WriteString("\n")
}

// strategyNames renders module names such as "blindsearch" as
// "Blindsearch".
func (w *TextWriter) strategyNames(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = w.title.String(n)
	}
	return strings.Join(out, ", ")
}
