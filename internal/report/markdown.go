package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"

	"github.com/nao1215/feedscan/internal/database"
	"github.com/nao1215/feedscan/internal/feed"
	"github.com/nao1215/feedscan/internal/search"
)

// MarkdownWriter writes results as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteFeeds writes a feed table for site.
func (w *MarkdownWriter) WriteFeeds(site string, feeds []feed.Feed) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Feeds for " + site)
	md.PlainText("")
	w.writeFeedTable(md, feeds)
	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteBatch writes one section per site.
func (w *MarkdownWriter) WriteBatch(results []search.SiteResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Feed Discovery")
	md.PlainText("")

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "✅ Complete"
		if r.Err != nil {
			status = "❌ " + r.Err.Error()
		}
		rows = append(rows, []string{"`" + r.Site + "`", strconv.Itoa(len(r.Feeds)), status})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Site", "Feeds", "Status"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, r := range results {
		md.H2(r.Site)
		md.PlainText("")
		if r.Err != nil {
			md.Warningf("Discovery stopped early: %s", r.Err.Error())
			md.PlainText("")
		}
		w.writeFeedTable(md, r.Feeds)
	}

	w.writeFooter(md)
	return len(md.String()), md.Build()
}

// WriteHistory writes a table of the stored runs of site.
func (w *MarkdownWriter) WriteHistory(site string, runs []database.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Discovery History for " + site)
	md.PlainText("")

	if len(runs) == 0 {
		md.Note("No runs stored for this site.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.StartedAt.Local().Format(timeLayout),
			r.Duration.String(),
			orDash(strings.Join(r.Strategies, ", ")),
			strconv.Itoa(r.FeedCount),
			orDash(truncateString(r.Err, 40)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Duration", "Strategies", "Feeds", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
	return len(md.String()), md.Build()
}

// WriteDiff writes the feeds added and removed between two runs.
func (w *MarkdownWriter) WriteDiff(d *database.Diff) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Feed Changes for " + d.Site)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Run", "Started", "Feeds"},
		Rows: [][]string{
			{"From", strconv.FormatInt(d.From.ID, 10), d.From.StartedAt.Local().Format(timeLayout), strconv.Itoa(d.From.FeedCount)},
			{"To", strconv.FormatInt(d.To.ID, 10), d.To.StartedAt.Local().Format(timeLayout), strconv.Itoa(d.To.FeedCount)},
		},
	})
	md.PlainText("")

	if !d.HasChanges() {
		md.Tip("No feeds were added or removed.")
		md.PlainText("")
		return len(md.String()), md.Build()
	}

	if len(d.Added) > 0 {
		md.H2(fmt.Sprintf("Added (%d)", len(d.Added)))
		md.PlainText("")
		md.BulletList(feedItems(d.Added)...)
		md.PlainText("")
	}
	if len(d.Removed) > 0 {
		md.H2(fmt.Sprintf("Removed (%d)", len(d.Removed)))
		md.PlainText("")
		md.BulletList(feedItems(d.Removed)...)
		md.PlainText("")
	}
	return len(md.String()), md.Build()
}

// WriteSites writes the sites as a bullet list.
func (w *MarkdownWriter) WriteSites(sites []string) (int, error) {
	md := markdown.NewMarkdown(w.output)
	md.H1("Sites")
	md.PlainText("")
	if len(sites) == 0 {
		md.Note("No runs stored yet.")
	} else {
		md.BulletList(sites...)
	}
	md.PlainText("")
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFeedTable(md *markdown.Markdown, feeds []feed.Feed) {
	if len(feeds) == 0 {
		md.PlainText("No feeds found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(feeds))
	for i, f := range feeds {
		rows[i] = []string{
			f.URL,
			strings.ToUpper(string(f.Type)),
			orDash(truncateString(deref(f.Title), 60)),
			orDash(truncateString(deref(f.FeedTitle), 60)),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Type", "Title", "Feed Title"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Generated by [feedscan](https://github.com/nao1215/feedscan)*")
}

func feedItems(feeds []feed.Feed) []string {
	items := make([]string, len(feeds))
	for i, f := range feeds {
		items[i] = fmt.Sprintf("`%s` (%s)", f.URL, f.Type)
		if t := f.DisplayTitle(); t != "" {
			items[i] += " " + t
		}
	}
	return items
}
