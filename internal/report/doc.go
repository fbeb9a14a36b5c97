// Package report renders discovery results.
//
// Three writers implement Writer:
//   - JSONWriter: the default, a JSON array of feeds for one site or an
//     object keyed by site for a batch
//   - MarkdownWriter: tables built with nao1215/markdown, for sharing
//   - TextWriter: aligned plain text for the terminal
//
// The same writers render the stored history of the history command.
package report
