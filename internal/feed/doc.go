// Package feed defines the Feed model and the content classifier that
// decides whether a document is an RSS, Atom or JSON Feed.
//
// # Detection
//
// Detection is a tolerant, pattern based check rather than strict XML or
// schema validation, so that malformed real-world feeds are still found:
//
//   - RSS: a root <rss> tag with a version attribute, a <channel> tag, a
//     <description> tag, and either an <item> tag or a closing </channel>
//     tag (empty feeds are valid).
//   - Atom: a root <feed> tag, an Atom namespace marker, at least one
//     <entry> and at least one <title>.
//   - JSON Feed: a JSON object with a "jsonfeed" version string, an items
//     array, or a feed_url field, that does not look like an oEmbed
//     response.
//
// The checks run in that order and the first match wins.
//
// # Classifier
//
// Classifier wraps Detect with URL validation, fetching through a Fetcher
// when no content is supplied, oEmbed endpoint skipping, a size limit, and
// a per-URL result cache shared by all strategies of a run.
package feed
