// Package probe implements blind search: it guesses feed locations by
// appending well-known endpoint names to every level of a site URL's path
// and classifies the candidates in small sequential batches.
//
// Three endpoint tiers are available. SearchModeFast tries the most common
// names only, SearchModeStandard adds CMS and framework specific names and
// SearchModeExhaustive adds rare and legacy locations. The tiers are built
// once at package initialisation and never change.
//
// A run stops early once it has found both an RSS and an Atom feed (unless
// SearchOptions.All is set), once it reaches SearchOptions.MaxFeeds, or once
// SearchOptions.MaxErrors transport failures have accumulated. A stop never
// interrupts the batch in flight; it only prevents the next one.
package probe
