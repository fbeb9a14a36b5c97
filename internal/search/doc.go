// Package search runs feed discovery for a site by combining strategies.
//
// Strategies run in a fixed priority order: the <link rel="alternate">
// scan of the site page, the anchor scan of the same page, blind search
// (package probe) and, when enabled, deep search (package crawler). Results
// are merged by URL and the first strategy to report a URL wins.
//
// After every strategy the orchestrator checks the result cap. With
// SearchOptions.MaxFeeds set, discovery stops once that many unique feeds
// are known and the output is truncated to MaxFeeds. Without it, discovery
// stops after the first strategy that finds anything. SearchOptions.All
// disables both.
//
// BatchProcessor runs an Orchestrator per site for many sites concurrently.
package search
