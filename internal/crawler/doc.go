// Package crawler implements deep search: a domain-scoped crawl that
// classifies every link it meets and follows the in-scope ones.
//
// # Architecture
//
// A Crawl seeds a FIFO queue with the start page at depth 0. A fixed pool
// of workers (SearchOptions.Concurrency, default 5) dequeues tasks, fetches
// the page, and walks its anchors in document order. Each anchor is
// resolved against the page it appears on, classified, and, when it shares
// the start page's registrable domain, queued at depth+1. Links are
// expanded whether or not they are feeds.
//
// # Limits
//
//   - MaxDepth bounds the depth of queued tasks.
//   - MaxLinks bounds the visited set. Reaching it stops expansion and
//     emits a single "limit" event; queued tasks still drain.
//   - MaxErrors is a breaker shared by page fetches and classifications.
//     When it trips the queue is killed.
//   - MaxFeeds kills the queue once enough feeds are found.
//
// A killed queue only stops future dequeues. Requests already in flight
// complete and their results are kept.
//
// # Usage
//
//	c := crawler.New(client, classifier, opts, crawler.WithBus(bus))
//	feeds, err := c.Crawl(ctx, "https://example.com/")
package crawler
