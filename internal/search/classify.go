package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/feedscan/internal/feed"
)

// Classifier decides whether a URL is a feed. *feed.Classifier
// implements it.
type Classifier interface {
	Classify(ctx context.Context, url, content string) (*feed.Result, error)
}

// candidate is a URL found on the site page together with the label the
// page gives it.
type candidate struct {
	url   string
	label string
}

// verdict is the classification outcome of one candidate.
type verdict struct {
	candidate
	res *feed.Result
	err error
}

// classifyAll classifies candidates with at most limit concurrent requests
// and returns the verdicts in candidate order.
func classifyAll(ctx context.Context, classifier Classifier, candidates []candidate, limit int) []verdict {
	verdicts := make([]verdict, len(candidates))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, c := range candidates {
		verdicts[i].candidate = c
		g.Go(func() error {
			if ctx.Err() != nil {
				verdicts[i].err = ctx.Err()
				return nil
			}
			verdicts[i].res, verdicts[i].err = classifier.Classify(ctx, c.url, "")
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors

	return verdicts
}
