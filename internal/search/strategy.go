package search

import (
	"context"

	"github.com/nao1215/feedscan/internal/config"
	"github.com/nao1215/feedscan/internal/feed"
)

// Strategy is one way of discovering feeds for a site.
type Strategy interface {
	// Name identifies the strategy in events and logs.
	Name() string

	// Search returns the feeds found for siteURL. Per-URL failures are
	// handled inside the strategy; a returned error aborts the whole
	// discovery run.
	Search(ctx context.Context, siteURL string) ([]feed.Feed, error)
}

// StrategySet selects the strategies an Orchestrator runs.
type StrategySet struct {
	Meta    bool
	Anchors bool
	Blind   bool
	Deep    bool
}

// DefaultStrategySet runs the page scans and blind search.
func DefaultStrategySet() StrategySet {
	return StrategySet{Meta: true, Anchors: true, Blind: true}
}

// NewStrategySet translates the CLI strategy selection. An "only" flag
// selects that strategy alone; otherwise the default set runs, plus deep
// search when requested.
func NewStrategySet(s config.Strategies) StrategySet {
	switch {
	case s.MetaOnly:
		return StrategySet{Meta: true}
	case s.AnchorsOnly:
		return StrategySet{Anchors: true}
	case s.BlindOnly:
		return StrategySet{Blind: true}
	case s.DeepOnly:
		return StrategySet{Deep: true}
	}

	set := DefaultStrategySet()
	set.Deep = s.Deep
	return set
}

// Empty reports whether no strategy is selected.
func (s StrategySet) Empty() bool {
	return !s.Meta && !s.Anchors && !s.Blind && !s.Deep
}
