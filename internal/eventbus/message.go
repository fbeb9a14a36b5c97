package eventbus

import "fmt"

// Event names emitted by the discovery engine.
const (
	// EventStart is emitted when a search strategy begins.
	EventStart = "start"

	// EventEnd is emitted when a search strategy finishes. The payload's
	// Done field holds the number of feeds the strategy reported.
	EventEnd = "end"

	// EventLog carries informational progress messages.
	EventLog = "log"

	// EventError carries failures. See Bus.Emit for the no-listener rule.
	EventError = "error"

	// EventFeed is emitted with a feed.Feed payload whenever a strategy
	// records a new feed.
	EventFeed = "feed"

	// EventProgress reports Done/Total counters for batch oriented work.
	EventProgress = "progress"

	// EventLimit is emitted at most once per run when a crawl stops
	// expanding because its link budget is exhausted.
	EventLimit = "limit"
)

// Message is the payload of every discovery event except EventFeed.
type Message struct {
	// Module names the emitting strategy, e.g. "blindsearch".
	Module string

	// Text is a short human readable description.
	Text string

	// URL is the URL being processed, if any.
	URL string

	// Depth is the crawl depth of URL for crawler events.
	Depth int

	// Done and Total are progress counters.
	Done  int
	Total int

	// Err is set on EventError payloads.
	Err error
}

// String renders the message for terminal output.
func (m Message) String() string {
	s := m.Text
	if m.URL != "" {
		s = fmt.Sprintf("%s %s", s, m.URL)
	}
	if m.Err != nil {
		s = fmt.Sprintf("%s: %v", s, m.Err)
	}
	if m.Module != "" {
		s = fmt.Sprintf("[%s] %s", m.Module, s)
	}
	return s
}
