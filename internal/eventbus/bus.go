package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMaxListeners is the per-event listener count above which the bus
// logs a warning. Exceeding it is not an error.
const DefaultMaxListeners = 10

// ErrUnhandledError is returned by Emit when an "error" event is emitted
// and no listener is registered for it.
var ErrUnhandledError = errors.New("unhandled error event")

// Listener receives the payload passed to Emit. A non-nil return value is
// emitted as an "error" event.
type Listener func(payload any) error

// AsyncListener starts work and returns a channel that yields the eventual
// outcome. A nil channel means there is nothing to wait for.
type AsyncListener func(payload any) <-chan error

// Subscription identifies one registered listener. It is returned by every
// subscribe method and accepted by Off.
type Subscription struct {
	id    uint64
	event string
}

// Event returns the event name the subscription is registered for.
func (s Subscription) Event() string {
	return s.event
}

// entry is a registered listener. For once subscriptions, call is the
// fire-once wrapper while id still identifies the original registration.
type entry struct {
	id   uint64
	call Listener
	once bool
}

// Bus is a synchronous publish/subscribe hub. It is safe for concurrent use.
type Bus struct {
	mu           sync.Mutex
	listeners    map[string][]entry
	nextID       uint64
	maxListeners int
	warned       map[string]bool

	logger    *slog.Logger
	unhandled func(error)

	pending sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for listener-count warnings and for
// unhandled asynchronous failures.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMaxListeners sets the soft per-event listener limit.
// Zero disables the warning.
func WithMaxListeners(n int) Option {
	return func(b *Bus) {
		if n >= 0 {
			b.maxListeners = n
		}
	}
}

// WithUnhandledHandler sets the function that receives asynchronous listener
// failures which could not be delivered to any "error" listener.
func WithUnhandledHandler(fn func(error)) Option {
	return func(b *Bus) {
		if fn != nil {
			b.unhandled = fn
		}
	}
}

// New creates an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		listeners:    make(map[string][]entry),
		maxListeners: DefaultMaxListeners,
		warned:       make(map[string]bool),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.unhandled == nil {
		b.unhandled = func(err error) {
			b.logger.Error("unhandled asynchronous listener failure", "error", err)
		}
	}

	return b
}

// On appends listener to the event's listener list.
func (b *Bus) On(event string, listener Listener) Subscription {
	return b.add(event, listener, false, false)
}

// Prepend inserts listener before all existing listeners of the event.
func (b *Bus) Prepend(event string, listener Listener) Subscription {
	return b.add(event, listener, false, true)
}

// Once appends a listener that is removed before its first invocation.
func (b *Bus) Once(event string, listener Listener) Subscription {
	return b.add(event, listener, true, false)
}

// PrependOnce is Once with Prepend ordering.
func (b *Bus) PrependOnce(event string, listener Listener) Subscription {
	return b.add(event, listener, true, true)
}

// OnAsync appends a listener whose outcome resolves later. A failure
// received on the returned channel is emitted as an "error" event; if that
// emission is itself unhandled the bus' unhandled handler receives it.
func (b *Bus) OnAsync(event string, listener AsyncListener) Subscription {
	return b.On(event, func(payload any) error {
		ch := listener(payload)
		if ch == nil {
			return nil
		}

		b.pending.Add(1)
		go func() {
			defer b.pending.Done()
			if err := <-ch; err != nil {
				b.reportAsync(err)
			}
		}()
		return nil
	})
}

// Off removes the listener identified by sub. It reports whether a listener
// was removed. Once subscriptions can be removed before they fire.
func (b *Bus) Off(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[sub.event]
	for i, e := range list {
		if e.id == sub.id {
			b.listeners[sub.event] = append(list[:i:i], list[i+1:]...)
			if len(b.listeners[sub.event]) == 0 {
				delete(b.listeners, sub.event)
			}
			return true
		}
	}
	return false
}

// RemoveAll removes every listener of event, or of all events when event
// is empty.
func (b *Bus) RemoveAll(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event == "" {
		b.listeners = make(map[string][]entry)
		return
	}
	delete(b.listeners, event)
}

// ListenerCount returns the number of listeners registered for event.
func (b *Bus) ListenerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[event])
}

// SetMaxListeners changes the soft per-event listener limit.
func (b *Bus) SetMaxListeners(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n >= 0 {
		b.maxListeners = n
	}
}

// Emit calls every listener of event synchronously, in order, with payload.
//
// Emitting EventError without listeners returns an error wrapping
// ErrUnhandledError and, when the payload carries one, the original error.
// A listener error on a non-error event is emitted as EventError and Emit
// returns whatever that emission returns.
func (b *Bus) Emit(event string, payload any) error {
	list := b.snapshot(event)

	if len(list) == 0 {
		if event == EventError {
			return unhandledError(payload)
		}
		return nil
	}

	var errs []error
	for _, e := range list {
		err := e.call(payload)
		if err == nil {
			continue
		}
		if event == EventError {
			errs = append(errs, err)
			continue
		}
		if emitErr := b.Emit(EventError, err); emitErr != nil {
			return emitErr
		}
	}

	return errors.Join(errs...)
}

// Wait blocks until every asynchronous listener started so far has resolved.
func (b *Bus) Wait() {
	b.pending.Wait()
}

// snapshot copies the listener list of event and drops once entries so that
// concurrent emitters never fire the same once listener twice.
func (b *Bus) snapshot(event string) []entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.listeners[event]
	if len(list) == 0 {
		return nil
	}

	out := make([]entry, len(list))
	copy(out, list)

	kept := list[:0:0]
	for _, e := range list {
		if !e.once {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(b.listeners, event)
	} else {
		b.listeners[event] = kept
	}

	return out
}

func (b *Bus) add(event string, listener Listener, once, prepend bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	e := entry{id: b.nextID, call: listener, once: once}

	if prepend {
		b.listeners[event] = append([]entry{e}, b.listeners[event]...)
	} else {
		b.listeners[event] = append(b.listeners[event], e)
	}

	if n := len(b.listeners[event]); b.maxListeners > 0 && n > b.maxListeners && !b.warned[event] {
		b.warned[event] = true
		b.logger.Warn("possible listener leak",
			"event", event,
			"listeners", n,
			"max", b.maxListeners,
		)
	}

	return Subscription{id: e.id, event: event}
}

func (b *Bus) reportAsync(err error) {
	if emitErr := b.Emit(EventError, err); emitErr != nil {
		b.unhandled(emitErr)
	}
}

// unhandledError builds the error returned for an unobserved error event.
func unhandledError(payload any) error {
	switch p := payload.(type) {
	case error:
		return fmt.Errorf("%w: %w", ErrUnhandledError, p)
	case Message:
		if p.Err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnhandledError, p.Module, p.Err)
		}
		return fmt.Errorf("%w: %s: %s", ErrUnhandledError, p.Module, p.Text)
	case nil:
		return ErrUnhandledError
	default:
		return fmt.Errorf("%w: %v", ErrUnhandledError, p)
	}
}
