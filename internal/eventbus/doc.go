// Package eventbus provides a synchronous, in-process publish/subscribe bus
// used to decouple feed discovery from progress reporting and presentation.
//
// Listeners are invoked in subscription order on the goroutine that calls
// Emit. Prepend subscriptions run before existing listeners, and Once
// subscriptions remove themselves before their first invocation.
//
// # Error events
//
// The "error" event is special: emitting it while nobody listens returns
// ErrUnhandledError, so discovery fails loudly unless the caller opts into
// handling errors. A listener that returns an error causes that error to be
// emitted as an "error" event. Failures of asynchronous listeners registered
// with OnAsync are funneled through the same path once they resolve.
//
// # Usage
//
//	bus := eventbus.New()
//	bus.On(eventbus.EventError, func(payload any) error {
//	    fmt.Fprintln(os.Stderr, payload)
//	    return nil
//	})
//	if err := bus.Emit(eventbus.EventLog, eventbus.Message{Text: "hello"}); err != nil {
//	    return err
//	}
package eventbus
