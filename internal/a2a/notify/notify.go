// Package notify implements fire-and-forget owner notifications:
// spec §9 models this as "a bounded background task with its own
// error handling; never let it block a response or crash the server".
package notify

import "context"

// Event is what triggered a notification.
type Event struct {
	Reason         string // "idle_timeout", "max_duration", "invoke", "end"
	ConversationID string
	ContactName    string
	Summary        string
}

// OwnerNotifier dispatches a best-effort notification to the owner.
// Implementations must not block the caller; Dispatcher.Dispatch below
// enforces that by running Notify in its own goroutine.
type OwnerNotifier interface {
	Notify(ctx context.Context, event Event) error
}

// NoOp discards every event; the zero-config default.
type NoOp struct{}

// Notify implements OwnerNotifier.
func (NoOp) Notify(ctx context.Context, event Event) error { return nil }

// ErrorLogger is called when a fire-and-forget notification fails; it
// must never panic or block.
type ErrorLogger func(event Event, err error)

// Dispatcher wraps an OwnerNotifier to make every call fire-and-forget:
// Dispatch returns immediately, running the underlying Notify in its
// own goroutine and routing any error to onError instead of the
// caller.
type Dispatcher struct {
	notifier OwnerNotifier
	onError  ErrorLogger
}

// NewDispatcher builds a fire-and-forget wrapper around notifier. A
// nil onError silently discards failures.
func NewDispatcher(notifier OwnerNotifier, onError ErrorLogger) *Dispatcher {
	if notifier == nil {
		notifier = NoOp{}
	}
	return &Dispatcher{notifier: notifier, onError: onError}
}

// Dispatch sends event in the background. It never blocks and never
// surfaces an error to the caller.
func (d *Dispatcher) Dispatch(event Event) {
	go func() {
		if err := d.notifier.Notify(context.Background(), event); err != nil && d.onError != nil {
			d.onError(event, err)
		}
	}()
}
