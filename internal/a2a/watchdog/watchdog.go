// Package watchdog implements the idle/max-duration sweeper: a
// periodic ticker walking an in-memory activity map, concluding
// conversations that have gone idle or run long and logging the
// conclusion reason via slog, the way internal/agent/delivery.go's
// worker loop ticks on an interval and logs on each pass.
package watchdog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/convstore"
	"github.com/KafClaw/KafClaw/internal/a2a/notify"
)

// Activity is one conversation's tracked liveness.
type Activity struct {
	StartTime    time.Time
	LastActivity time.Time
	Caller       string
}

// Options configures a Watchdog.
type Options struct {
	Interval    time.Duration // default 10s
	IdleTimeout time.Duration // default 60s
	MaxDuration time.Duration // default 300s
	Summarizer  convstore.Summarizer
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 300 * time.Second
	}
	return o
}

// Watchdog sweeps the activity map on a timer, concluding conversations
// past idle or max-duration thresholds via the conversation store.
type Watchdog struct {
	opts     Options
	conv     *convstore.Store
	notifier *notify.Dispatcher
	log      *slog.Logger

	mu       sync.Mutex
	activity map[string]Activity

	stop chan struct{}
	done chan struct{}
}

// New builds a watchdog bound to conv (for conclusion) and notifier
// (for owner notification on conclusion).
func New(conv *convstore.Store, notifier *notify.Dispatcher, opts Options) *Watchdog {
	return &Watchdog{
		opts:     opts.withDefaults(),
		conv:     conv,
		notifier: notifier,
		log:      slog.Default().With("component", "watchdog"),
		activity: make(map[string]Activity),
	}
}

// Touch registers or refreshes activity for a conversation. Called on
// every inbound request (spec §4.5 step 9).
func (w *Watchdog) Touch(conversationID, caller string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now().UTC()
	a, ok := w.activity[conversationID]
	if !ok {
		a = Activity{StartTime: now, Caller: caller}
	}
	a.LastActivity = now
	if caller != "" {
		a.Caller = caller
	}
	w.activity[conversationID] = a
}

// Forget removes a conversation from tracking, called once it has
// concluded through the normal call flow (POST /end).
func (w *Watchdog) Forget(conversationID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.activity, conversationID)
}

// Start begins the periodic sweep. Idempotent: calling Start twice on
// an already-running watchdog is a no-op.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop := w.stop
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(w.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.sweep()
			}
		}
	}()
}

// Stop cancels the timer and waits for the sweep goroutine to exit.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	stop := w.stop
	done := w.done
	w.stop = nil
	w.done = nil
	w.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

type expired struct {
	conversationID string
	caller         string
	reason         string
}

// sweep walks the activity map once, concluding anything past
// threshold.
func (w *Watchdog) sweep() {
	now := time.Now().UTC()

	w.mu.Lock()
	var due []expired
	for id, a := range w.activity {
		switch {
		case now.Sub(a.StartTime) > w.opts.MaxDuration:
			due = append(due, expired{conversationID: id, caller: a.Caller, reason: "max_duration"})
		case now.Sub(a.LastActivity) > w.opts.IdleTimeout:
			due = append(due, expired{conversationID: id, caller: a.Caller, reason: "idle_timeout"})
		}
	}
	for _, e := range due {
		delete(w.activity, e.conversationID)
	}
	w.mu.Unlock()

	for _, e := range due {
		w.conclude(e)
	}
}

func (w *Watchdog) conclude(e expired) {
	conv, err := w.conv.ConcludeConversation(e.conversationID, convstore.ConcludeOptions{Summarizer: w.opts.Summarizer})
	if err != nil {
		w.log.Error("conclude_failed", "conversation_id", e.conversationID, "reason", e.reason, "error", err.Error())
		return
	}
	w.log.Info("conversation_concluded", "conversation_id", e.conversationID, "reason", e.reason)
	if w.notifier != nil {
		w.notifier.Dispatch(notify.Event{
			Reason:         e.reason,
			ConversationID: e.conversationID,
			ContactName:    e.caller,
			Summary:        conv.Summary,
		})
	}
}
