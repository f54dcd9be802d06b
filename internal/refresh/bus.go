// Package refresh provides the data-refresh bus: a single in-process
// channel announcing that underlying finance data changed. There is no
// payload; subscribers re-fetch their own view of the data.
package refresh

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// MaxPublishDepth bounds reentrant publishes. A callback may call Publish
// again; past this depth the nested publish is dropped and reported.
const MaxPublishDepth = 8

// Callback is invoked on every publish. It receives no payload.
type Callback func()

type subscription struct {
	id     string
	owner  string
	fn     Callback
	active bool
}

// Bus is a publish/subscribe channel shared by the host and all plugins.
// It is owned by the plugin manager and passed by reference, so teardown
// is deterministic rather than hanging off global state.
type Bus struct {
	mu     sync.Mutex
	subs   []*subscription
	depth  int
	logger *slog.Logger
}

// NewBus creates a bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers a callback owned by the given plugin id (or "host").
// The returned unsubscribe function is idempotent: calling it twice, or
// after the owner was deactivated, is a no-op.
func (b *Bus) Subscribe(owner string, fn Callback) func() {
	sub := &subscription{
		id:     uuid.NewString(),
		owner:  owner,
		fn:     fn,
		active: true,
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return func() {
		b.remove(sub.id)
	}
}

// Publish notifies every callback subscribed at the moment of the call.
// A subscriber added during delivery is not notified by this publish; one
// removed during delivery (including by its own callback) is skipped if
// not yet reached. A failing callback never prevents delivery to the rest
// and never propagates to the caller; failures go to the host diagnostics.
func (b *Bus) Publish() {
	b.mu.Lock()
	if b.depth >= MaxPublishDepth {
		b.mu.Unlock()
		b.logger.Warn("refresh publish dropped: reentrancy depth exceeded",
			"depth", MaxPublishDepth)
		return
	}
	b.depth++
	snapshot := make([]*subscription, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.depth--
		b.mu.Unlock()
	}()

	for _, sub := range snapshot {
		b.mu.Lock()
		alive := sub.active
		b.mu.Unlock()
		if !alive {
			continue
		}
		b.deliver(sub)
	}
}

// deliver runs one callback, containing any panic.
func (b *Bus) deliver(sub *subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("refresh callback panicked",
				"owner", sub.owner, "subscription", sub.id, "panic", r)
		}
	}()
	sub.fn()
}

// RemoveOwner drops every subscription held by the owner. Used by plugin
// teardown so a deactivated plugin can never be called again.
func (b *Bus) RemoveOwner(owner string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, sub := range b.subs {
		if sub.owner == owner {
			sub.active = false
			continue
		}
		kept = append(kept, sub)
	}
	b.subs = kept
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			sub.active = false
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}
