package refresh

import (
	"io"
	"log/slog"
	"testing"
)

func newTestBus() *Bus {
	return NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishNotifiesAllSubscribers(t *testing.T) {
	bus := newTestBus()

	var gotA, gotB int
	bus.Subscribe("a", func() { gotA++ })
	bus.Subscribe("b", func() { gotB++ })

	bus.Publish()
	bus.Publish()

	if gotA != 2 || gotB != 2 {
		t.Errorf("deliveries = (%d, %d), want (2, 2)", gotA, gotB)
	}
}

func TestUnsubscribeDuringOwnCallback(t *testing.T) {
	bus := newTestBus()

	var gotA, gotB int
	var unsubA func()
	unsubA = bus.Subscribe("a", func() {
		gotA++
		unsubA()
	})
	bus.Subscribe("b", func() { gotB++ })

	// A unsubscribes itself mid-publish; B still receives this publish.
	bus.Publish()
	if gotA != 1 || gotB != 1 {
		t.Fatalf("first publish = (%d, %d), want (1, 1)", gotA, gotB)
	}

	// A subsequent publish no longer reaches A.
	bus.Publish()
	if gotA != 1 {
		t.Errorf("A notified after unsubscribe, deliveries = %d", gotA)
	}
	if gotB != 2 {
		t.Errorf("B deliveries = %d, want 2", gotB)
	}
}

func TestSubscriberAddedDuringPublishNotNotified(t *testing.T) {
	bus := newTestBus()

	var late int
	bus.Subscribe("a", func() {
		bus.Subscribe("late", func() { late++ })
	})

	bus.Publish()
	if late != 0 {
		t.Errorf("late subscriber notified by the publish that added it")
	}

	bus.Publish()
	if late != 1 {
		t.Errorf("late deliveries = %d, want 1", late)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	bus := newTestBus()

	var got int
	unsub := bus.Subscribe("a", func() { got++ })

	unsub()
	unsub()
	unsub()

	bus.Publish()
	if got != 0 {
		t.Errorf("deliveries after unsubscribe = %d, want 0", got)
	}
	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n)
	}
}

func TestPanickingCallbackDoesNotBlockOthers(t *testing.T) {
	bus := newTestBus()

	var gotB int
	bus.Subscribe("a", func() { panic("plugin bug") })
	bus.Subscribe("b", func() { gotB++ })

	bus.Publish() // must not propagate the panic
	if gotB != 1 {
		t.Errorf("B deliveries = %d, want 1", gotB)
	}
}

func TestReentrantPublishBounded(t *testing.T) {
	bus := newTestBus()

	var calls int
	bus.Subscribe("a", func() {
		calls++
		bus.Publish() // reentrant; must terminate at the depth bound
	})

	bus.Publish()
	if calls != MaxPublishDepth {
		t.Errorf("calls = %d, want %d", calls, MaxPublishDepth)
	}
}

func TestRemoveOwner(t *testing.T) {
	bus := newTestBus()

	var gotA, gotB int
	bus.Subscribe("plug-a", func() { gotA++ })
	bus.Subscribe("plug-a", func() { gotA++ })
	unsubB := bus.Subscribe("plug-b", func() { gotB++ })

	bus.RemoveOwner("plug-a")

	bus.Publish()
	if gotA != 0 {
		t.Errorf("removed owner still notified, deliveries = %d", gotA)
	}
	if gotB != 1 {
		t.Errorf("unrelated owner deliveries = %d, want 1", gotB)
	}

	// The handle from before removal stays a safe no-op.
	unsubB()
	unsubB()
}
