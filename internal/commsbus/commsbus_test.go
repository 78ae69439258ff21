package commsbus

import (
	"testing"

	"go.uber.org/zap"

	"github.com/sectormind/engine/pkg/types"
)

func TestPublishDeliversToDirectSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	received := make(chan types.CrossSectorMessage, 1)
	bus.Subscribe("mgr-1", func(msg types.CrossSectorMessage) { received <- msg })

	bus.Publish("mgr-2", "mgr-1", "discussion_opened", map[string]string{"sectorId": "s1"})

	select {
	case msg := <-received:
		if msg.To != "mgr-1" {
			t.Fatalf("expected delivery to mgr-1, got %s", msg.To)
		}
	default:
		t.Fatal("expected the direct subscriber to receive the message synchronously")
	}
}

func TestPublishBroadcastReachesEveryBroadcastSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	count := 0
	bus.Subscribe(types.BroadcastRecipient, func(msg types.CrossSectorMessage) { count++ })
	bus.Subscribe(types.BroadcastRecipient, func(msg types.CrossSectorMessage) { count++ })

	bus.Publish("mgr-1", types.BroadcastRecipient, "discussion_opened", nil)

	if count != 2 {
		t.Fatalf("expected both broadcast subscribers to fire, got %d", count)
	}
}

func TestHandlerPanicDoesNotCrashPublish(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Subscribe("mgr-1", func(msg types.CrossSectorMessage) { panic("boom") })

	bus.Publish("mgr-2", "mgr-1", "discussion_opened", nil)
	// reaching here means the panic was recovered
}

func TestDrainClearsLogButSnapshotDoesNot(t *testing.T) {
	bus := NewBus(zap.NewNop())
	bus.Publish("mgr-1", types.BroadcastRecipient, "discussion_opened", nil)

	if len(bus.Snapshot()) != 1 {
		t.Fatalf("expected snapshot to report 1 message")
	}
	if len(bus.Snapshot()) != 1 {
		t.Fatal("expected snapshot to be non-destructive")
	}

	drained := bus.Drain()
	if len(drained) != 1 {
		t.Fatalf("expected drain to return 1 message, got %d", len(drained))
	}
	if len(bus.Snapshot()) != 0 {
		t.Fatal("expected the log to be empty after drain")
	}
}
