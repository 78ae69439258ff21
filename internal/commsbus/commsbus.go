// Package commsbus implements CommsBus (spec.md §4.7): the append-only,
// drain-once message log ManagerController uses to pass
// types.CrossSectorMessage between sector managers. Adapted from the
// teacher's internal/events event bus: same
// subscribe/dispatch-with-panic-recovery shape, retargeted from its
// EventType-keyed fan-out onto CrossSectorMessage's To-addressed delivery,
// and trimmed of the 100K-events/sec worker pool and latency histograms
// the original built for market-data fan-out — this bus carries a handful
// of manager-to-manager messages per tick, not a market feed. The
// teacher's copy also had a broken mid-struct EventBusConfig declaration
// and two conflicting generateEventID definitions, both clear retrieval
// artifacts; neither was carried over.
package commsbus

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sectormind/engine/pkg/types"
	"github.com/sectormind/engine/pkg/utils"
)

// Handler processes a single delivered message. A panic inside Handler is
// recovered and logged; it never brings down the bus.
type Handler func(msg types.CrossSectorMessage)

// Bus is an in-memory, append-only log of CrossSectorMessages with
// addressed delivery to subscribed managers, plus a destructive Drain for
// callers that want to consume and clear the log.
type Bus struct {
	mu       sync.RWMutex
	log      []types.CrossSectorMessage
	subs     map[string][]Handler // keyed by manager agent id, or BroadcastRecipient
	logger   *zap.Logger
}

// NewBus constructs an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[string][]Handler),
		logger: logger.Named("commsbus"),
	}
}

// Subscribe registers handler to receive messages addressed to
// recipientID (a manager agent id, or types.BroadcastRecipient for every
// broadcast message).
func (b *Bus) Subscribe(recipientID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[recipientID] = append(b.subs[recipientID], handler)
}

// Publish appends msg to the log and dispatches it synchronously to every
// handler subscribed to msg.To (and, if msg.To is not itself the
// broadcast sentinel, to every broadcast subscriber as well).
func (b *Bus) Publish(from, to, msgType string, payload any) types.CrossSectorMessage {
	msg := types.CrossSectorMessage{
		ID:        utils.GenerateCommsID(),
		From:      from,
		To:        to,
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.Lock()
	b.log = append(b.log, msg)
	handlers := append([]Handler{}, b.subs[to]...)
	if to != types.BroadcastRecipient {
		handlers = append(handlers, b.subs[types.BroadcastRecipient]...)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.dispatch(h, msg)
	}
	return msg
}

func (b *Bus) dispatch(handler Handler, msg types.CrossSectorMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("comms handler panicked", zap.Any("recover", r), zap.String("messageId", msg.ID))
		}
	}()
	handler(msg)
}

// Snapshot returns a copy of the current log without clearing it.
func (b *Bus) Snapshot() []types.CrossSectorMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.CrossSectorMessage, len(b.log))
	copy(out, b.log)
	return out
}

// Drain returns every logged message and clears the log. Destructive by
// design (spec.md §4.7): callers that need durability persist the
// snapshot themselves (e.g. into storage.TableComms) before draining.
func (b *Bus) Drain() []types.CrossSectorMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.log
	b.log = nil
	return out
}
