package progresshub

import (
	"sync"
	"time"

	"github.com/kataras/go-events"
	log "github.com/sirupsen/logrus"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

const (
	subscriberBufferSize = 256

	// Terminal events close subscriptions after this grace period so
	// in-flight deliveries can land first.
	defaultTerminalGracePeriod = 100 * time.Millisecond
)

type subscription struct {
	ch       chan eventmodels.ProgressEvent
	listener events.Listener
	closed   bool
}

// Hub is the in-process fan-out for strategy execution progress. Events are
// delivered to every subscriber in publish order; a subscriber attaching
// mid-run immediately receives the latest known event as a snapshot. After a
// terminal event the hub forgets all per-strategy state to bound memory.
type Hub struct {
	emitter     events.EventEmmiter
	gracePeriod time.Duration

	mu     sync.Mutex
	latest map[eventmodels.StrategyID]eventmodels.ProgressEvent
	subs   map[eventmodels.StrategyID][]*subscription
}

func NewHub() *Hub {
	emitter := events.New()
	emitter.SetMaxListeners(0) // unlimited subscribers per strategy

	return &Hub{
		emitter:     emitter,
		gracePeriod: defaultTerminalGracePeriod,
		latest:      make(map[eventmodels.StrategyID]eventmodels.ProgressEvent),
		subs:        make(map[eventmodels.StrategyID][]*subscription),
	}
}

// Publish delivers event to every current subscriber of the strategy. A
// terminal event schedules teardown of all subscriptions for that strategy.
func (h *Hub) Publish(strategyID eventmodels.StrategyID, event eventmodels.ProgressEvent) {
	event.StrategyID = strategyID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	h.latest[strategyID] = event
	h.emitter.Emit(events.EventName(strategyID), event)
	h.mu.Unlock()

	if event.Stage.IsTerminal() {
		time.AfterFunc(h.gracePeriod, func() {
			h.forget(strategyID)
		})
	}
}

// Subscribe returns a channel of progress events plus an unsubscribe
// function. The latest known event, if any, is delivered first. The channel
// is closed after a terminal event's grace period or on unsubscribe.
func (h *Hub) Subscribe(strategyID eventmodels.StrategyID) (<-chan eventmodels.ProgressEvent, func()) {
	sub := &subscription{
		ch: make(chan eventmodels.ProgressEvent, subscriberBufferSize),
	}

	sub.listener = func(args ...interface{}) {
		if len(args) == 0 {
			return
		}

		event, ok := args[0].(eventmodels.ProgressEvent)
		if !ok {
			return
		}

		select {
		case sub.ch <- event:
		default:
			log.Warnf("progress subscriber for strategy %s is not draining, dropping event", strategyID)
		}
	}

	h.mu.Lock()
	if snapshot, found := h.latest[strategyID]; found {
		sub.ch <- snapshot
	}

	h.subs[strategyID] = append(h.subs[strategyID], sub)
	h.emitter.On(events.EventName(strategyID), sub.listener)
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.removeSubscription(strategyID, sub)
	}

	return sub.ch, unsubscribe
}

// Latest returns the most recent event published for the strategy, if any.
func (h *Hub) Latest(strategyID eventmodels.StrategyID) (eventmodels.ProgressEvent, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	event, found := h.latest[strategyID]
	return event, found
}

// SubscriberCount is used by tests and the streaming endpoint's health view.
func (h *Hub) SubscriberCount(strategyID eventmodels.StrategyID) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subs[strategyID])
}

// removeSubscription must be called with h.mu held.
func (h *Hub) removeSubscription(strategyID eventmodels.StrategyID, sub *subscription) {
	if sub.closed {
		return
	}

	sub.closed = true
	h.emitter.RemoveListener(events.EventName(strategyID), sub.listener)
	close(sub.ch)

	remaining := h.subs[strategyID][:0]
	for _, s := range h.subs[strategyID] {
		if s != sub {
			remaining = append(remaining, s)
		}
	}

	if len(remaining) == 0 {
		delete(h.subs, strategyID)
	} else {
		h.subs[strategyID] = remaining
	}
}

// forget tears down all subscriptions and drops the latest-event snapshot
// for a strategy once its run is terminal.
func (h *Hub) forget(strategyID eventmodels.StrategyID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range append([]*subscription(nil), h.subs[strategyID]...) {
		h.removeSubscription(strategyID, sub)
	}

	h.emitter.RemoveAllListeners(events.EventName(strategyID))
	delete(h.latest, strategyID)
	delete(h.subs, strategyID)
}
