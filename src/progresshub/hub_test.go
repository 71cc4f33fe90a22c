package progresshub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/strategy-engine/src/eventmodels"
)

func progressEvent(stage eventmodels.ProgressStage, progress float64) eventmodels.ProgressEvent {
	return eventmodels.ProgressEvent{
		Stage:    stage,
		Progress: progress,
		Message:  string(stage),
	}
}

func collectEvents(t *testing.T, ch <-chan eventmodels.ProgressEvent, n int) []eventmodels.ProgressEvent {
	t.Helper()

	var events []eventmodels.ProgressEvent
	timeout := time.After(2 * time.Second)

	for len(events) < n {
		select {
		case event, open := <-ch:
			if !open {
				return events
			}

			events = append(events, event)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(events))
		}
	}

	return events
}

func TestHubPublishSubscribe(t *testing.T) {
	t.Run("early subscriber receives all events in order", func(t *testing.T) {
		hub := NewHub()

		ch, unsubscribe := hub.Subscribe("S1")
		defer unsubscribe()

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageFetchingData, 0.1))
		hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.5))
		hub.Publish("S1", progressEvent(eventmodels.ProgressStageComplete, 1.0))

		received := collectEvents(t, ch, 3)

		assert.Equal(t, eventmodels.ProgressStageFetchingData, received[0].Stage)
		assert.Equal(t, eventmodels.ProgressStageRunning, received[1].Stage)
		assert.Equal(t, eventmodels.ProgressStageComplete, received[2].Stage)
		assert.Equal(t, eventmodels.StrategyID("S1"), received[0].StrategyID)
	})

	t.Run("late subscriber gets the snapshot first", func(t *testing.T) {
		hub := NewHub()

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageFetchingData, 0.1))
		hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.5))

		ch, unsubscribe := hub.Subscribe("S1")
		defer unsubscribe()

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageComplete, 1.0))

		received := collectEvents(t, ch, 2)

		assert.Equal(t, eventmodels.ProgressStageRunning, received[0].Stage)
		assert.Equal(t, 0.5, received[0].Progress)
		assert.Equal(t, eventmodels.ProgressStageComplete, received[1].Stage)
	})

	t.Run("multiple subscribers each receive every event", func(t *testing.T) {
		hub := NewHub()

		first, cancelFirst := hub.Subscribe("S1")
		defer cancelFirst()

		second, cancelSecond := hub.Subscribe("S1")
		defer cancelSecond()

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.4))

		assert.Equal(t, eventmodels.ProgressStageRunning, collectEvents(t, first, 1)[0].Stage)
		assert.Equal(t, eventmodels.ProgressStageRunning, collectEvents(t, second, 1)[0].Stage)
	})

	t.Run("strategies are isolated", func(t *testing.T) {
		hub := NewHub()

		ch, unsubscribe := hub.Subscribe("S1")
		defer unsubscribe()

		hub.Publish("S2", progressEvent(eventmodels.ProgressStageRunning, 0.9))

		select {
		case event := <-ch:
			t.Fatalf("unexpected event for other strategy: %+v", event)
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestHubLatest(t *testing.T) {
	hub := NewHub()

	_, found := hub.Latest("S1")
	assert.False(t, found)

	hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.5))

	event, found := hub.Latest("S1")
	require.True(t, found)
	assert.Equal(t, eventmodels.ProgressStageRunning, event.Stage)
}

func TestHubTerminalCleanup(t *testing.T) {
	t.Run("terminal event closes subscriptions and forgets state", func(t *testing.T) {
		hub := NewHub()
		hub.gracePeriod = 10 * time.Millisecond

		ch, _ := hub.Subscribe("S1")

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.5))
		hub.Publish("S1", progressEvent(eventmodels.ProgressStageComplete, 1.0))

		received := collectEvents(t, ch, 2)
		assert.Equal(t, eventmodels.ProgressStageComplete, received[1].Stage)

		// After the grace period the channel closes and state is gone
		require.Eventually(t, func() bool {
			select {
			case _, open := <-ch:
				return !open
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)

		_, found := hub.Latest("S1")
		assert.False(t, found)
		assert.Equal(t, 0, hub.SubscriberCount("S1"))
	})
}

func TestHubUnsubscribe(t *testing.T) {
	t.Run("unsubscribing one does not affect others", func(t *testing.T) {
		hub := NewHub()

		first, cancelFirst := hub.Subscribe("S1")
		second, cancelSecond := hub.Subscribe("S1")
		defer cancelSecond()

		cancelFirst()

		hub.Publish("S1", progressEvent(eventmodels.ProgressStageRunning, 0.7))

		_, open := <-first
		assert.False(t, open)

		received := collectEvents(t, second, 1)
		assert.Equal(t, eventmodels.ProgressStageRunning, received[0].Stage)
	})

	t.Run("double unsubscribe is harmless", func(t *testing.T) {
		hub := NewHub()

		_, cancel := hub.Subscribe("S1")
		cancel()
		cancel()

		assert.Equal(t, 0, hub.SubscriberCount("S1"))
	})
}
