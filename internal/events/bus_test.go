package events_test

import (
	"testing"
	"time"

	"github.com/couchcryptid/weather-alert-monitor/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := events.NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(events.CycleStarted{CycleID: "c1", At: time.Now()})

	for _, ch := range []<-chan events.Event{a, b} {
		select {
		case ev := <-ch:
			started, ok := ev.(events.CycleStarted)
			require.True(t, ok, "expected CycleStarted, got %T", ev)
			assert.Equal(t, "c1", started.CycleID)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestBus_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	// Fill the buffer and then some; Publish must return every time.
	for i := 0; i < 40; i++ {
		bus.Publish(events.CountdownTick{Remaining: time.Duration(i) * time.Second})
	}

	assert.Greater(t, bus.Dropped(), uint64(0))

	// The buffered events are still intact and in order.
	first := (<-ch).(events.CountdownTick)
	assert.Equal(t, time.Duration(0), first.Remaining)
}

func TestBus_CloseClosesSubscribers(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	bus.Close()

	_, open := <-ch
	assert.False(t, open, "subscriber channel should be closed")

	// Publish and a second Close after closing are no-ops.
	bus.Publish(events.CycleStarted{CycleID: "late"})
	bus.Close()
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := events.NewBus()
	bus.Close()

	ch := bus.Subscribe()
	_, open := <-ch
	assert.False(t, open, "post-close subscription should be closed immediately")
}
