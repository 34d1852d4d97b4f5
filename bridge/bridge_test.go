package bridge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanout(t *testing.T) {
	t.Parallel()

	b := New()

	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelFirst()
	defer cancelSecond()

	b.Publish(Event{Type: TypeSyncCompleted, Synced: 2, Failed: 1})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			assert.Equal(t, TypeSyncCompleted, ev.Type)
			assert.Equal(t, 2, ev.Synced)
			assert.Equal(t, 1, ev.Failed)
			assert.False(t, ev.At.IsZero())
		case <-time.After(time.Second):
			t.Fatal("expected every subscriber to receive the event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	b := New()

	ch, cancel := b.Subscribe()
	cancel()

	// The channel is closed; repeated cancels are safe.
	cancel()

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TypeActionQueued, Pending: 1})
}

func TestSlowConsumerDoesNotBlock(t *testing.T) {
	t.Parallel()

	b := New()

	_, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Far more events than the subscriber buffer holds.
		for i := 0; i < 100; i++ {
			b.Publish(Event{Type: TypeActionQueued, Pending: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher blocked on a slow consumer")
	}
}
