// ABOUTME: Tests for EventBroadcaster fan-out pub/sub system
// ABOUTME: Covers subscribe, publish, wildcard subscribers, context cancellation, concurrency

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(convID string) *Event {
	return &Event{Type: EventTyping, ConversationID: convID, Participant: "Ada"}
}

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, ch <-chan *Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")
	b.Publish(makeEvent("conv-1"))

	ev := receive(t, ch)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestBroadcaster_MultipleSubscribersReceiveSameEvent(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-1")

	b.Publish(makeEvent("conv-1"))

	assert.Equal(t, receive(t, ch1).ID, receive(t, ch2).ID)
}

func TestBroadcaster_IsolatesConversations(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-2")

	b.Publish(makeEvent("conv-1"))

	receive(t, ch1)
	assertNoEvent(t, ch2)
}

func TestBroadcaster_WildcardReceivesEverything(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	all, _ := b.Subscribe(t.Context(), AllConversations)

	b.Publish(makeEvent("conv-1"))
	b.Publish(makeEvent("conv-2"))

	assert.Equal(t, "conv-1", receive(t, all).ConversationID)
	assert.Equal(t, "conv-2", receive(t, all).ConversationID)
}

func TestBroadcaster_EmptyConversationReachesAllSubscribers(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx := t.Context()
	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-2")

	b.Publish(&Event{Type: EventTyping})

	receive(t, ch1)
	receive(t, ch2)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "conv-1")
	require.Equal(t, 1, b.SubscriberCount("conv-1"))

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
	assert.Equal(t, 0, b.SubscriberCount("conv-1"))
}

func TestBroadcaster_SlowSubscriberDropsEvents(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "conv-1")

	for i := 0; i < subscriberBufferSize+10; i++ {
		b.Publish(makeEvent("conv-1"))
	}

	assert.Len(t, ch, subscriberBufferSize)
}

func TestBroadcaster_UnsubscribeTwiceIsSafe(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	_, subID := b.Subscribe(t.Context(), "conv-1")
	b.Unsubscribe("conv-1", subID)
	b.Unsubscribe("conv-1", subID)
	b.Unsubscribe("missing", subID)
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			ch, _ := b.Subscribe(ctx, "conv-1")
			cancel()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(makeEvent("conv-1"))
			}
		}()
	}
	wg.Wait()
}
