package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_EmitReachesSubscribers(t *testing.T) {
	hub := NewHub()
	events, cancel := hub.Subscribe()
	defer cancel()

	hub.Emit("task_created", map[string]any{"task_id": "t1"})

	select {
	case e := <-events:
		assert.Equal(t, "task_created", e.Name)
		assert.Equal(t, "t1", e.Payload["task_id"])
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	assert.Equal(t, 0, hub.Subscribers())

	// Emitting with no subscribers is a no-op.
	hub.Emit("command_output", nil)
}

func TestHub_SlowSubscriberDoesNotBlockEmit(t *testing.T) {
	hub := NewHub()
	_, cancel := hub.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		// More events than the subscriber buffer holds.
		for i := 0; i < 200; i++ {
			hub.Emit("command_output", map[string]any{"n": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestHub_MultipleSubscribers(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelA()
	defer cancelB()

	hub.Emit("agent_error", map[string]any{"error": "boom"})

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, "agent_error", e.Name)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}
