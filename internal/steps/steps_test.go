package steps

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStreamDeliversInEmissionOrder(t *testing.T) {
	bus := NewBus(16)
	bus.EnsureQueue("s1")
	bus.Step("s1", "athena", "classify", map[string]interface{}{"intent": "document_search"})
	bus.Step("s1", "sisyphus", "iteration_start", nil)
	bus.Complete("s1", map[string]interface{}{"count": 3})

	var got []Event
	err := bus.Stream(context.Background(), "s1", time.Second, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, EventStep, got[0].Type)
	assert.Equal(t, "athena", got[0].Agent)
	assert.Equal(t, "classify", got[0].Action)
	assert.Equal(t, "sisyphus", got[1].Agent)
	assert.Equal(t, EventComplete, got[2].Type)
	for _, ev := range got {
		assert.NotEmpty(t, ev.Timestamp)
	}
}

func TestStreamStopsAtErrorEvent(t *testing.T) {
	bus := NewBus(16)
	bus.EnsureQueue("s1")
	bus.Step("s1", "zeus", "load_context", nil)
	bus.Error("s1", "search failed")
	bus.Step("s1", "zeus", "after_terminal", nil)

	var got []Event
	err := bus.Stream(context.Background(), "s1", time.Second, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, EventError, got[1].Type)
	assert.Equal(t, "search failed", got[1].Details["message"])
}

func TestStreamTimeoutEmitsSyntheticEvent(t *testing.T) {
	bus := NewBus(16)
	bus.EnsureQueue("s1")
	bus.Step("s1", "zeus", "classify", nil)

	var got []Event
	err := bus.Stream(context.Background(), "s1", 50*time.Millisecond, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, EventTimeout, got[1].Type)
	assert.Equal(t, 0.05, got[1].Details["timeout_seconds"])
}

func TestEmitNeverBlocksOnFullQueue(t *testing.T) {
	bus := NewBus(2)
	bus.EnsureQueue("s1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			bus.Step("s1", "agent", "step", nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full queue")
	}

	assert.Equal(t, 8, bus.Dropped("s1"))
	assert.Equal(t, 8, bus.DroppedTotal())
}

func TestStreamRemovesQueueOnReturn(t *testing.T) {
	bus := NewBus(4)
	bus.EnsureQueue("s1")
	bus.Complete("s1", nil)

	err := bus.Stream(context.Background(), "s1", time.Second, func(Event) error { return nil })
	require.NoError(t, err)

	bus.mu.Lock()
	_, exists := bus.queues["s1"]
	bus.mu.Unlock()
	assert.False(t, exists, "queue should be removed after the consumer returns")
}

func TestStreamHonorsContextCancel(t *testing.T) {
	bus := NewBus(4)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := bus.Stream(ctx, "s1", time.Minute, func(Event) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmitWithoutConsumerRetainsNothing(t *testing.T) {
	bus := NewBus(16)
	for i := 0; i < 1000; i++ {
		bus.Step("session-"+string(rune('a'+i%26))+string(rune('0'+i%10)), "agent", "step", nil)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Empty(t, bus.queues, "emitting must never create queues")
	assert.Empty(t, bus.dropped)
}

func TestEnsureQueueRetainsEventsForLateConsumer(t *testing.T) {
	bus := NewBus(16)
	bus.EnsureQueue("s1")
	bus.EnsureQueue("s1") // idempotent
	bus.Step("s1", "athena", "classify", nil)
	bus.Complete("s1", nil)

	var got []Event
	err := bus.Stream(context.Background(), "s1", time.Second, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "classify", got[0].Action)
}

func TestEmitIgnoresEmptySession(t *testing.T) {
	bus := NewBus(4)
	bus.Step("", "agent", "step", nil)

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Empty(t, bus.queues)
}
