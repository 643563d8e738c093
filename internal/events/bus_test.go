package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_SubscribeEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(PlanGenerated, func(e *Event) {
		received = append(received, e)
	})

	bus.Emit(PlanGenerated, "planning", map[string]interface{}{"run_id": "r1"})
	bus.Emit(BatchSequenced, "planning", nil)

	require.Len(t, received, 1)
	assert.Equal(t, PlanGenerated, received[0].Type)
	assert.Equal(t, "planning", received[0].Module)
	assert.Equal(t, "r1", received[0].Data["run_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	sub := bus.Subscribe(RunStarted, func(*Event) { calls++ })
	other := bus.Subscribe(RunStarted, func(*Event) {})
	assert.Equal(t, 2, bus.SubscriberCount(RunStarted))

	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Emit(RunStarted, "test", nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, bus.SubscriberCount(RunStarted))

	bus.Unsubscribe(other)
	assert.Equal(t, 0, bus.SubscriberCount(RunStarted))
}

func TestBus_HandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := 0
	bus.Subscribe(ErrorOccurred, func(*Event) { panic("boom") })
	bus.Subscribe(ErrorOccurred, func(*Event) { delivered++ })

	assert.NotPanics(t, func() {
		bus.Emit(ErrorOccurred, "test", nil)
	})
	assert.Equal(t, 1, delivered)
}

func TestBus_ConcurrentUse(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var mu sync.Mutex
	count := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := bus.Subscribe(TradeTransitioned, func(*Event) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			bus.Emit(TradeTransitioned, "test", nil)
			bus.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, bus.SubscriberCount(TradeTransitioned))
	assert.GreaterOrEqual(t, count, 20)
}

func TestManager_EmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(RecommendationsReady, func(e *Event) { got = e })

	manager.EmitTyped(RecommendationsReady, "planning", &RecommendationsReadyData{RunID: "r2", Count: 4})

	require.NotNil(t, got)
	assert.Equal(t, "r2", got.Data["run_id"])
	assert.Equal(t, 4.0, got.Data["count"])
}

func TestManager_EmitError(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	manager := NewManager(bus, zerolog.Nop())

	var got *Event
	bus.Subscribe(ErrorOccurred, func(e *Event) { got = e })

	manager.EmitError("scheduler", errors.New("snapshot missing"), map[string]interface{}{"file": "x.json"})

	require.NotNil(t, got)
	typed, ok := got.GetTypedData().(*ErrorEventData)
	require.True(t, ok)
	assert.Equal(t, "snapshot missing", typed.Error)
	assert.Equal(t, "x.json", typed.Context["file"])
}
