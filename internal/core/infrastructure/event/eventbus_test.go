package event

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
)

type calledPayload struct {
	Key uint64
}

func TestEventBus_SyncAndUnsubscribe(t *testing.T) {
	bus := New(nil, 0)

	var got []uint64
	handler := func(p calledPayload) { got = append(got, p.Key) }
	require.NoError(t, bus.Subscribe(event.EventTypeTicketCalled, handler))
	require.True(t, bus.HasCallback(event.EventTypeTicketCalled))

	bus.Publish(event.EventTypeTicketCalled, calledPayload{Key: 1})
	require.Equal(t, []uint64{1}, got)

	require.NoError(t, bus.Unsubscribe(event.EventTypeTicketCalled, handler))
	bus.Publish(event.EventTypeTicketCalled, calledPayload{Key: 2})
	require.Equal(t, []uint64{1}, got)
	require.False(t, bus.HasCallback(event.EventTypeTicketCalled))
}

func TestEventBus_Async(t *testing.T) {
	bus := New(nil, 0)
	var n atomic.Int32
	require.NoError(t, bus.SubscribeAsync(event.EventTypeObjectAppended, func(calledPayload) {
		n.Add(1)
	}, true))

	for i := 0; i < 5; i++ {
		bus.Publish(event.EventTypeObjectAppended, calledPayload{Key: uint64(i)})
	}
	bus.WaitAsync()
	require.EqualValues(t, 5, n.Load())
	require.EqualValues(t, 5, bus.Published())
}

func TestEventBus_BoundedHistory(t *testing.T) {
	bus := New(nil, 2)
	for i := 1; i <= 3; i++ {
		bus.Publish(event.EventTypeJoinApproved, calledPayload{Key: uint64(i)})
	}
	h := bus.History(event.EventTypeJoinApproved)
	require.Equal(t, []interface{}{calledPayload{Key: 2}, calledPayload{Key: 3}}, h)
	require.Empty(t, bus.History(event.EventTypeTicketCalled))
}
