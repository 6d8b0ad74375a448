package notify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_Subscribe(t *testing.T) {
	broker := NewBroker[string](0, nil)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish("hello")

	select {
	case v := <-ch:
		require.Equal(t, "hello", v)
	case <-time.After(100 * time.Millisecond):
		require.Fail(t, "timeout waiting for value")
	}
}

func TestBroker_MultipleSubscribers(t *testing.T) {
	broker := NewBroker[int](0, nil)
	defer broker.Close()

	ctx := context.Background()
	chs := []<-chan int{broker.Subscribe(ctx), broker.Subscribe(ctx), broker.Subscribe(ctx)}
	require.Equal(t, 3, broker.SubscriberCount())

	broker.Publish(42)

	for i, ch := range chs {
		select {
		case v := <-ch:
			require.Equal(t, 42, v, "subscriber %d", i)
		case <-time.After(100 * time.Millisecond):
			require.Fail(t, "timeout waiting for value", "subscriber %d", i)
		}
	}
}

func TestBroker_ContextCancellation(t *testing.T) {
	broker := NewBroker[string](0, nil)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := broker.Subscribe(ctx)
	require.Equal(t, 1, broker.SubscriberCount())

	cancel()
	require.Eventually(t, func() bool { return broker.SubscriberCount() == 0 },
		time.Second, 5*time.Millisecond)

	_, ok := <-ch
	require.False(t, ok, "channel should be closed")
}

func TestBroker_FullSubscriberDrops(t *testing.T) {
	var dropped atomic.Int32
	broker := NewBroker(1, func(int) { dropped.Add(1) })
	defer broker.Close()

	ch := broker.Subscribe(context.Background())
	broker.Publish(1)
	broker.Publish(2)
	broker.Publish(3)

	require.Equal(t, 1, <-ch)
	require.EqualValues(t, 2, dropped.Load())
}

func TestBroker_SubscribeAfterClose(t *testing.T) {
	broker := NewBroker[int](0, nil)
	broker.Close()
	broker.Close()

	_, ok := <-broker.Subscribe(context.Background())
	require.False(t, ok)
	broker.Publish(1)
}
