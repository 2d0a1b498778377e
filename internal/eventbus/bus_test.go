package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New[string]()
	ch := bus.Subscribe()
	bus.Publish("hello")
	assert.Equal(t, "hello", <-ch)
	bus.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestPublishCountsDrops(t *testing.T) {
	bus := New[int]()
	ch := bus.SubscribeBuffered(1)
	bus.Publish(1)
	bus.Publish(2)
	assert.Equal(t, 1, <-ch)
	assert.Equal(t, uint64(1), bus.Dropped())
}

func TestSubscribers(t *testing.T) {
	bus := New[int]()
	ch := bus.Subscribe()
	bus.Subscribe()
	assert.Equal(t, 2, bus.Subscribers())
	bus.Unsubscribe(ch)
	assert.Equal(t, 1, bus.Subscribers())
	bus.Close()
	assert.Equal(t, 0, bus.Subscribers())
}

func TestClose(t *testing.T) {
	bus := New[int]()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	bus.Close()
	_, ok := <-ch1
	assert.False(t, ok)
	_, ok = <-ch2
	assert.False(t, ok)

	late := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	assert.NotPanics(t, func() { bus.Unsubscribe(ch1) })
	assert.NotPanics(t, func() { bus.Publish(3) })
}

func TestConsume(t *testing.T) {
	bus := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})
	go func() {
		Consume(ctx, bus, func(_ context.Context, v int) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		})
		close(done)
	}()

	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.subs) == 1
	}, time.Second, time.Millisecond)
	bus.Publish(1)
	bus.Publish(2)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	bus.Close()
	<-done
	assert.Equal(t, []int{1, 2}, got)
}
