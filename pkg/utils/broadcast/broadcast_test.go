package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for message")
	}
	var zero T
	return zero
}

func TestBroadcastToAllSubscribers(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	go func() { source <- 42 }()
	assert.Equal(t, 42, receive(t, s1))
	assert.Equal(t, 42, receive(t, s2))
}

func TestBroadcastCancelSubscription(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.CancelSubscription(s1)

	_, ok := <-s1
	assert.False(t, ok)

	go func() { source <- 1 }()
	assert.Equal(t, 1, receive(t, s2))
}

func TestBroadcastSkipsSlowListener(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source, WithSendTimeout[int](10*time.Millisecond))
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	go func() {
		source <- 1
		source <- 2
	}()
	assert.Equal(t, 1, receive(t, fast))
	assert.Equal(t, 2, receive(t, fast))
	_ = slow
}

func TestBroadcastClose(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	s := b.Subscribe()
	b.Close()

	select {
	case _, ok := <-s:
		assert.False(t, ok)
	case <-time.After(time.Second):
		assert.Fail(t, "subscription not closed")
	}

	// subscribing after close yields a closed channel
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
}

func TestBroadcastSourceClosed(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", source)
	s := b.Subscribe()
	close(source)

	select {
	case _, ok := <-s:
		assert.False(t, ok)
	case <-time.After(time.Second):
		assert.Fail(t, "subscription not closed")
	}
}
