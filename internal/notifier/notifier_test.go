package notifier

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func received(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(100 * time.Millisecond):
		return false
	}
}

func TestNotifier_Subscribe_Unsubscribe(t *testing.T) {
	n := New()

	ch := n.Subscribe("halo")
	require.NotNil(t, ch)
	assert.Equal(t, 1, n.Len())

	n.Unsubscribe(ch)
	assert.Equal(t, 0, n.Len())

	// A second unsubscribe must not close twice
	n.Unsubscribe(ch)
}

func TestNotifier_BroadcastTopic(t *testing.T) {
	n := New()

	halo := n.Subscribe("halo")
	group := n.Subscribe("group")
	all := n.Subscribe(All)
	defer n.Unsubscribe(halo)
	defer n.Unsubscribe(group)
	defer n.Unsubscribe(all)

	n.Broadcast("halo")

	assert.True(t, received(halo), "topic listener")
	assert.True(t, received(all), "wildcard listener")
	assert.False(t, received(group), "other topic")
}

func TestNotifier_BroadcastAll(t *testing.T) {
	n := New()

	halo := n.Subscribe("halo")
	group := n.Subscribe("group")
	defer n.Unsubscribe(halo)
	defer n.Unsubscribe(group)

	n.Broadcast(All)

	assert.True(t, received(halo))
	assert.True(t, received(group))
}

func TestNotifier_Broadcast_NonBlocking(t *testing.T) {
	n := New()

	ch := n.Subscribe("halo")
	defer n.Unsubscribe(ch)

	// Fill the channel buffer
	ch <- struct{}{}

	done := make(chan bool)
	go func() {
		n.Broadcast("halo")
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast blocked on full channel")
	}
}

func TestNotifier_Concurrent(t *testing.T) {
	n := New()

	var wg sync.WaitGroup
	const numGoroutines = 10

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := n.Subscribe("halo")
			n.Broadcast("halo")
			n.Unsubscribe(ch)
		}()
	}

	wg.Wait()
	assert.Equal(t, 0, n.Len())
}
