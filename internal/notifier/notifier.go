// Package notifier provides a topic-aware broadcast mechanism for SSE updates.
package notifier

import (
	"sync"

	"github.com/leapstack-labs/leaptable/pkg/core"
)

// All subscribes to every topic.
const All core.ObjectType = ""

// Notifier broadcasts "table changed" pings to subscribed listeners.
// Listeners receive an empty struct when their table may have changed and
// should re-render it.
type Notifier struct {
	mu        sync.RWMutex
	listeners map[chan struct{}]core.ObjectType
}

// New creates a new Notifier instance.
func New() *Notifier {
	return &Notifier{
		listeners: make(map[chan struct{}]core.ObjectType),
	}
}

// Subscribe returns a channel that receives pings for topic, or for every
// topic when topic is All. The caller must call Unsubscribe when done to
// prevent goroutine leaks.
func (n *Notifier) Subscribe(topic core.ObjectType) chan struct{} {
	ch := make(chan struct{}, 1)
	n.mu.Lock()
	n.listeners[ch] = topic
	n.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener channel and closes it.
func (n *Notifier) Unsubscribe(ch chan struct{}) {
	n.mu.Lock()
	_, ok := n.listeners[ch]
	delete(n.listeners, ch)
	n.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Broadcast pings the listeners of topic and the listeners of All.
// Broadcasting All pings everyone.
// Non-blocking: if a listener's channel is full, the ping is skipped.
func (n *Notifier) Broadcast(topic core.ObjectType) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	for ch, t := range n.listeners {
		if topic != All && t != All && t != topic {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
			// Channel full, the listener has a ping pending already
		}
	}
}

// Len returns the number of listeners.
func (n *Notifier) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.listeners)
}
