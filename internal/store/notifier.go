package store

import (
	"context"
	"sync"
)

// Change feed topics.
const (
	TopicDocument = "document"
	TopicHistory  = "history"
	TopicSent     = "sent"
	TopicTimeline = "timeline"
)

// Notifier wakes subscribers after a write. Signals carry no data;
// subscribers re-read the store, so coalescing is safe.
type Notifier interface {
	Notify(ctx context.Context, roomID, topic string)
	// Listen returns a wake-up channel and a release func that must be
	// called exactly once.
	Listen(roomID, topic string) (<-chan struct{}, func())
}

type listener struct {
	ch chan struct{}
}

// LocalNotifier fans out signals inside one process.
type LocalNotifier struct {
	mu        sync.Mutex
	listeners map[string]map[*listener]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{listeners: make(map[string]map[*listener]struct{})}
}

func feedKey(roomID, topic string) string { return roomID + ":" + topic }

func (n *LocalNotifier) Notify(_ context.Context, roomID, topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for l := range n.listeners[feedKey(roomID, topic)] {
		select {
		case l.ch <- struct{}{}:
		default:
			// a wake-up is already pending
		}
	}
}

func (n *LocalNotifier) Listen(roomID, topic string) (<-chan struct{}, func()) {
	key := feedKey(roomID, topic)
	l := &listener{ch: make(chan struct{}, 1)}

	n.mu.Lock()
	set, ok := n.listeners[key]
	if !ok {
		set = make(map[*listener]struct{})
		n.listeners[key] = set
	}
	set[l] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return l.ch, func() {
		once.Do(func() {
			n.mu.Lock()
			defer n.mu.Unlock()
			delete(n.listeners[key], l)
			if len(n.listeners[key]) == 0 {
				delete(n.listeners, key)
			}
		})
	}
}

// Listeners returns the number of registered listeners, for tests and
// diagnostics.
func (n *LocalNotifier) Listeners() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, set := range n.listeners {
		total += len(set)
	}
	return total
}
