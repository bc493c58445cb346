package events

import (
	"sync"
)

// Publisher is the sending side of the bus.
type Publisher interface {
	Publish(topic string, event Event)
}

// EventBus is a channel-based pub-sub event bus.
// An empty topic list subscribes to every topic.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	closed bool
}

type subscription struct {
	topics map[string]bool // nil means all topics
	ch     chan Event
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel receiving events published to the given
// topics, or to every topic when none are given.
// bufSize determines the channel buffer size (defaults to 256 if <= 0).
func (b *EventBus) Subscribe(bufSize int, topics ...string) <-chan Event {
	if bufSize <= 0 {
		bufSize = 256
	}

	sub := subscription{ch: make(chan Event, bufSize)}
	if len(topics) > 0 {
		sub.topics = make(map[string]bool, len(topics))
		for _, topic := range topics {
			sub.topics[topic] = true
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub.ch
	}

	b.subs = append(b.subs, sub)
	return sub.ch
}

// Publish sends an event to every matching subscriber.
// Non-blocking: if a subscriber's channel is full, the event is dropped for that subscriber.
func (b *EventBus) Publish(topic string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[topic] {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Close closes the event bus and all subscriber channels.
// Safe to call multiple times.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subs {
		close(sub.ch)
	}
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(string, Event) {}
