// Package notify provides the process-wide change notification bus used by
// the settings store, plus an optional NATS bridge that shares notifications
// between processes.
package notify

import (
	"sync"
	"sync/atomic"
)

// Message is a single notification. Origin is empty for messages published in
// this process and carries the sending bridge id for replayed remote messages.
type Message struct {
	Topic  string
	Key    string
	Value  string
	Origin string
}

// Handler receives messages for a topic.
type Handler func(msg Message)

type subscription struct {
	id      uint64
	handler Handler
	active  atomic.Bool
}

// Bus is a topic keyed publish/subscribe channel. Handlers run synchronously on
// the publishing goroutine, in the order they subscribed.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]*subscription
}

// NewBus returns an empty bus. Create one per process and share it.
func NewBus() *Bus {
	return &Bus{topics: make(map[string][]*subscription)}
}

// Publish delivers key and value to every handler subscribed to topic.
func (b *Bus) Publish(topic, key, value string) {
	b.Deliver(Message{Topic: topic, Key: key, Value: value})
}

// Deliver dispatches msg as is. Bridges use it to replay remote messages with
// their Origin set.
func (b *Bus) Deliver(msg Message) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.topics[msg.Topic]...)
	b.mu.RUnlock()

	for _, s := range subs {
		// a handler may dispose a later subscription mid-dispatch
		if !s.active.Load() {
			continue
		}
		s.handler(msg)
	}
}

// Subscribe registers handler for topic and returns its disposer. Calling the
// disposer more than once is harmless.
func (b *Bus) Subscribe(topic string, handler Handler) (dispose func()) {
	b.mu.Lock()
	b.nextID++
	s := &subscription{id: b.nextID, handler: handler}
	s.active.Store(true)
	b.topics[topic] = append(b.topics[topic], s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.active.Store(false)
			b.remove(topic, s.id)
		})
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight snapshots keep their view
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.topics, topic)
			} else {
				b.topics[topic] = next
			}
			return
		}
	}
}
