// Package events provides a small typed publish/subscribe primitive.
// Each event kind gets its own Topic, so subscribers never downcast
// payloads from an untyped listener map.
package events

import "sync"

// Topic fans a value out to every subscriber. Subscribers are invoked
// synchronously in subscription order on the publisher's goroutine.
type Topic[T any] struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(T)
	order  []int
}

func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn and returns a token for Unsubscribe.
func (t *Topic[T]) Subscribe(fn func(T)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.order = append(t.order, id)
	return id
}

func (t *Topic[T]) Unsubscribe(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.subs, id)
	for i, v := range t.order {
		if v == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Publish delivers v to all current subscribers.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	fns := make([]func(T), 0, len(t.order))
	for _, id := range t.order {
		if fn, ok := t.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	t.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// SubscriberCount reports how many subscribers are registered.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}
