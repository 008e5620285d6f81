package internal

import (
	"sync"
)

// Registry is the live set of subscribers, keyed by id.
type Registry struct {
	lock        sync.RWMutex
	subscribers map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{
		subscribers: make(map[string]Subscriber),
	}
}

func (r *Registry) Add(sub Subscriber) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.subscribers[sub.ID()] = sub
}

// Remove reports whether sub was still registered. A subscriber replaced
// under the same id by a newer one is left alone.
func (r *Registry) Remove(sub Subscriber) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	current, ok := r.subscribers[sub.ID()]
	if !ok || current != sub {
		return false
	}

	delete(r.subscribers, sub.ID())
	return true
}

func (r *Registry) Get(id string) (Subscriber, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	sub, ok := r.subscribers[id]
	return sub, ok
}

// Snapshot copies the live set so callers can iterate without holding the lock.
func (r *Registry) Snapshot() []Subscriber {
	r.lock.RLock()
	defer r.lock.RUnlock()

	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		subs = append(subs, sub)
	}

	return subs
}

func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.subscribers)
}
