package internal

import (
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := newFakeSubscriber()
	b := newFakeSubscriber()

	r.Add(a)
	r.Add(b)

	if r.Len() != 2 {
		t.Fatalf("len = %v, want 2", r.Len())
	}

	if sub, ok := r.Get(a.ID()); !ok || sub != a {
		t.Error("get did not return the registered subscriber")
	}

	if !r.Remove(a) {
		t.Error("remove reported a missing subscriber")
	}

	if r.Remove(a) {
		t.Error("second remove reported success")
	}

	if snapshot := r.Snapshot(); len(snapshot) != 1 || snapshot[0] != b {
		t.Errorf("unexpected snapshot %v", snapshot)
	}
}

func TestRegistryRemoveKeepsReplacement(t *testing.T) {
	r := NewRegistry()
	old := newFakeSubscriber()
	replacement := &fakeSubscriber{id: old.id}

	r.Add(old)
	r.Add(replacement)

	if r.Remove(old) {
		t.Error("removed a subscriber that was already replaced")
	}

	if _, ok := r.Get(old.id); !ok {
		t.Error("replacement was removed")
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	wg := sync.WaitGroup{}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := newFakeSubscriber()
			r.Add(sub)
			_ = r.Snapshot()
			r.Remove(sub)
		}()
	}

	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("len = %v, want 0", r.Len())
	}
}
