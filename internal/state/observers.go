// Package state provides observable state containers. Each container owns its
// data, mutates it behind a single lock and hands out immutable, versioned
// snapshots to readers and subscribers.
package state

import "sync"

// Observers fans versioned snapshots out to subscribers. Delivery is
// synchronous and in version order; a snapshot older than one already
// delivered is dropped. Callbacks must not mutate the owning container
// synchronously.
type Observers[S any] struct {
	mu     sync.Mutex
	subs   []observer[S]
	nextID uint64

	deliverMu   sync.Mutex
	lastVersion uint64
}

type observer[S any] struct {
	id uint64
	fn func(S)
}

// Subscribe registers fn and returns a func that unregisters it.
func (o *Observers[S]) Subscribe(fn func(S)) (unsubscribe func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, observer[S]{id: id, fn: fn})
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, s := range o.subs {
			if s.id == id {
				o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// Notify delivers snap to every subscriber unless a newer version has
// already been delivered. It reports whether the snapshot was delivered.
func (o *Observers[S]) Notify(version uint64, snap S) bool {
	o.deliverMu.Lock()
	defer o.deliverMu.Unlock()

	if version <= o.lastVersion {
		return false
	}
	o.lastVersion = version

	o.mu.Lock()
	subs := make([]func(S), len(o.subs))
	for i, s := range o.subs {
		subs[i] = s.fn
	}
	o.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return true
}

// Len returns the number of subscribers.
func (o *Observers[S]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}
