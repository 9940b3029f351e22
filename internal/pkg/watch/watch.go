// Package watch delivers state snapshots to registered callbacks in the
// order their owner produced them.
//
// The owner publishes while holding the lock that orders its state changes
// and flushes after releasing it. Callbacks run without any lock held, one
// snapshot at a time: if a callback is still running when another goroutine
// flushes, that goroutine returns immediately and the running delivery loop
// picks up the new snapshot after the current one.
package watch

import "sync"

// List is a set of callbacks with an ordered delivery queue. The zero value
// is ready to use.
type List[T any] struct {
	mu       sync.Mutex
	fns      map[int]func(T)
	nextID   int
	queue    []T
	draining bool
}

// Add registers fn. The returned function removes it and is safe to call
// more than once.
func (l *List[T]) Add(fn func(T)) (cancel func()) {
	l.mu.Lock()
	if l.fns == nil {
		l.fns = make(map[int]func(T))
	}
	id := l.nextID
	l.nextID++
	l.fns[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

// Len returns the number of registered callbacks.
func (l *List[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fns)
}

// Publish queues v for delivery. Call it under the owner's lock so the
// queue order matches the order of the state changes.
func (l *List[T]) Publish(v T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.fns) == 0 {
		return
	}
	l.queue = append(l.queue, v)
}

// Flush delivers queued snapshots. Call it after releasing the owner's lock.
func (l *List[T]) Flush() {
	l.mu.Lock()
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	l.mu.Unlock()

	finished := false
	defer func() {
		// A panicking callback must not leave the list stuck in draining
		if !finished {
			l.mu.Lock()
			l.draining = false
			l.mu.Unlock()
		}
	}()

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			finished = true
			return
		}
		v := l.queue[0]
		var zero T
		l.queue[0] = zero
		l.queue = l.queue[1:]
		fns := make([]func(T), 0, len(l.fns))
		for _, fn := range l.fns {
			fns = append(fns, fn)
		}
		l.mu.Unlock()

		for _, fn := range fns {
			fn(v)
		}
	}
}
