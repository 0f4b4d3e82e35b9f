// Package keylock serializes work per key.
//
// Holders of different keys never block each other. Entries are created on
// first use and released when the last holder or waiter leaves, so memory is
// bounded by the number of keys in flight, not by keys ever seen.
package keylock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Locker grants exclusive access per key.
type Locker interface {
	// Lock blocks until key is free or ctx is done. The returned func
	// releases the lock and must be called exactly once.
	Lock(ctx context.Context, key string) (func(), error)

	// TryLock acquires key only if it is free right now.
	TryLock(key string) (func(), bool)

	// Active is the number of keys currently held or awaited.
	Active() int64
}

// entry is one key's mutex. slot holds a token while the key is held.
type entry struct {
	slot chan struct{}
	refs int
}

type keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
	maxKeys int
	active  atomic.Int64
	pool    sync.Pool
}

// New creates a Locker.
func New(opts ...Option) Locker {
	l := &keyed{
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pool = sync.Pool{
		New: func() interface{} {
			return &entry{slot: make(chan struct{}, 1)}
		},
	}
	return l
}

func (l *keyed) acquireEntry(key string) (*entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		if l.maxKeys > 0 && len(l.entries) >= l.maxKeys {
			return nil, fmt.Errorf("%w: %d keys in flight", ErrTooManyKeys, len(l.entries))
		}
		e = l.pool.Get().(*entry)
		l.entries[key] = e
		l.active.Add(1)
	}
	e.refs++
	return e, nil
}

func (l *keyed) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
		l.active.Add(-1)
		l.pool.Put(e)
	}
}

func (l *keyed) unlocker(key string, e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.slot
			l.releaseEntry(key, e)
		})
	}
}

// Lock waits for key.
func (l *keyed) Lock(ctx context.Context, key string) (func(), error) {
	e, err := l.acquireEntry(key)
	if err != nil {
		return nil, err
	}
	select {
	case e.slot <- struct{}{}:
		return l.unlocker(key, e), nil
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, fmt.Errorf("keylock: waiting for %q: %w", key, ctx.Err())
	}
}

// TryLock takes key without waiting.
func (l *keyed) TryLock(key string) (func(), bool) {
	e, err := l.acquireEntry(key)
	if err != nil {
		return nil, false
	}
	select {
	case e.slot <- struct{}{}:
		return l.unlocker(key, e), true
	default:
		l.releaseEntry(key, e)
		return nil, false
	}
}

// Active returns the number of live keys.
func (l *keyed) Active() int64 {
	return l.active.Load()
}
