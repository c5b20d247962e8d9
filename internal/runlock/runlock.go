// Package runlock serializes evaluation runs per certificate set, either
// within one process or across replicas through Redis.
package runlock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context expired.
var ErrNotAcquired = errors.New("runlock: lock not acquired")

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker acquires named locks.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx is done.
	Acquire(ctx context.Context, key string) (Lock, error)
}

// LocalLocker is an in-process Locker backed by one semaphore per key.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker creates an empty LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lock, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return &localLock{ch: ch}, nil
	default:
	}
	select {
	case ch <- struct{}{}:
		return &localLock{ch: ch}, nil
	case <-ctx.Done():
		return nil, ErrNotAcquired
	}
}

type localLock struct {
	once sync.Once
	ch   chan struct{}
}

func (l *localLock) Release(context.Context) error {
	l.once.Do(func() { <-l.ch })
	return nil
}
