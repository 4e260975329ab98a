// Package lock serializes critical sections by string key.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrNotAcquired is returned when a key stays held past the wait bound.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding an exclusive lock on key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

func PractitionerKey(id string) string { return "practitioner:" + id }
func PatientKey(id string) string      { return "patient:" + id }

// NameKey guards uniqueness of a registered name within a kind.
func NameKey(kind, name string) string { return "name:" + kind + ":" + name }

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Local is an in-process Locker. Entries are created on demand and dropped
// once nobody holds or waits on them.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
	wait    time.Duration
}

// NewLocal returns a Local that waits at most wait for a key; zero waits
// only as long as ctx allows.
func NewLocal(wait time.Duration) *Local {
	return &Local{entries: make(map[string]*entry), wait: wait}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.ref(key)
	defer l.unref(key)

	acquireCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}
	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrNotAcquired
	}
	defer e.sem.Release(1)

	return fn(ctx)
}

func (l *Local) ref(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *Local) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[key]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Held reports how many keys currently have holders or waiters.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Many acquires keys in the given order and runs fn with all of them held.
func Many(ctx context.Context, l Locker, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return l.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return Many(ctx, l, keys[1:], fn)
	})
}
