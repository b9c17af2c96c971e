package app

import (
	"context"
	"sync"
)

// SessionLocker serializes work on one session. Lock is exclusive and guards
// lifecycle mutations; RLock admits concurrent answer submissions and
// excludes Lock holders. A locker shared by several instances makes the
// guarantee hold across all of them.
type SessionLocker interface {
	Lock(ctx context.Context, sessionID string) (unlock func(), err error)
	RLock(ctx context.Context, sessionID string) (unlock func(), err error)
}

// LocalLocker is the process-local SessionLocker.
type LocalLocker struct {
	keys *keyedMutex
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: newKeyedMutex()}
}

func (l *LocalLocker) Lock(_ context.Context, sessionID string) (func(), error) {
	return l.keys.Lock(sessionID), nil
}

func (l *LocalLocker) RLock(_ context.Context, sessionID string) (func(), error) {
	return l.keys.RLock(sessionID), nil
}

// keyedMutex hands out one RWMutex per key. Entries are reference counted and
// dropped once no goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.RWMutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the key exclusively and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	entry := k.acquire(key)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.release(key, entry)
	}
}

// RLock acquires the key shared and returns its release function.
func (k *keyedMutex) RLock(key string) func() {
	entry := k.acquire(key)
	entry.mu.RLock()
	return func() {
		entry.mu.RUnlock()
		k.release(key, entry)
	}
}

func (k *keyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	return entry
}

func (k *keyedMutex) release(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
