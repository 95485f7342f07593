package migration

import (
	"context"
	"sync"
)

// keyedLock serializes work per key while letting distinct keys proceed in parallel.
type keyedLock struct {
	mutex   sync.Mutex
	entries map[string]*keyedLockEntry
}

type keyedLockEntry struct {
	slot    chan struct{}
	holders int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{entries: make(map[string]*keyedLockEntry)}
}

// Lock blocks until key is free or the context ends. The returned function releases the key.
func (lock *keyedLock) Lock(executionContext context.Context, key string) (func(), error) {
	lock.mutex.Lock()
	entry, exists := lock.entries[key]
	if !exists {
		entry = &keyedLockEntry{slot: make(chan struct{}, 1)}
		lock.entries[key] = entry
	}
	entry.holders++
	lock.mutex.Unlock()

	select {
	case entry.slot <- struct{}{}:
		return func() {
			<-entry.slot
			lock.release(key, entry)
		}, nil
	case <-executionContext.Done():
		lock.release(key, entry)
		return nil, executionContext.Err()
	}
}

func (lock *keyedLock) release(key string, entry *keyedLockEntry) {
	lock.mutex.Lock()
	defer lock.mutex.Unlock()
	entry.holders--
	if entry.holders == 0 {
		delete(lock.entries, key)
	}
}
