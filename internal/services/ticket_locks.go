package services

import "sync"

// keyedLocks hands out one mutex per key. Ledger rows of a ticket are single-writer.
type keyedLocks struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// ticketLocks is shared by every service that writes ticket rows, keyed by ticket id
var ticketLocks = newKeyedLocks()

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// getOrCreateLock returns the lock for key
func (k *keyedLocks) getOrCreateLock(key string) *sync.Mutex {
	k.mu.RLock()
	lock, exists := k.locks[key]
	k.mu.RUnlock()
	if exists {
		return lock
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if lock, exists := k.locks[key]; exists {
		return lock
	}
	lock = &sync.Mutex{}
	k.locks[key] = lock
	return lock
}

// lock locks key and returns the unlock func
func (k *keyedLocks) lock(key string) func() {
	l := k.getOrCreateLock(key)
	l.Lock()
	return l.Unlock
}
