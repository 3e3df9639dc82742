package util

import "sync"

// KeyedMutex hands out one mutex per key. The backing store has no atomic
// increment or unique-name guard, so the two racy aggregates (item key
// allocation, tag-name uniqueness) are serialized per project in-process.
// Mutexes are never evicted; the key space is bounded by live projects.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
