// Package keylock provides mutual exclusion per string key, plus an
// exclusive mode that excludes every key at once.
package keylock

import "sync"

// Registry hands out one mutex per key. Entries are created on demand and
// dropped once no goroutine holds or waits for them.
type Registry struct {
	all sync.RWMutex // read-held by every keyed lock, write-held by LockAll

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Lock acquires the lock for key and returns the function that releases it.
// Locks on different keys do not block each other.
func (r *Registry) Lock(key string) (unlock func()) {
	r.all.RLock()

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{}
		r.entries[key] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			r.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(r.entries, key)
			}
			r.mu.Unlock()

			r.all.RUnlock()
		})
	}
}

// LockAll waits for every keyed lock to be released and blocks new ones
// until the returned function is called.
func (r *Registry) LockAll() (unlock func()) {
	r.all.Lock()
	var once sync.Once
	return func() { once.Do(r.all.Unlock) }
}

// Len reports how many keys currently have an entry.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
