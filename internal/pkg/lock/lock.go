// Package lock provides per-address locking for escrow operations.
// Every entry point that mutates a player's custodied balance or an open
// session runs under the locks of the addresses it touches, so concurrent
// HTTP calls serialize the same way a sequential ledger would.
package lock

import (
	"sort"
	"sync"
)

// addrMutex wraps a mutex with reference counting for cleanup.
type addrMutex struct {
	mu       sync.Mutex
	refCount int
}

// AddressLock provides per-address locking to prevent race conditions
// during balance and session mutations.
type AddressLock struct {
	locks sync.Map // map[string]*addrMutex
	pool  sync.Pool
}

// NewAddressLock creates a new AddressLock instance.
func NewAddressLock() *AddressLock {
	return &AddressLock{
		pool: sync.Pool{
			New: func() any {
				return &addrMutex{}
			},
		},
	}
}

// getLock retrieves or creates a mutex for the given address.
func (al *AddressLock) getLock(addr string) *addrMutex {
	if v, ok := al.locks.Load(addr); ok {
		return v.(*addrMutex)
	}

	newLock := al.pool.Get().(*addrMutex)
	newLock.refCount = 0

	actual, loaded := al.locks.LoadOrStore(addr, newLock)
	if loaded {
		// Another goroutine created the lock first, return ours to pool
		al.pool.Put(newLock)
	}
	return actual.(*addrMutex)
}

// Lock acquires the lock for an address.
func (al *AddressLock) Lock(addr string) {
	lock := al.getLock(addr)
	lock.mu.Lock()
	lock.refCount++
}

// Unlock releases the lock for an address.
func (al *AddressLock) Unlock(addr string) {
	if v, ok := al.locks.Load(addr); ok {
		lock := v.(*addrMutex)
		lock.refCount--
		lock.mu.Unlock()
	}
}

// WithLock executes a function while holding the address lock.
func (al *AddressLock) WithLock(addr string, fn func() error) error {
	al.Lock(addr)
	defer al.Unlock(addr)
	return fn()
}

// WithLocks executes a function while holding the locks of all given
// addresses. Locks are acquired in sorted order so two calls touching the
// same pair cannot deadlock; duplicates are acquired once.
func (al *AddressLock) WithLocks(addrs []string, fn func() error) error {
	unique := make([]string, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		unique = append(unique, a)
	}
	sort.Strings(unique)

	for _, a := range unique {
		al.Lock(a)
	}
	defer func() {
		for i := len(unique) - 1; i >= 0; i-- {
			al.Unlock(unique[i])
		}
	}()

	return fn()
}
