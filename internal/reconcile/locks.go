package reconcile

import "sync"

// orderLocks serializes reconciliation per order id. Two push events for
// the same order handled concurrently could race a stale-version
// overwrite; events for different orders proceed independently.
//
// Entries are reference-counted and removed on release so the map does
// not grow with order history.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*orderLock)}
}

// lock acquires the lock for key and returns its release func. Keys are
// platform order ids where one exists, POS ids otherwise.
func (l *orderLocks) lock(key string) func() {
	l.mu.Lock()
	ol, ok := l.locks[key]
	if !ok {
		ol = &orderLock{}
		l.locks[key] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.mu.Lock()

	return func() {
		ol.mu.Unlock()

		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
