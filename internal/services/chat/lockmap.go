package chat

import "sync"

// lockMap hands out one mutex per message id so concurrent
// read-modify-persist cycles on the same record cannot interleave.
// Entries are refcounted and dropped when the last holder unlocks.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	refCnt int
	mu     sync.Mutex
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*lockEntry)}
}

// Lock blocks until the per-key mutex is held and returns the unlock func.
func (l *lockMap) Lock(key string) func() {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refCnt++
	l.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		l.mu.Lock()
		e.refCnt--
		if e.refCnt == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
