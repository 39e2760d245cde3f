// ABOUTME: Per-call mutual exclusion with reference-counted lock entries
// ABOUTME: Entries exist only while some goroutine holds or waits for them

package conversation

import "sync"

type callLock struct {
	mu   sync.Mutex
	refs int
}

// callLocks serializes work per call ID.
type callLocks struct {
	mu    sync.Mutex
	locks map[string]*callLock
}

func newCallLocks() *callLocks {
	return &callLocks{locks: make(map[string]*callLock)}
}

// Lock blocks until the caller holds callID and returns the release func.
func (c *callLocks) Lock(callID string) (unlock func()) {
	c.mu.Lock()
	l, ok := c.locks[callID]
	if !ok {
		l = &callLock{}
		c.locks[callID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, callID)
		}
		c.mu.Unlock()
	}
}

func (c *callLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
