package service

import "sync"

// flowLocks serializes work per flow id. Entries are reference counted and
// removed once no caller holds or waits on them.
type flowLocks struct {
	mu    sync.Mutex
	locks map[string]*flowLock
}

type flowLock struct {
	mu   sync.Mutex
	refs int
}

func newFlowLocks() *flowLocks {
	return &flowLocks{locks: make(map[string]*flowLock)}
}

// lock blocks until id is free and returns the matching unlock
func (l *flowLocks) lock(id string) func() {
	l.mu.Lock()
	fl, ok := l.locks[id]
	if !ok {
		fl = &flowLock{}
		l.locks[id] = fl
	}
	fl.refs++
	l.mu.Unlock()

	fl.mu.Lock()
	return func() {
		fl.mu.Unlock()
		l.mu.Lock()
		fl.refs--
		if fl.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *flowLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
