package httpserver

import (
	"sync"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// objectLocks serializes work per object id. Entries are dropped once no
// request holds or waits for them.
type objectLocks struct {
	mu    sync.Mutex
	locks map[interfaces.ObjectID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newObjectLocks() *objectLocks {
	return &objectLocks{locks: make(map[interfaces.ObjectID]*refMutex)}
}

// Lock blocks until id is free and returns its unlock function.
func (l *objectLocks) Lock(id interfaces.ObjectID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *objectLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
