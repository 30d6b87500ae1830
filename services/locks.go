package services

import "sync"

// EventLocks serializes every session mutation for one event, no matter
// which service performs it. The queue sweeps commit whole-session
// snapshots, so a trust write racing a reorder would be silently lost
// unless both paths contend on the same lock.
type EventLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEventLocks() *EventLocks {
	return &EventLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *EventLocks) ForEvent(eventID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[eventID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[eventID] = lock
	}
	return lock
}
