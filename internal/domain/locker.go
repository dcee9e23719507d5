package domain

import "sync"

// UserLocker serializes work per user id. Locks for different users never
// contend, and a key's mutex is dropped once nobody holds or waits for it.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewUserLocker constructs an empty UserLocker.
func NewUserLocker() *UserLocker {
	return &UserLocker{locks: make(map[string]*userLock)}
}

// Lock blocks until the caller holds userID's lock and returns the release
// function.
func (l *UserLocker) Lock(userID string) (unlock func()) {
	l.mu.Lock()
	entry, ok := l.locks[userID]
	if !ok {
		entry = &userLock{}
		l.locks[userID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()

			l.mu.Lock()
			entry.refs--
			if entry.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of users currently holding or awaiting a lock.
func (l *UserLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
