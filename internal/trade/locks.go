package trade

import "sync"

// userLocks serializes trades per user without a global lock.
type userLocks struct {
	locks    map[int]*sync.Mutex
	mapMutex sync.RWMutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int]*sync.Mutex)}
}

func (ul *userLocks) lock(userID int) {
	ul.mapMutex.Lock()
	if ul.locks[userID] == nil {
		ul.locks[userID] = &sync.Mutex{}
	}
	userMutex := ul.locks[userID]
	ul.mapMutex.Unlock()

	userMutex.Lock()
}

func (ul *userLocks) unlock(userID int) {
	ul.mapMutex.RLock()
	userMutex := ul.locks[userID]
	ul.mapMutex.RUnlock()

	if userMutex != nil {
		userMutex.Unlock()
	}
}
