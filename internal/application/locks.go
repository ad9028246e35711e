package application

import "sync"

// keyedMutex hands out one mutex per key so mutations against distinct
// aggregates never serialize against each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	return lock
}

func (k *keyedMutex) lock(key string) func() {
	lock := k.get(key)
	lock.Lock()
	return lock.Unlock
}

// Locks serializes read-modify-write sections per group id and per
// owner key. Operations touching both always take the group lock first.
type Locks struct {
	groups keyedMutex
	owners keyedMutex
}

func (a *Locks) lockGroup(groupID string) func() {
	return a.groups.lock(groupID)
}

func (a *Locks) lockOwner(ownerKey string) func() {
	return a.owners.lock(ownerKey)
}

// lockGroupThenOwner acquires both locks in the fixed global order. Either
// key may be empty, in which case that lock is skipped.
func (a *Locks) lockGroupThenOwner(groupID, ownerKey string) func() {
	var unlocks []func()
	if groupID != "" {
		unlocks = append(unlocks, a.groups.lock(groupID))
	}
	if ownerKey != "" {
		unlocks = append(unlocks, a.owners.lock(ownerKey))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
