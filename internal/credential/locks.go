package credential

import "sync"

// LockTable hands out one mutex per account ID. It is owned by a Manager.
type LockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[int64]*sync.Mutex)}
}

// For returns the account's mutex, creating it on first use.
func (t *LockTable) For(id int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

// Forget drops the account's mutex once nothing will use it again.
func (t *LockTable) Forget(id int64) {
	t.mu.Lock()
	delete(t.locks, id)
	t.mu.Unlock()
}
