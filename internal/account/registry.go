package account

import (
	"sort"
	"sync"
)

// Registry indexes the live accounts of the process by ID.
type Registry struct {
	mu       sync.RWMutex
	accounts map[int64]*Account
}

func NewRegistry() *Registry {
	return &Registry{accounts: make(map[int64]*Account)}
}

// Put adds or replaces an account.
func (r *Registry) Put(a *Account) {
	r.mu.Lock()
	r.accounts[a.ID] = a
	r.mu.Unlock()
}

func (r *Registry) Get(id int64) (*Account, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[id]
	return a, ok
}

func (r *Registry) Remove(id int64) {
	r.mu.Lock()
	delete(r.accounts, id)
	r.mu.Unlock()
}

// List returns all accounts ordered by ID.
func (r *Registry) List() []*Account {
	r.mu.RLock()
	out := make([]*Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
