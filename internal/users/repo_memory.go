package users

import (
	"context"
	"sync"
)

// MemoryRepo implements Directory and Permissions for tests and STORE=memory.
type MemoryRepo struct {
	mu     sync.RWMutex
	users  map[string]Summary
	blocks map[[2]string]struct{}

	// Open makes Lookup resolve any non-empty id, for local development
	// where there is no user table to seed.
	Open bool
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:  map[string]Summary{},
		blocks: map[[2]string]struct{}{},
	}
}

func (r *MemoryRepo) Put(u Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

// Block records that blocker does not accept calls from blocked.
func (r *MemoryRepo) Block(blocker, blocked string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[[2]string{blocker, blocked}] = struct{}{}
}

func (r *MemoryRepo) Lookup(ctx context.Context, id string) (Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	if r.Open && id != "" {
		return Summary{ID: id, DisplayName: id}, nil
	}
	return Summary{}, ErrNotFound
}

func (r *MemoryRepo) CanCommunicate(ctx context.Context, a, b string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.blocks[[2]string{a, b}]; ok {
		return false, nil
	}
	if _, ok := r.blocks[[2]string{b, a}]; ok {
		return false, nil
	}
	return true, nil
}
