package repository

import (
	"context"
	"sync"

	"pickup-portal/client/internal/session/domain"
)

// MemoryRepository keeps the session in process memory only. Used by tests and STORAGE_DRIVER=memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	items   map[string]string
	cookies map[string]domain.Cookie
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items:   make(map[string]string),
		cookies: make(map[string]domain.Cookie),
	}
}

// Get returns the value for key and whether it exists.
func (r *MemoryRepository) Get(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok, nil
}

// Set stores value under key.
func (r *MemoryRepository) Set(ctx context.Context, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = value
	return nil
}

// Delete removes the given keys.
func (r *MemoryRepository) Delete(ctx context.Context, keys ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		delete(r.items, k)
	}
	return nil
}

// GetCookie returns a copy of the named cookie, or nil.
func (r *MemoryRepository) GetCookie(ctx context.Context, name string) (*domain.Cookie, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cookies[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// SetCookie stores c, replacing any cookie with the same name.
func (r *MemoryRepository) SetCookie(ctx context.Context, c domain.Cookie) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cookies[c.Name] = c
	return nil
}

// DeleteCookie removes the named cookie.
func (r *MemoryRepository) DeleteCookie(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cookies, name)
	return nil
}

// Len returns the number of stored keys plus cookies.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items) + len(r.cookies)
}
