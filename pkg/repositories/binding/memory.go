package binding

import (
	"context"
	"sync"

	"github.com/rmolina/gamebind/pkg/entities"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	byIdentity map[string]*entities.Binding
	byHandle   map[string]string // handle -> identity, the uniqueness index
	mu         sync.RWMutex
}

// NewMemoryRepository creates a new in-memory binding repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byIdentity: make(map[string]*entities.Binding),
		byHandle:   make(map[string]string),
	}
}

// GetBinding retrieves a binding by identity
func (r *MemoryRepository) GetBinding(ctx context.Context, identity string) (*entities.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	binding, exists := r.byIdentity[identity]
	if !exists {
		return nil, ErrBindingNotFound
	}

	// Return a copy to prevent concurrent modification
	bindingCopy := *binding
	return &bindingCopy, nil
}

// GetBindingByHandle retrieves a binding by game handle
func (r *MemoryRepository) GetBindingByHandle(ctx context.Context, handle string) (*entities.Binding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, exists := r.byHandle[handle]
	if !exists {
		return nil, ErrBindingNotFound
	}

	bindingCopy := *r.byIdentity[identity]
	return &bindingCopy, nil
}

// SaveBinding creates or replaces the binding for binding.Identity. The
// handle index check and the write happen under one lock, so two concurrent
// saves for the same unclaimed handle cannot both succeed.
func (r *MemoryRepository) SaveBinding(ctx context.Context, binding *entities.Binding) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, taken := r.byHandle[binding.Handle]; taken && owner != binding.Identity {
		return ErrHandleTaken
	}

	// A rebind drops the identity's previous handle from the index
	if old, exists := r.byIdentity[binding.Identity]; exists && old.Handle != binding.Handle {
		delete(r.byHandle, old.Handle)
	}

	bindingCopy := *binding
	r.byIdentity[binding.Identity] = &bindingCopy
	r.byHandle[binding.Handle] = binding.Identity

	return nil
}

// DeleteBinding removes the binding for an identity
func (r *MemoryRepository) DeleteBinding(ctx context.Context, identity string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	binding, exists := r.byIdentity[identity]
	if !exists {
		return ErrBindingNotFound
	}

	delete(r.byHandle, binding.Handle)
	delete(r.byIdentity, identity)

	return nil
}
