package binding

import (
	"context"
	"errors"

	"github.com/rmolina/gamebind/pkg/entities"
)

var (
	ErrBindingNotFound = errors.New("binding not found")
	ErrHandleTaken     = errors.New("handle already bound to another identity")
)

// Repository defines the interface for binding data operations. The store
// itself enforces handle uniqueness: SaveBinding returns ErrHandleTaken when
// the handle belongs to a different identity.
type Repository interface {
	// GetBinding retrieves a binding by identity
	GetBinding(ctx context.Context, identity string) (*entities.Binding, error)

	// GetBindingByHandle retrieves a binding by game handle
	GetBindingByHandle(ctx context.Context, handle string) (*entities.Binding, error)

	// SaveBinding creates or replaces the binding for binding.Identity
	SaveBinding(ctx context.Context, binding *entities.Binding) error

	// DeleteBinding removes the binding for an identity
	DeleteBinding(ctx context.Context, identity string) error
}
