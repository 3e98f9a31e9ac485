package binding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rmolina/gamebind/internal/types"
	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/rmolina/gamebind/pkg/gameapi"
	bindingRepo "github.com/rmolina/gamebind/pkg/repositories/binding"
)

// Service handles binding business logic: the bijective mapping between chat
// identities and game handles. The handle-existence check against the game
// API happens before the registry critical section, so the mutex is never
// held across network I/O; the store's own uniqueness index backstops the
// re-check inside it.
type Service struct {
	repo bindingRepo.Repository
	api  gameapi.Client

	// mu guards the uniqueness re-check plus write. Short critical section,
	// never held across a network call.
	mu sync.Mutex
}

// NewService creates a new binding service
func NewService(repo bindingRepo.Repository, api gameapi.Client) *Service {
	return &Service{
		repo: repo,
		api:  api,
	}
}

// Bind associates an identity with a game handle
func (s *Service) Bind(ctx context.Context, identity, handle string) (*entities.Binding, error) {
	if err := validateArgs(identity, handle); err != nil {
		return nil, err
	}

	// Fast pre-checks before spending a network call
	existing, err := s.lookupBinding(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.NewEngineError(types.ErrAlreadyBound,
			fmt.Sprintf("identity is already bound to handle %s", existing.Handle))
	}

	if err := s.checkHandleFree(ctx, identity, handle); err != nil {
		return nil, err
	}

	// Confirm the handle exists in the game before claiming it
	info, err := s.lookupAccount(ctx, handle)
	if err != nil {
		return nil, err
	}

	binding := &entities.Binding{
		Identity:           identity,
		Handle:             handle,
		ExternalAccountRef: info.AccountRef,
		BoundAt:            time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the registry lock: another caller may have raced us
	// while we were on the network
	existing, err = s.lookupBinding(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, types.NewEngineError(types.ErrAlreadyBound,
			fmt.Sprintf("identity is already bound to handle %s", existing.Handle))
	}

	if err := s.saveBinding(ctx, binding); err != nil {
		return nil, err
	}

	log.Printf("[BINDING] Bound identity %s to handle %s", identity, handle)
	return binding, nil
}

// Rebind atomically replaces an existing binding with a new handle, keeping
// the prior handle and bind time as an audit note on the new record
func (s *Service) Rebind(ctx context.Context, identity, newHandle string) (*entities.Binding, error) {
	if err := validateArgs(identity, newHandle); err != nil {
		return nil, err
	}

	existing, err := s.lookupBinding(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, types.NewEngineError(types.ErrNotBound, "identity has no binding")
	}

	// The caller's own current handle is excluded from the uniqueness check
	if err := s.checkHandleFree(ctx, identity, newHandle); err != nil {
		return nil, err
	}

	info, err := s.lookupAccount(ctx, newHandle)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-read under the lock so the audit note reflects the binding we
	// actually replace
	existing, err = s.lookupBinding(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, types.NewEngineError(types.ErrNotBound, "identity has no binding")
	}

	binding := &entities.Binding{
		Identity:           identity,
		Handle:             newHandle,
		ExternalAccountRef: info.AccountRef,
		BoundAt:            time.Now(),
		PreviousHandle:     existing.Handle,
		PreviousBoundAt:    existing.BoundAt,
	}

	if err := s.saveBinding(ctx, binding); err != nil {
		return nil, err
	}

	log.Printf("[BINDING] Rebound identity %s from handle %s to %s", identity, existing.Handle, newHandle)
	return binding, nil
}

// Unbind removes an identity's binding. Unbinding a never-bound identity is
// an error, not a no-op, so callers can tell the difference.
func (s *Service) Unbind(ctx context.Context, identity string) error {
	if identity == "" {
		return types.NewEngineError(types.ErrValidation, "identity must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.repo.DeleteBinding(ctx, identity)
	if err != nil {
		if errors.Is(err, bindingRepo.ErrBindingNotFound) {
			return types.NewEngineError(types.ErrNotBound, "identity has no binding")
		}
		return types.WrapError(types.ErrStorageError, "failed to delete binding", err)
	}

	log.Printf("[BINDING] Unbound identity %s", identity)
	return nil
}

// Lookup returns the binding for an identity, or nil if absent
func (s *Service) Lookup(ctx context.Context, identity string) (*entities.Binding, error) {
	return s.lookupBinding(ctx, identity)
}

// ReverseLookup returns the binding holding a handle, or nil if absent
func (s *Service) ReverseLookup(ctx context.Context, handle string) (*entities.Binding, error) {
	binding, err := s.repo.GetBindingByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, bindingRepo.ErrBindingNotFound) {
			return nil, nil
		}
		return nil, types.WrapError(types.ErrStorageError, "failed to load binding", err)
	}
	return binding, nil
}

// lookupBinding loads a binding, mapping not-found to nil
func (s *Service) lookupBinding(ctx context.Context, identity string) (*entities.Binding, error) {
	binding, err := s.repo.GetBinding(ctx, identity)
	if err != nil {
		if errors.Is(err, bindingRepo.ErrBindingNotFound) {
			return nil, nil
		}
		return nil, types.WrapError(types.ErrStorageError, "failed to load binding", err)
	}
	return binding, nil
}

// checkHandleFree fails with HandleTaken when the handle belongs to a
// different identity
func (s *Service) checkHandleFree(ctx context.Context, identity, handle string) error {
	holder, err := s.ReverseLookup(ctx, handle)
	if err != nil {
		return err
	}
	if holder != nil && holder.Identity != identity {
		return types.NewEngineError(types.ErrHandleTaken, "handle is already bound to another identity")
	}
	return nil
}

// lookupAccount confirms the handle exists in the game, mapping API errors
// to the engine taxonomy
func (s *Service) lookupAccount(ctx context.Context, handle string) (*gameapi.AccountInfo, error) {
	info, err := s.api.LookupAccount(ctx, handle)
	if err != nil {
		if errors.Is(err, gameapi.ErrAccountNotFound) {
			return nil, types.NewEngineError(types.ErrHandleNotFound,
				fmt.Sprintf("game account %s does not exist", handle))
		}
		return nil, types.WrapError(types.ErrExternalUnavailable, "game api lookup failed", err)
	}
	return info, nil
}

// saveBinding writes a binding, mapping the store's uniqueness violation to
// HandleTaken
func (s *Service) saveBinding(ctx context.Context, binding *entities.Binding) error {
	if err := s.repo.SaveBinding(ctx, binding); err != nil {
		if errors.Is(err, bindingRepo.ErrHandleTaken) {
			return types.NewEngineError(types.ErrHandleTaken, "handle is already bound to another identity")
		}
		return types.WrapError(types.ErrStorageError, "failed to save binding", err)
	}
	return nil
}

// validateArgs rejects empty identity or handle
func validateArgs(identity, handle string) error {
	if identity == "" {
		return types.NewEngineError(types.ErrValidation, "identity must not be empty")
	}
	if handle == "" {
		return types.NewEngineError(types.ErrValidation, "handle must not be empty")
	}
	return nil
}
