package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/google/uuid"
)

// MemoryRepository implements Repository using in-memory storage
type MemoryRepository struct {
	accounts     map[string]*entities.PointsAccount
	entries      map[string][]*entities.LedgerEntry
	reservations map[string]*entities.Reservation
	redemptions  map[string]*entities.RedemptionTransaction
	mu           sync.RWMutex
}

// NewMemoryRepository creates a new in-memory ledger repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[string]*entities.PointsAccount),
		entries:      make(map[string][]*entities.LedgerEntry),
		reservations: make(map[string]*entities.Reservation),
		redemptions:  make(map[string]*entities.RedemptionTransaction),
	}
}

// GetAccount retrieves a points account by identity
func (r *MemoryRepository) GetAccount(ctx context.Context, identity string) (*entities.PointsAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[identity]
	if !exists {
		return nil, ErrAccountNotFound
	}

	// Return a copy to prevent concurrent modification
	accountCopy := *account
	return &accountCopy, nil
}

// SaveAccount creates or updates an account with an optimistic version check
func (r *MemoryRepository) SaveAccount(ctx context.Context, account *entities.PointsAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.accounts[account.Identity]
	if exists {
		if stored.Version != account.Version {
			return ErrVersionConflict
		}
	} else if account.Version != 0 {
		return ErrVersionConflict
	}

	account.Version++
	account.LastUpdated = time.Now()

	accountCopy := *account
	r.accounts[account.Identity] = &accountCopy

	return nil
}

// AddEntry records a new journal entry
func (r *MemoryRepository) AddEntry(ctx context.Context, entry *entities.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Generate a UUID if not provided
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	// Set timestamp if not provided
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	entryCopy := *entry
	r.entries[entry.Identity] = append(r.entries[entry.Identity], &entryCopy)

	return nil
}

// GetEntries retrieves recent journal entries for an identity
func (r *MemoryRepository) GetEntries(ctx context.Context, identity string, limit int) ([]*entities.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, exists := r.entries[identity]
	if !exists {
		return make([]*entities.LedgerEntry, 0), nil
	}

	// Get the most recent entries up to the limit
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}

	result := make([]*entities.LedgerEntry, 0, limit)
	for i := start; i < len(entries); i++ {
		entryCopy := *entries[i]
		result = append(result, &entryCopy)
	}

	return result, nil
}

// GetReservation retrieves a reservation by token
func (r *MemoryRepository) GetReservation(ctx context.Context, token string) (*entities.Reservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reservation, exists := r.reservations[token]
	if !exists {
		return nil, ErrReservationNotFound
	}

	reservationCopy := *reservation
	return &reservationCopy, nil
}

// SaveReservation creates or updates a reservation
func (r *MemoryRepository) SaveReservation(ctx context.Context, reservation *entities.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reservation.UpdatedAt = time.Now()

	reservationCopy := *reservation
	r.reservations[reservation.Token] = &reservationCopy

	return nil
}

// GetRedemption retrieves a redemption transaction by id
func (r *MemoryRepository) GetRedemption(ctx context.Context, id string) (*entities.RedemptionTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txn, exists := r.redemptions[id]
	if !exists {
		return nil, ErrRedemptionNotFound
	}

	txnCopy := *txn
	return &txnCopy, nil
}

// SaveRedemption creates or updates a redemption transaction
func (r *MemoryRepository) SaveRedemption(ctx context.Context, txn *entities.RedemptionTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn.UpdatedAt = time.Now()

	txnCopy := *txn
	r.redemptions[txn.ID] = &txnCopy

	return nil
}

// ListRedemptionsByStatus retrieves transactions in a given status, oldest first
func (r *MemoryRepository) ListRedemptionsByStatus(ctx context.Context, status entities.RedemptionStatus, limit int) ([]*entities.RedemptionTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*entities.RedemptionTransaction, 0)
	for _, txn := range r.redemptions {
		if txn.Status == status {
			txnCopy := *txn
			matched = append(matched, &txnCopy)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}

// ListRedemptionsByIdentity retrieves recent transactions for an identity
func (r *MemoryRepository) ListRedemptionsByIdentity(ctx context.Context, identity string, limit int) ([]*entities.RedemptionTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*entities.RedemptionTransaction, 0)
	for _, txn := range r.redemptions {
		if txn.Identity == identity {
			txnCopy := *txn
			matched = append(matched, &txnCopy)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}

	return matched, nil
}
