package ledger

import (
	"context"
	"errors"

	"github.com/rmolina/gamebind/pkg/entities"
)

var (
	ErrAccountNotFound     = errors.New("points account not found")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrRedemptionNotFound  = errors.New("redemption transaction not found")
	ErrVersionConflict     = errors.New("account version conflict")
)

// Repository defines the interface for ledger data operations.
//
// SaveAccount is a compare-and-swap: the write only succeeds when the stored
// version still matches account.Version, and the version is bumped on
// success (both in the store and on the passed struct). A lost race returns
// ErrVersionConflict. New accounts are saved with Version 0.
type Repository interface {
	// GetAccount retrieves a points account by identity
	GetAccount(ctx context.Context, identity string) (*entities.PointsAccount, error)

	// SaveAccount creates or updates an account with an optimistic version check
	SaveAccount(ctx context.Context, account *entities.PointsAccount) error

	// AddEntry records a new journal entry
	AddEntry(ctx context.Context, entry *entities.LedgerEntry) error

	// GetEntries retrieves recent journal entries for an identity
	GetEntries(ctx context.Context, identity string, limit int) ([]*entities.LedgerEntry, error)

	// GetReservation retrieves a reservation by token
	GetReservation(ctx context.Context, token string) (*entities.Reservation, error)

	// SaveReservation creates or updates a reservation
	SaveReservation(ctx context.Context, reservation *entities.Reservation) error

	// GetRedemption retrieves a redemption transaction by id
	GetRedemption(ctx context.Context, id string) (*entities.RedemptionTransaction, error)

	// SaveRedemption creates or updates a redemption transaction
	SaveRedemption(ctx context.Context, txn *entities.RedemptionTransaction) error

	// ListRedemptionsByStatus retrieves transactions in a given status, oldest first
	ListRedemptionsByStatus(ctx context.Context, status entities.RedemptionStatus, limit int) ([]*entities.RedemptionTransaction, error)

	// ListRedemptionsByIdentity retrieves recent transactions for an identity
	ListRedemptionsByIdentity(ctx context.Context, identity string, limit int) ([]*entities.RedemptionTransaction, error)
}
