package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rmolina/gamebind/internal/types"
	"github.com/rmolina/gamebind/pkg/entities"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
)

// Service handles points ledger business logic. All mutations for one
// identity are serialized through a per-identity mutex, and every mutation
// re-reads the account under that lock, so the balance check and the write
// form one indivisible step. The invariant maintained at all times:
// Balance == TotalEarned - TotalSpent and Balance >= 0.
type Service struct {
	repo  ledgerRepo.Repository
	locks *identityLocks
}

// NewService creates a new ledger service
func NewService(repo ledgerRepo.Repository) *Service {
	return &Service{
		repo:  repo,
		locks: newIdentityLocks(),
	}
}

// GetBalance returns the current balance for an identity. Accounts are
// created lazily, so an unknown identity simply has balance 0.
func (s *Service) GetBalance(ctx context.Context, identity string) (int64, error) {
	account, err := s.repo.GetAccount(ctx, identity)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, types.WrapError(types.ErrStorageError, "failed to load account", err)
	}
	return account.Balance, nil
}

// GetAccount returns the full points account for an identity, or nil if the
// identity has never earned or spent
func (s *Service) GetAccount(ctx context.Context, identity string) (*entities.PointsAccount, error) {
	account, err := s.repo.GetAccount(ctx, identity)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrAccountNotFound) {
			return nil, nil
		}
		return nil, types.WrapError(types.ErrStorageError, "failed to load account", err)
	}
	return account, nil
}

// GetEntries retrieves recent journal entries for an identity
func (s *Service) GetEntries(ctx context.Context, identity string, limit int) ([]*entities.LedgerEntry, error) {
	entries, err := s.repo.GetEntries(ctx, identity, limit)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to load ledger entries", err)
	}
	return entries, nil
}

// Credit adds points to an identity's balance
func (s *Service) Credit(ctx context.Context, identity string, amount int64, reason string) (*entities.PointsAccount, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	account, err := s.getOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	account.Balance += amount
	account.TotalEarned += amount

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to save account", err)
	}

	s.journal(ctx, identity, amount, entities.EntryTypeCredit, "", reason, account.Balance)

	return account, nil
}

// Debit removes points from an identity's balance. The balance check and the
// mutation happen under the identity lock, so concurrent debits cannot
// overdraw the account.
func (s *Service) Debit(ctx context.Context, identity string, amount int64, reason string) (*entities.PointsAccount, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	account, err := s.getOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	if account.Balance < amount {
		return nil, types.NewEngineError(types.ErrInsufficientBalance,
			fmt.Sprintf("balance %d is less than %d", account.Balance, amount))
	}

	account.Balance -= amount
	account.TotalSpent += amount

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to save account", err)
	}

	s.journal(ctx, identity, -amount, entities.EntryTypeDebit, "", reason, account.Balance)

	return account, nil
}

// Transfer moves points between two identities as a single unit. Both
// identity locks are held for the duration; if the credit side cannot be
// saved, the already-applied debit is rolled back before returning.
func (s *Service) Transfer(ctx context.Context, from, to string, amount int64, reason string) (*entities.PointsAccount, *entities.PointsAccount, error) {
	if err := validateAmount(amount); err != nil {
		return nil, nil, err
	}
	if from == to {
		return nil, nil, types.NewEngineError(types.ErrSameIdentity, "cannot transfer points to yourself")
	}

	unlock := s.locks.lockPair(from, to)
	defer unlock()

	fromAccount, err := s.getOrCreateAccount(ctx, from)
	if err != nil {
		return nil, nil, err
	}

	if fromAccount.Balance < amount {
		return nil, nil, types.NewEngineError(types.ErrInsufficientBalance,
			fmt.Sprintf("balance %d is less than %d", fromAccount.Balance, amount))
	}

	toAccount, err := s.getOrCreateAccount(ctx, to)
	if err != nil {
		return nil, nil, err
	}

	fromAccount.Balance -= amount
	fromAccount.TotalSpent += amount
	if err := s.repo.SaveAccount(ctx, fromAccount); err != nil {
		return nil, nil, types.WrapError(types.ErrStorageError, "failed to save sender account", err)
	}

	toAccount.Balance += amount
	toAccount.TotalEarned += amount
	if err := s.repo.SaveAccount(ctx, toAccount); err != nil {
		// Roll the debit back so the transfer is all-or-nothing
		fromAccount.Balance += amount
		fromAccount.TotalSpent -= amount
		if rbErr := s.repo.SaveAccount(ctx, fromAccount); rbErr != nil {
			log.Printf("[LEDGER] Failed to roll back transfer debit for %s: %v", from, rbErr)
		}
		return nil, nil, types.WrapError(types.ErrStorageError, "failed to save recipient account", err)
	}

	transferID := uuid.New().String()
	s.journal(ctx, from, -amount, entities.EntryTypeTransferOut, transferID, reason, fromAccount.Balance)
	s.journal(ctx, to, amount, entities.EntryTypeTransferIn, transferID, reason, toAccount.Balance)

	return fromAccount, toAccount, nil
}

// Reserve takes a provisional debit for a pending external side effect. The
// debit is applied in full immediately (balance and TotalSpent both move),
// which keeps the balance invariant intact while the reservation is held;
// CompensateReservation reverses exactly that.
func (s *Service) Reserve(ctx context.Context, identity string, amount int64) (*entities.Reservation, error) {
	if err := validateAmount(amount); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	account, err := s.getOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	if account.Balance < amount {
		return nil, types.NewEngineError(types.ErrInsufficientBalance,
			fmt.Sprintf("balance %d is less than %d", account.Balance, amount))
	}

	account.Balance -= amount
	account.TotalSpent += amount

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to save account", err)
	}

	reservation := &entities.Reservation{
		Token:     uuid.New().String(),
		Identity:  identity,
		Amount:    amount,
		State:     entities.ReservationHeld,
		CreatedAt: time.Now(),
	}

	if err := s.repo.SaveReservation(ctx, reservation); err != nil {
		// Put the points back rather than leaving a debit with no reservation
		// record behind it
		account.Balance += amount
		account.TotalSpent -= amount
		if rbErr := s.repo.SaveAccount(ctx, account); rbErr != nil {
			log.Printf("[LEDGER] Failed to roll back reservation debit for %s: %v", identity, rbErr)
		}
		return nil, types.WrapError(types.ErrStorageError, "failed to save reservation", err)
	}

	s.journal(ctx, identity, -amount, entities.EntryTypeReserve, reservation.Token, "points reserved", account.Balance)

	return reservation, nil
}

// CommitReservation finalizes a held reservation. The debit was already
// applied at Reserve time, so committing only advances the state machine.
// Committing twice is a no-op on the second call.
func (s *Service) CommitReservation(ctx context.Context, token string) error {
	reservation, err := s.repo.GetReservation(ctx, token)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrReservationNotFound) {
			return types.NewEngineError(types.ErrValidation, "unknown reservation token")
		}
		return types.WrapError(types.ErrStorageError, "failed to load reservation", err)
	}

	unlock := s.locks.lock(reservation.Identity)
	defer unlock()

	// Re-read under the lock; the state may have advanced
	reservation, err = s.repo.GetReservation(ctx, token)
	if err != nil {
		return types.WrapError(types.ErrStorageError, "failed to load reservation", err)
	}

	switch reservation.State {
	case entities.ReservationCommitted:
		return nil // already committed, idempotent
	case entities.ReservationReleased:
		return types.NewEngineError(types.ErrValidation, "reservation was already compensated")
	}

	reservation.State = entities.ReservationCommitted
	if err := s.repo.SaveReservation(ctx, reservation); err != nil {
		return types.WrapError(types.ErrStorageError, "failed to save reservation", err)
	}

	return nil
}

// CompensateReservation reverses a held reservation, refunding the
// provisional debit. Compensating twice is a no-op on the second call; the
// refund can never be applied twice.
func (s *Service) CompensateReservation(ctx context.Context, token string) error {
	reservation, err := s.repo.GetReservation(ctx, token)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrReservationNotFound) {
			return types.NewEngineError(types.ErrValidation, "unknown reservation token")
		}
		return types.WrapError(types.ErrStorageError, "failed to load reservation", err)
	}

	unlock := s.locks.lock(reservation.Identity)
	defer unlock()

	// Re-read under the lock; the state may have advanced
	reservation, err = s.repo.GetReservation(ctx, token)
	if err != nil {
		return types.WrapError(types.ErrStorageError, "failed to load reservation", err)
	}

	switch reservation.State {
	case entities.ReservationReleased:
		return nil // already compensated, idempotent
	case entities.ReservationCommitted:
		return types.NewEngineError(types.ErrValidation, "reservation was already committed")
	}

	account, err := s.getOrCreateAccount(ctx, reservation.Identity)
	if err != nil {
		return err
	}

	account.Balance += reservation.Amount
	account.TotalSpent -= reservation.Amount

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return types.WrapError(types.ErrStorageError, "failed to save account", err)
	}

	reservation.State = entities.ReservationReleased
	if err := s.repo.SaveReservation(ctx, reservation); err != nil {
		return types.WrapError(types.ErrStorageError, "failed to save reservation", err)
	}

	s.journal(ctx, reservation.Identity, reservation.Amount, entities.EntryTypeReserveRelease,
		reservation.Token, "reservation released", account.Balance)

	return nil
}

// RecordCheckin applies a check-in outcome in a single account save: the
// streak fields and the reward credit land together, so a crash cannot leave
// one without the other. The date is re-checked under the lock, which makes
// concurrent check-ins for the same day fail cleanly.
func (s *Service) RecordCheckin(ctx context.Context, identity, today string, streak int, reward int64) (*entities.PointsAccount, error) {
	if err := validateAmount(reward); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(identity)
	defer unlock()

	account, err := s.getOrCreateAccount(ctx, identity)
	if err != nil {
		return nil, err
	}

	if account.LastCheckinDate == today {
		return nil, types.NewEngineError(types.ErrAlreadyCheckedIn, "already checked in today")
	}

	account.LastCheckinDate = today
	account.StreakLength = streak
	account.Balance += reward
	account.TotalEarned += reward

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to save account", err)
	}

	s.journal(ctx, identity, reward, entities.EntryTypeCheckin, "",
		fmt.Sprintf("daily check-in (streak %d)", streak), account.Balance)

	return account, nil
}

// getOrCreateAccount loads an account, lazily creating it with a zero
// balance on first use. Callers must hold the identity lock.
func (s *Service) getOrCreateAccount(ctx context.Context, identity string) (*entities.PointsAccount, error) {
	account, err := s.repo.GetAccount(ctx, identity)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ledgerRepo.ErrAccountNotFound) {
		return nil, types.WrapError(types.ErrStorageError, "failed to load account", err)
	}

	account = &entities.PointsAccount{
		Identity: identity,
	}

	if err := s.repo.SaveAccount(ctx, account); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to create account", err)
	}

	return account, nil
}

// journal records an audit entry. Journal failures are logged, not
// propagated: the account mutation already happened and the journal is
// advisory.
func (s *Service) journal(ctx context.Context, identity string, amount int64, entryType entities.EntryType, referenceID, reason string, balanceAfter int64) {
	entry := &entities.LedgerEntry{
		ID:           uuid.New().String(),
		Identity:     identity,
		Amount:       amount,
		Type:         entryType,
		ReferenceID:  referenceID,
		Reason:       reason,
		Timestamp:    time.Now(),
		BalanceAfter: balanceAfter,
	}

	if err := s.repo.AddEntry(ctx, entry); err != nil {
		log.Printf("[LEDGER] Error recording journal entry for %s: %v", identity, err)
	}
}

// validateAmount rejects non-positive amounts
func validateAmount(amount int64) error {
	if amount <= 0 {
		return types.NewEngineError(types.ErrValidation, "amount must be positive")
	}
	return nil
}
