package redemption

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rmolina/gamebind/internal/logging"
	"github.com/rmolina/gamebind/internal/types"
	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/rmolina/gamebind/pkg/gameapi"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
	bindingSvc "github.com/rmolina/gamebind/pkg/services/binding"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
)

// Receipt describes a completed redemption
type Receipt struct {
	TransactionID     string
	PointsSpent       int64
	CurrencyAmount    int64
	Balance           int64 // local points balance after the redemption
	GameBalance       int64 // balance reported by the game API
	GameLifetimeTotal int64 // lifetime total reported by the game API
}

// Service orchestrates redemption: reserve points locally, call the external
// recharge endpoint once, then commit or compensate based on what the API
// said. The one rule that matters most: an outcome that cannot be classified
// is never compensated automatically, because refunding a recharge that
// actually landed lets the user keep both the points and the currency.
type Service struct {
	bindings      *bindingSvc.Service
	ledger        *ledgerSvc.Service
	repo          ledgerRepo.Repository
	api           gameapi.Client
	exchangeRatio int64
	logger        *logging.Logger
}

// NewService creates a new redemption service
func NewService(bindings *bindingSvc.Service, ledger *ledgerSvc.Service, repo ledgerRepo.Repository, api gameapi.Client, exchangeRatio int64, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default
	}
	return &Service{
		bindings:      bindings,
		ledger:        ledger,
		repo:          repo,
		api:           api,
		exchangeRatio: exchangeRatio,
		logger:        logger,
	}
}

// Redeem converts points into game currency for the identity's bound handle.
//
// The reservation is the only resource consumed before network I/O, and it is
// local, cheap and instantly reversible. The recharge is issued exactly once
// per call; there is no internal retry, because the remote side's idempotency
// under retried tokens is unconfirmed.
func (s *Service) Redeem(ctx context.Context, identity string, points int64, memo string) (*Receipt, error) {
	if points <= 0 {
		return nil, types.NewEngineError(types.ErrValidation, "amount must be positive")
	}

	// 1. The identity must be bound to a handle
	binding, err := s.bindings.Lookup(ctx, identity)
	if err != nil {
		return nil, err
	}
	if binding == nil {
		return nil, types.NewEngineError(types.ErrNotBound, "identity has no binding")
	}

	// 2. Reserve the points. Fails on insufficient balance without any
	// external call.
	reservation, err := s.ledger.Reserve(ctx, identity, points)
	if err != nil {
		return nil, err
	}

	// 3-4. Record the transaction before going on the network; its id is the
	// idempotency token.
	currencyAmount := points * s.exchangeRatio
	txn := &entities.RedemptionTransaction{
		ID:               uuid.New().String(),
		Identity:         identity,
		Handle:           binding.Handle,
		PointsReserved:   points,
		CurrencyAmount:   currencyAmount,
		ReservationToken: reservation.Token,
		Status:           entities.RedemptionReserved,
		Memo:             memo,
		CreatedAt:        time.Now(),
	}

	if err := s.repo.SaveRedemption(ctx, txn); err != nil {
		// Nothing external has happened yet, so releasing the reservation is
		// safe
		s.compensate(ctx, txn)
		return nil, types.WrapError(types.ErrStorageError, "failed to record redemption", err)
	}

	// 5. One recharge call, bounded timeout, no retry.
	result, rechargeErr := s.api.Recharge(ctx, binding.Handle, currencyAmount, txn.ID)

	// 6. Classify into exactly one bucket.
	if rechargeErr == nil {
		return s.settleSuccess(ctx, txn, result)
	}

	var apiErr *gameapi.APIError
	switch {
	case errors.As(rechargeErr, &apiErr):
		// Definite failure: the API explicitly rejected the request
		return nil, s.settleFailure(ctx, txn, apiErr.Reason)

	case errors.Is(rechargeErr, gameapi.ErrUnavailable):
		// The request never reached the server; no remote state changed, so
		// compensating is safe and the caller may simply retry
		s.settleNeverSent(ctx, txn, rechargeErr)
		return nil, types.WrapError(types.ErrExternalUnavailable, "game api unreachable", rechargeErr)

	default:
		// Ambiguous: the recharge may or may not have been applied. Park the
		// transaction for reconciliation. Compensating here is the one
		// mistake this component must never make.
		return nil, s.settleAmbiguous(ctx, txn, rechargeErr)
	}
}

// settleSuccess commits the reservation and finalizes the transaction
func (s *Service) settleSuccess(ctx context.Context, txn *entities.RedemptionTransaction, result *gameapi.RechargeResult) (*Receipt, error) {
	if err := s.ledger.CommitReservation(ctx, txn.ReservationToken); err != nil {
		s.logger.Error("Failed to commit reservation %s for redemption %s: %v", txn.ReservationToken, txn.ID, err)
	}

	txn.Status = entities.RedemptionCommitted
	txn.ExternalResponse = result.Raw
	if err := s.repo.SaveRedemption(ctx, txn); err != nil {
		s.logger.Error("Failed to mark redemption %s committed: %v", txn.ID, err)
	}

	balance, err := s.ledger.GetBalance(ctx, txn.Identity)
	if err != nil {
		balance = -1
	}

	s.logger.Info("Redemption %s committed: %d points -> %d currency for %s", txn.ID, txn.PointsReserved, txn.CurrencyAmount, txn.Handle)

	return &Receipt{
		TransactionID:     txn.ID,
		PointsSpent:       txn.PointsReserved,
		CurrencyAmount:    txn.CurrencyAmount,
		Balance:           balance,
		GameBalance:       result.NewBalance,
		GameLifetimeTotal: result.NewLifetimeTotal,
	}, nil
}

// settleFailure compensates the reservation and surfaces the rejection
func (s *Service) settleFailure(ctx context.Context, txn *entities.RedemptionTransaction, reason string) error {
	txn.ExternalResponse = reason
	s.compensate(ctx, txn)

	s.logger.Warn("Redemption %s rejected by game api: %s", txn.ID, reason)

	return types.NewEngineError(types.ErrRedemptionFailed,
		fmt.Sprintf("game api rejected the recharge: %s", reason))
}

// settleNeverSent compensates the reservation after a pre-send failure
func (s *Service) settleNeverSent(ctx context.Context, txn *entities.RedemptionTransaction, cause error) {
	txn.ExternalResponse = fmt.Sprintf("request never sent: %v", cause)
	s.compensate(ctx, txn)
	s.logger.Warn("Redemption %s never reached the game api: %v", txn.ID, cause)
}

// settleAmbiguous parks the transaction for reconciliation, leaving the
// reservation held
func (s *Service) settleAmbiguous(ctx context.Context, txn *entities.RedemptionTransaction, cause error) error {
	txn.Status = entities.RedemptionAmbiguous
	txn.ExternalResponse = fmt.Sprintf("outcome unknown: %v", cause)
	if err := s.repo.SaveRedemption(ctx, txn); err != nil {
		s.logger.Error("Failed to mark redemption %s ambiguous: %v", txn.ID, err)
	}

	s.logger.Error("Redemption %s outcome unknown, awaiting reconciliation: %v", txn.ID, cause)

	return types.WrapError(types.ErrAmbiguousOutcome,
		fmt.Sprintf("recharge outcome unknown; transaction %s requires reconciliation", txn.ID), cause)
}

// compensate releases the reservation and marks the transaction compensated
func (s *Service) compensate(ctx context.Context, txn *entities.RedemptionTransaction) {
	if err := s.ledger.CompensateReservation(ctx, txn.ReservationToken); err != nil {
		s.logger.Error("Failed to compensate reservation %s for redemption %s: %v", txn.ReservationToken, txn.ID, err)
	}

	txn.Status = entities.RedemptionCompensated
	if err := s.repo.SaveRedemption(ctx, txn); err != nil {
		s.logger.Error("Failed to mark redemption %s compensated: %v", txn.ID, err)
	}
}

// ListAmbiguous returns transactions awaiting reconciliation, oldest first
func (s *Service) ListAmbiguous(ctx context.Context, limit int) ([]*entities.RedemptionTransaction, error) {
	txns, err := s.repo.ListRedemptionsByStatus(ctx, entities.RedemptionAmbiguous, limit)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to list ambiguous redemptions", err)
	}
	return txns, nil
}

// History returns recent redemption transactions for an identity
func (s *Service) History(ctx context.Context, identity string, limit int) ([]*entities.RedemptionTransaction, error) {
	txns, err := s.repo.ListRedemptionsByIdentity(ctx, identity, limit)
	if err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to list redemptions", err)
	}
	return txns, nil
}

// Resolve settles an ambiguous transaction once its true outcome is known,
// e.g. after support checked the game's records for the idempotency token.
// applied=true commits the reservation (the recharge landed); applied=false
// compensates it (the recharge never happened). The reservation state
// machine makes repeated resolution a no-op.
func (s *Service) Resolve(ctx context.Context, txnID string, applied bool) (*entities.RedemptionTransaction, error) {
	txn, err := s.repo.GetRedemption(ctx, txnID)
	if err != nil {
		if errors.Is(err, ledgerRepo.ErrRedemptionNotFound) {
			return nil, types.NewEngineError(types.ErrValidation, "unknown redemption transaction")
		}
		return nil, types.WrapError(types.ErrStorageError, "failed to load redemption", err)
	}

	if txn.Status != entities.RedemptionAmbiguous {
		if txn.Terminal() {
			// Already resolved; repeating is harmless
			return txn, nil
		}
		return nil, types.NewEngineError(types.ErrValidation,
			fmt.Sprintf("transaction %s is %s, not ambiguous", txn.ID, txn.Status))
	}

	if applied {
		if err := s.ledger.CommitReservation(ctx, txn.ReservationToken); err != nil {
			return nil, err
		}
		txn.Status = entities.RedemptionCommitted
	} else {
		if err := s.ledger.CompensateReservation(ctx, txn.ReservationToken); err != nil {
			return nil, err
		}
		txn.Status = entities.RedemptionCompensated
	}

	if err := s.repo.SaveRedemption(ctx, txn); err != nil {
		return nil, types.WrapError(types.ErrStorageError, "failed to save redemption", err)
	}

	s.logger.Info("Redemption %s resolved as %s", txn.ID, txn.Status)
	return txn, nil
}
