package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAccountNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.GetAccount(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestSaveAccountVersioning(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	account := &entities.PointsAccount{Identity: "u1", Balance: 10, TotalEarned: 10}
	require.NoError(t, repo.SaveAccount(ctx, account))
	assert.Equal(t, int64(1), account.Version)

	// Stale writer loses
	stale := &entities.PointsAccount{Identity: "u1", Balance: 99, Version: 0}
	assert.ErrorIs(t, repo.SaveAccount(ctx, stale), ErrVersionConflict)

	// Current writer wins
	account.Balance = 20
	account.TotalEarned = 20
	require.NoError(t, repo.SaveAccount(ctx, account))
	assert.Equal(t, int64(2), account.Version)

	stored, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), stored.Balance)
}

func TestSaveNewAccountRequiresVersionZero(t *testing.T) {
	repo := NewMemoryRepository()

	account := &entities.PointsAccount{Identity: "u1", Version: 3}
	assert.ErrorIs(t, repo.SaveAccount(context.Background(), account), ErrVersionConflict)
}

func TestGetAccountReturnsCopy(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	account := &entities.PointsAccount{Identity: "u1", Balance: 10, TotalEarned: 10}
	require.NoError(t, repo.SaveAccount(ctx, account))

	loaded, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	loaded.Balance = 999

	reloaded, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), reloaded.Balance, "mutating a loaded account must not touch the store")
}

func TestEntriesLimit(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for n := 0; n < 5; n++ {
		require.NoError(t, repo.AddEntry(ctx, &entities.LedgerEntry{
			Identity:     "u1",
			Amount:       int64(n + 1),
			Type:         entities.EntryTypeCredit,
			BalanceAfter: int64(n + 1),
		}))
	}

	entries, err := repo.GetEntries(ctx, "u1", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// The most recent entries survive the cut
	assert.Equal(t, int64(3), entries[0].Amount)
	assert.Equal(t, int64(5), entries[2].Amount)
}

func TestAddEntryFillsDefaults(t *testing.T) {
	repo := NewMemoryRepository()

	entry := &entities.LedgerEntry{Identity: "u1", Amount: 1, Type: entities.EntryTypeCredit}
	require.NoError(t, repo.AddEntry(context.Background(), entry))

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestReservationRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetReservation(ctx, "missing")
	assert.ErrorIs(t, err, ErrReservationNotFound)

	reservation := &entities.Reservation{
		Token:     "tok-1",
		Identity:  "u1",
		Amount:    30,
		State:     entities.ReservationHeld,
		CreatedAt: time.Now(),
	}
	require.NoError(t, repo.SaveReservation(ctx, reservation))

	loaded, err := repo.GetReservation(ctx, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, entities.ReservationHeld, loaded.State)
	assert.Equal(t, int64(30), loaded.Amount)
}

func TestListRedemptionsByStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	base := time.Now()
	for n, status := range []entities.RedemptionStatus{
		entities.RedemptionAmbiguous,
		entities.RedemptionCommitted,
		entities.RedemptionAmbiguous,
	} {
		require.NoError(t, repo.SaveRedemption(ctx, &entities.RedemptionTransaction{
			ID:        string(rune('a' + n)),
			Identity:  "u1",
			Status:    status,
			CreatedAt: base.Add(time.Duration(n) * time.Second),
		}))
	}

	ambiguous, err := repo.ListRedemptionsByStatus(ctx, entities.RedemptionAmbiguous, 10)
	require.NoError(t, err)
	require.Len(t, ambiguous, 2)
	// Oldest first, for reconciliation
	assert.Equal(t, "a", ambiguous[0].ID)
	assert.Equal(t, "c", ambiguous[1].ID)
}

func TestListRedemptionsByIdentity(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	base := time.Now()
	for n := 0; n < 3; n++ {
		require.NoError(t, repo.SaveRedemption(ctx, &entities.RedemptionTransaction{
			ID:        string(rune('a' + n)),
			Identity:  "u1",
			Status:    entities.RedemptionCommitted,
			CreatedAt: base.Add(time.Duration(n) * time.Second),
		}))
	}
	require.NoError(t, repo.SaveRedemption(ctx, &entities.RedemptionTransaction{
		ID:       "other",
		Identity: "u2",
		Status:   entities.RedemptionCommitted,
	}))

	txns, err := repo.ListRedemptionsByIdentity(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	// Newest first, for history views
	assert.Equal(t, "c", txns[0].ID)
	assert.Equal(t, "b", txns[1].ID)
}
