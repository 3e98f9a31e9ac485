package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/rmolina/gamebind/internal/types"
	"github.com/rmolina/gamebind/pkg/entities"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, *ledgerRepo.MemoryRepository) {
	repo := ledgerRepo.NewMemoryRepository()
	return NewService(repo), repo
}

// assertInvariant checks balance == totalEarned - totalSpent and balance >= 0
func assertInvariant(t *testing.T, account *entities.PointsAccount) {
	t.Helper()
	assert.Equal(t, account.TotalEarned-account.TotalSpent, account.Balance,
		"balance must equal totalEarned - totalSpent")
	assert.GreaterOrEqual(t, account.Balance, int64(0), "balance must never go negative")
}

func TestCreditCreatesAccountLazily(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	account, err := svc.Credit(ctx, "u1", 50, "welcome bonus")
	require.NoError(t, err)

	assert.Equal(t, int64(50), account.Balance)
	assert.Equal(t, int64(50), account.TotalEarned)
	assert.Equal(t, int64(0), account.TotalSpent)
	assertInvariant(t, account)
}

func TestCreditRejectsNonPositiveAmount(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 0, "nothing")
	assert.True(t, types.IsEngineError(err, types.ErrValidation))

	_, err = svc.Credit(ctx, "u1", -5, "negative")
	assert.True(t, types.IsEngineError(err, types.ErrValidation))
}

func TestDebitChecksBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 30, "seed")
	require.NoError(t, err)

	account, err := svc.Debit(ctx, "u1", 20, "purchase")
	require.NoError(t, err)
	assert.Equal(t, int64(10), account.Balance)
	assert.Equal(t, int64(20), account.TotalSpent)
	assertInvariant(t, account)

	_, err = svc.Debit(ctx, "u1", 20, "too much")
	assert.True(t, types.IsEngineError(err, types.ErrInsufficientBalance))

	// Balance unchanged after the failed debit
	balance, err := svc.GetBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)
}

func TestGetBalanceUnknownIdentityIsZero(t *testing.T) {
	svc, _ := newTestService()

	balance, err := svc.GetBalance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

// Concurrency property: N concurrent debits of 1 against a balance of k < N
// yield exactly k successes, N-k insufficient-balance errors, and a final
// balance of 0.
func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const balance = 40
	const attempts = 100

	_, err := svc.Credit(ctx, "u1", balance, "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for n := 0; n < attempts; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, "u1", 1, "race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes, failures := 0, 0
	for err := range results {
		if err == nil {
			successes++
		} else {
			assert.True(t, types.IsEngineError(err, types.ErrInsufficientBalance))
			failures++
		}
	}

	assert.Equal(t, balance, successes)
	assert.Equal(t, attempts-balance, failures)

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), account.Balance)
	assertInvariant(t, account)
}

func TestConcurrentCreditsAllLand(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	const workers = 50

	var wg sync.WaitGroup
	for n := 0; n < workers; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Credit(ctx, "u1", 2, "fanout")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(2*workers), account.Balance)
	assertInvariant(t, account)
}

func TestTransfer(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "alice", 100, "seed")
	require.NoError(t, err)

	from, to, err := svc.Transfer(ctx, "alice", "bob", 40, "gift")
	require.NoError(t, err)

	assert.Equal(t, int64(60), from.Balance)
	assert.Equal(t, int64(40), to.Balance)
	assertInvariant(t, from)
	assertInvariant(t, to)
}

func TestTransferToSelfFails(t *testing.T) {
	svc, _ := newTestService()

	_, _, err := svc.Transfer(context.Background(), "alice", "alice", 10, "loop")
	assert.True(t, types.IsEngineError(err, types.ErrSameIdentity))
}

func TestTransferInsufficientBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "alice", 5, "seed")
	require.NoError(t, err)

	_, _, err = svc.Transfer(ctx, "alice", "bob", 10, "too much")
	assert.True(t, types.IsEngineError(err, types.ErrInsufficientBalance))

	// Neither side moved
	aliceBalance, _ := svc.GetBalance(ctx, "alice")
	bobBalance, _ := svc.GetBalance(ctx, "bob")
	assert.Equal(t, int64(5), aliceBalance)
	assert.Equal(t, int64(0), bobBalance)
}

// Opposing concurrent transfers exercise the sorted lock ordering; the test
// deadlocks if lockPair ever acquires in caller order.
func TestConcurrentOpposingTransfers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "alice", 1000, "seed")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, "bob", 1000, "seed")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for n := 0; n < 50; n++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = svc.Transfer(ctx, "alice", "bob", 1, "ping")
		}()
		go func() {
			defer wg.Done()
			_, _, _ = svc.Transfer(ctx, "bob", "alice", 1, "pong")
		}()
	}
	wg.Wait()

	alice, err := svc.GetAccount(ctx, "alice")
	require.NoError(t, err)
	bob, err := svc.GetAccount(ctx, "bob")
	require.NoError(t, err)

	assertInvariant(t, alice)
	assertInvariant(t, bob)
	assert.Equal(t, int64(2000), alice.Balance+bob.Balance, "transfers conserve total points")
}

func TestReserveDebitsImmediately(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	reservation, err := svc.Reserve(ctx, "u1", 30)
	require.NoError(t, err)
	assert.Equal(t, entities.ReservationHeld, reservation.State)
	assert.Equal(t, int64(30), reservation.Amount)

	// The debit is visible while the reservation is held and the invariant
	// still holds
	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), account.Balance)
	assert.Equal(t, int64(30), account.TotalSpent)
	assertInvariant(t, account)
}

func TestReserveInsufficientBalance(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 10, "seed")
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, "u1", 11)
	assert.True(t, types.IsEngineError(err, types.ErrInsufficientBalance))
}

func TestCommitReservationIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	reservation, err := svc.Reserve(ctx, "u1", 30)
	require.NoError(t, err)

	require.NoError(t, svc.CommitReservation(ctx, reservation.Token))
	require.NoError(t, svc.CommitReservation(ctx, reservation.Token), "second commit is a no-op")

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), account.Balance, "commit never touches the balance")
	assert.Equal(t, int64(30), account.TotalSpent)
	assertInvariant(t, account)
}

func TestCompensateReservationIsIdempotent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	reservation, err := svc.Reserve(ctx, "u1", 30)
	require.NoError(t, err)

	require.NoError(t, svc.CompensateReservation(ctx, reservation.Token))

	account, err := svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance, "compensation refunds the reservation")
	assert.Equal(t, int64(0), account.TotalSpent)
	assertInvariant(t, account)

	// The refund can never be applied twice
	require.NoError(t, svc.CompensateReservation(ctx, reservation.Token))
	account, err = svc.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.Balance)
}

func TestCommitAfterCompensateFails(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 100, "seed")
	require.NoError(t, err)

	reservation, err := svc.Reserve(ctx, "u1", 30)
	require.NoError(t, err)

	require.NoError(t, svc.CompensateReservation(ctx, reservation.Token))
	err = svc.CommitReservation(ctx, reservation.Token)
	assert.True(t, types.IsEngineError(err, types.ErrValidation))
}

func TestUnknownReservationToken(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	err := svc.CommitReservation(ctx, "no-such-token")
	assert.True(t, types.IsEngineError(err, types.ErrValidation))

	err = svc.CompensateReservation(ctx, "no-such-token")
	assert.True(t, types.IsEngineError(err, types.ErrValidation))
}

func TestRecordCheckinAppliesStreakAndCreditTogether(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	account, err := svc.RecordCheckin(ctx, "u1", "2026-08-28", 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "2026-08-28", account.LastCheckinDate)
	assert.Equal(t, 1, account.StreakLength)
	assert.Equal(t, int64(1), account.Balance)
	assertInvariant(t, account)

	// Same day again fails without touching the account
	_, err = svc.RecordCheckin(ctx, "u1", "2026-08-28", 2, 2)
	assert.True(t, types.IsEngineError(err, types.ErrAlreadyCheckedIn))

	stored, err := repo.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Balance)
	assert.Equal(t, 1, stored.StreakLength)
}

func TestJournalEntriesRecorded(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Credit(ctx, "u1", 100, "seed")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, "u1", 40, "spend")
	require.NoError(t, err)

	entries, err := svc.GetEntries(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, entities.EntryTypeCredit, entries[0].Type)
	assert.Equal(t, int64(100), entries[0].Amount)
	assert.Equal(t, entities.EntryTypeDebit, entries[1].Type)
	assert.Equal(t, int64(-40), entries[1].Amount)
	assert.Equal(t, int64(60), entries[1].BalanceAfter)
}
