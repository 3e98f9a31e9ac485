package redemption

import (
	"context"
	"fmt"
	"testing"

	"github.com/rmolina/gamebind/internal/types"
	"github.com/rmolina/gamebind/pkg/entities"
	"github.com/rmolina/gamebind/pkg/gameapi"
	mock_gameapi "github.com/rmolina/gamebind/pkg/gameapi/mock"
	bindingRepo "github.com/rmolina/gamebind/pkg/repositories/binding"
	ledgerRepo "github.com/rmolina/gamebind/pkg/repositories/ledger"
	bindingSvc "github.com/rmolina/gamebind/pkg/services/binding"
	ledgerSvc "github.com/rmolina/gamebind/pkg/services/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testIdentity = "user1"
	testHandle   = "gamer42"
	ratio        = 10
)

type fixture struct {
	svc    *Service
	ledger *ledgerSvc.Service
	repo   ledgerRepo.Repository
	api    *mock_gameapi.MockClient
}

// newFixture wires the full redemption stack on memory stores, with the
// identity already bound and holding a 100 point balance.
func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	api := mock_gameapi.NewMockClient(ctrl)

	repo := ledgerRepo.NewMemoryRepository()
	ledger := ledgerSvc.NewService(repo)
	bindings := bindingSvc.NewService(bindingRepo.NewMemoryRepository(), api)

	ctx := context.Background()

	api.EXPECT().
		LookupAccount(gomock.Any(), testHandle).
		Return(&gameapi.AccountInfo{Handle: testHandle, AccountRef: "ref-1"}, nil)
	_, err := bindings.Bind(ctx, testIdentity, testHandle)
	require.NoError(t, err)

	_, err = ledger.Credit(ctx, testIdentity, 100, "seed")
	require.NoError(t, err)

	return &fixture{
		svc:    NewService(bindings, ledger, repo, api, ratio, nil),
		ledger: ledger,
		repo:   repo,
		api:    api,
	}
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	balance, err := f.ledger.GetBalance(context.Background(), testIdentity)
	require.NoError(t, err)
	return balance
}

func (f *fixture) lastTxn(t *testing.T) *entities.RedemptionTransaction {
	t.Helper()
	txns, err := f.svc.History(context.Background(), testIdentity, 1)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	return txns[0]
}

func TestRedeemSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, int64(30*ratio), gomock.Any()).
		Return(&gameapi.RechargeResult{NewBalance: 500, NewLifetimeTotal: 1200, Raw: `{"success":true}`}, nil)

	receipt, err := f.svc.Redeem(ctx, testIdentity, 30, "birthday")
	require.NoError(t, err)

	assert.Equal(t, int64(30), receipt.PointsSpent)
	assert.Equal(t, int64(300), receipt.CurrencyAmount)
	assert.Equal(t, int64(70), receipt.Balance)
	assert.Equal(t, int64(500), receipt.GameBalance)
	assert.Equal(t, int64(1200), receipt.GameLifetimeTotal)

	txn := f.lastTxn(t)
	assert.Equal(t, entities.RedemptionCommitted, txn.Status)
	assert.Equal(t, receipt.TransactionID, txn.ID)
	assert.Equal(t, "birthday", txn.Memo)
	assert.Equal(t, `{"success":true}`, txn.ExternalResponse)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	f := newFixture(t)

	// No Recharge expectation: the reservation must fail before any network
	// call
	_, err := f.svc.Redeem(context.Background(), testIdentity, 101, "")
	assert.True(t, types.IsEngineError(err, types.ErrInsufficientBalance))
	assert.Equal(t, int64(100), f.balance(t))
}

func TestRedeemWithoutBinding(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Redeem(context.Background(), "stranger", 10, "")
	assert.True(t, types.IsEngineError(err, types.ErrNotBound))
}

func TestRedeemRejectsNonPositivePoints(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Redeem(context.Background(), testIdentity, 0, "")
	assert.True(t, types.IsEngineError(err, types.ErrValidation))
}

func TestRedeemAPIRejectionCompensates(t *testing.T) {
	f := newFixture(t)

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, int64(30*ratio), gomock.Any()).
		Return(nil, &gameapi.APIError{StatusCode: 422, Reason: "account frozen"})

	_, err := f.svc.Redeem(context.Background(), testIdentity, 30, "")
	assert.True(t, types.IsEngineError(err, types.ErrRedemptionFailed))

	// Points refunded in full
	assert.Equal(t, int64(100), f.balance(t))

	txn := f.lastTxn(t)
	assert.Equal(t, entities.RedemptionCompensated, txn.Status)
	assert.Equal(t, "account frozen", txn.ExternalResponse)
}

func TestRedeemUnreachableCompensates(t *testing.T) {
	f := newFixture(t)

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, int64(30*ratio), gomock.Any()).
		Return(nil, fmt.Errorf("%w: dial tcp: connection refused", gameapi.ErrUnavailable))

	_, err := f.svc.Redeem(context.Background(), testIdentity, 30, "")
	assert.True(t, types.IsEngineError(err, types.ErrExternalUnavailable))

	// The request never reached the server, so the refund is safe
	assert.Equal(t, int64(100), f.balance(t))
	assert.Equal(t, entities.RedemptionCompensated, f.lastTxn(t).Status)
}

func TestRedeemAmbiguousHoldsReservation(t *testing.T) {
	f := newFixture(t)

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, int64(30*ratio), gomock.Any()).
		Return(nil, fmt.Errorf("%w: context deadline exceeded", gameapi.ErrOutcomeUnknown))

	_, err := f.svc.Redeem(context.Background(), testIdentity, 30, "")
	assert.True(t, types.IsEngineError(err, types.ErrAmbiguousOutcome))

	// The points stay held: no refund, no commit, until reconciliation
	assert.Equal(t, int64(70), f.balance(t))

	txn := f.lastTxn(t)
	assert.Equal(t, entities.RedemptionAmbiguous, txn.Status)
	assert.False(t, txn.Terminal())
}

func TestListAmbiguous(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: timeout", gameapi.ErrOutcomeUnknown)).
		Times(2)

	_, err := f.svc.Redeem(ctx, testIdentity, 10, "")
	require.Error(t, err)
	_, err = f.svc.Redeem(ctx, testIdentity, 20, "")
	require.Error(t, err)

	pending, err := f.svc.ListAmbiguous(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestResolveAmbiguousAsApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: timeout", gameapi.ErrOutcomeUnknown))

	_, err := f.svc.Redeem(ctx, testIdentity, 30, "")
	require.Error(t, err)
	txn := f.lastTxn(t)

	// Support confirmed the recharge landed: the debit sticks
	resolved, err := f.svc.Resolve(ctx, txn.ID, true)
	require.NoError(t, err)
	assert.Equal(t, entities.RedemptionCommitted, resolved.Status)
	assert.Equal(t, int64(70), f.balance(t))
}

func TestResolveAmbiguousAsNotApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: timeout", gameapi.ErrOutcomeUnknown))

	_, err := f.svc.Redeem(ctx, testIdentity, 30, "")
	require.Error(t, err)
	txn := f.lastTxn(t)

	// Support confirmed the recharge never happened: refund
	resolved, err := f.svc.Resolve(ctx, txn.ID, false)
	require.NoError(t, err)
	assert.Equal(t, entities.RedemptionCompensated, resolved.Status)
	assert.Equal(t, int64(100), f.balance(t))
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, gomock.Any(), gomock.Any()).
		Return(nil, fmt.Errorf("%w: timeout", gameapi.ErrOutcomeUnknown))

	_, err := f.svc.Redeem(ctx, testIdentity, 30, "")
	require.Error(t, err)
	txn := f.lastTxn(t)

	_, err = f.svc.Resolve(ctx, txn.ID, false)
	require.NoError(t, err)

	// Repeating, even with the opposite verdict, cannot double-settle
	resolved, err := f.svc.Resolve(ctx, txn.ID, true)
	require.NoError(t, err)
	assert.Equal(t, entities.RedemptionCompensated, resolved.Status)
	assert.Equal(t, int64(100), f.balance(t))
}

func TestResolveUnknownTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Resolve(context.Background(), "no-such-txn", true)
	assert.True(t, types.IsEngineError(err, types.ErrValidation))
}

func TestHistoryOrderAndLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.api.EXPECT().
		Recharge(gomock.Any(), testHandle, gomock.Any(), gomock.Any()).
		Return(&gameapi.RechargeResult{NewBalance: 1, Raw: "{}"}, nil).
		Times(3)

	for n := 0; n < 3; n++ {
		_, err := f.svc.Redeem(ctx, testIdentity, 10, "")
		require.NoError(t, err)
	}

	txns, err := f.svc.History(ctx, testIdentity, 2)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}
