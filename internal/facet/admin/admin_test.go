package admin_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/facet/admin"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/treasury"
)

var (
	adminAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	otherAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	destAddr  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	tokenAddr = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) Since(t time.Time) time.Duration { return c.now.Sub(t) }

func (c *stubClock) Sleep(time.Duration) {}

func (c *stubClock) Parse(layout, value string) (time.Time, error) {
	return time.Parse(layout, value)
}

func (c *stubClock) Unix(sec int64, nsec int64) time.Time { return time.Unix(sec, nsec) }

func (c *stubClock) After(time.Duration) <-chan time.Time { return nil }

type fixture struct {
	facet  *admin.Facet
	ledger *treasury.MemoryLedger
	clock  *stubClock
	state  *store.State
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ledger := treasury.NewMemoryLedger()
	st := store.New()
	st.InitializeIfEmpty(clock.now)
	return &fixture{
		facet:  admin.New(clock, ledger.Values(), ledger.Tokens()),
		ledger: ledger,
		clock:  clock,
		state:  st,
	}
}

// initialized runs the one-time setup so adminAddr holds ADMIN and
// PRICE_UPDATER.
func (f *fixture) initialized(t *testing.T) *fixture {
	t.Helper()
	_, err := f.call(domain.OpInitialize, adminAddr, admin.InitializeArgs{
		Rate:          big.NewInt(100),
		VestingPeriod: time.Hour,
		Admin:         adminAddr,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) call(op domain.Operation, caller common.Address, args any) (any, error) {
	handler := f.facet.Handlers()[op]
	return handler(context.Background(), f.state, &router.Call{Caller: caller, Args: args})
}

func TestInitialize(t *testing.T) {
	f := setup(t)

	_, err := f.call(domain.OpInitialize, adminAddr, admin.InitializeArgs{
		Rate:          big.NewInt(250),
		VestingPeriod: 48 * time.Hour,
		Admin:         adminAddr,
	})
	require.NoError(t, err)

	assert.True(t, f.state.Config.Initialized)
	assert.Equal(t, int64(250), f.state.Config.ExchangeRate.Int64())
	assert.Equal(t, 48*time.Hour, f.state.Config.VestingPeriod)
	assert.Equal(t, f.clock.now, f.state.Config.RateUpdatedAt)
	assert.True(t, f.state.HasRole(domain.RoleAdmin, adminAddr))
	assert.True(t, f.state.HasRole(domain.RolePriceUpdater, adminAddr))

	// Second initialization is rejected
	_, err = f.call(domain.OpInitialize, adminAddr, admin.InitializeArgs{
		Rate:          big.NewInt(1),
		VestingPeriod: time.Hour,
		Admin:         adminAddr,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestInitialize_Validation(t *testing.T) {
	tests := []struct {
		name    string
		args    admin.InitializeArgs
		wantErr error
	}{
		{
			name: "nil rate",
			args: admin.InitializeArgs{
				VestingPeriod: time.Hour,
				Admin:         adminAddr,
			},
			wantErr: domain.ErrInvalidArguments,
		},
		{
			name: "zero admin",
			args: admin.InitializeArgs{
				Rate:          big.NewInt(100),
				VestingPeriod: time.Hour,
				Admin:         domain.ZeroAddress,
			},
			wantErr: domain.ErrZeroIdentity,
		},
		{
			name: "zero vesting period",
			args: admin.InitializeArgs{
				Rate:  big.NewInt(100),
				Admin: adminAddr,
			},
			wantErr: domain.ErrInvalidVestingPeriod,
		},
		{
			name: "negative vesting period",
			args: admin.InitializeArgs{
				Rate:          big.NewInt(100),
				VestingPeriod: -time.Hour,
				Admin:         adminAddr,
			},
			wantErr: domain.ErrInvalidVestingPeriod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			_, err := f.call(domain.OpInitialize, adminAddr, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, f.state.Config.Initialized)
		})
	}
}

func TestInitialize_UninitializedStorage(t *testing.T) {
	f := setup(t)
	f.state.Version = 0

	_, err := f.call(domain.OpInitialize, adminAddr, admin.InitializeArgs{
		Rate:          big.NewInt(100),
		VestingPeriod: time.Hour,
		Admin:         adminAddr,
	})
	assert.ErrorIs(t, err, domain.ErrStorageNotInitialized)
}

func TestUpdateExchangeRate(t *testing.T) {
	f := setup(t).initialized(t)
	f.clock.now = f.clock.now.Add(time.Hour)

	_, err := f.call(domain.OpUpdateExchangeRate, otherAddr, big.NewInt(200))
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpUpdateExchangeRate, adminAddr, big.NewInt(200))
	require.NoError(t, err)
	assert.Equal(t, int64(200), f.state.Config.ExchangeRate.Int64())
	assert.Equal(t, f.clock.now, f.state.Config.RateUpdatedAt)

	out, err := f.call(domain.OpExchangeRate, otherAddr, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(200), out.(*big.Int).Int64())
}

func TestPauseUnpause(t *testing.T) {
	f := setup(t).initialized(t)

	_, err := f.call(domain.OpPause, otherAddr, nil)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpUnpause, adminAddr, nil)
	assert.ErrorIs(t, err, domain.ErrNotPaused)

	_, err = f.call(domain.OpPause, adminAddr, nil)
	require.NoError(t, err)
	assert.True(t, f.state.Config.Paused)

	_, err = f.call(domain.OpPause, adminAddr, nil)
	assert.ErrorIs(t, err, domain.ErrAlreadyPaused)

	out, err := f.call(domain.OpIsPaused, otherAddr, nil)
	require.NoError(t, err)
	assert.True(t, out.(bool))

	_, err = f.call(domain.OpUnpause, adminAddr, nil)
	require.NoError(t, err)
	assert.False(t, f.state.Config.Paused)
}

func TestUpdateVestingPeriod(t *testing.T) {
	f := setup(t).initialized(t)

	_, err := f.call(domain.OpUpdateVestingPeriod, otherAddr, 2*time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpUpdateVestingPeriod, adminAddr, time.Duration(0))
	assert.ErrorIs(t, err, domain.ErrInvalidVestingPeriod)

	_, err = f.call(domain.OpUpdateVestingPeriod, adminAddr, 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, f.state.Config.VestingPeriod)
}

func TestWithdraw(t *testing.T) {
	f := setup(t).initialized(t)
	f.state.Treasury.Balance = big.NewInt(1000)

	_, err := f.call(domain.OpWithdraw, otherAddr, admin.WithdrawArgs{Destination: destAddr, Amount: big.NewInt(100)})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpWithdraw, adminAddr, admin.WithdrawArgs{Destination: domain.ZeroAddress, Amount: big.NewInt(100)})
	assert.ErrorIs(t, err, domain.ErrZeroIdentity)

	_, err = f.call(domain.OpWithdraw, adminAddr, admin.WithdrawArgs{Destination: destAddr, Amount: big.NewInt(2000)})
	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2000), insufficient.Requested.Int64())
	assert.Equal(t, int64(1000), insufficient.Available.Int64())

	_, err = f.call(domain.OpWithdraw, adminAddr, admin.WithdrawArgs{Destination: destAddr, Amount: big.NewInt(300)})
	require.NoError(t, err)
	assert.Equal(t, int64(700), f.state.Treasury.Balance.Int64())
	assert.Equal(t, int64(300), f.ledger.Received(destAddr).Int64())

	// Zero amount drains the remaining balance
	_, err = f.call(domain.OpWithdraw, adminAddr, admin.WithdrawArgs{Destination: destAddr})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.state.Treasury.Balance.Int64())
	assert.Equal(t, int64(1000), f.ledger.Received(destAddr).Int64())
}

func TestWithdrawToken(t *testing.T) {
	f := setup(t).initialized(t)
	f.ledger.SetTokenBalance(tokenAddr, big.NewInt(500))

	_, err := f.call(domain.OpWithdrawToken, otherAddr, admin.WithdrawTokenArgs{Token: tokenAddr, Destination: destAddr, Amount: big.NewInt(100)})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpWithdrawToken, adminAddr, admin.WithdrawTokenArgs{Token: tokenAddr, Destination: destAddr, Amount: big.NewInt(600)})
	var insufficient *domain.InsufficientFundsError
	assert.ErrorAs(t, err, &insufficient)

	_, err = f.call(domain.OpWithdrawToken, adminAddr, admin.WithdrawTokenArgs{Token: tokenAddr, Destination: destAddr, Amount: big.NewInt(200)})
	require.NoError(t, err)
	assert.Equal(t, int64(200), f.ledger.TokenReceived(tokenAddr, destAddr).Int64())

	// Zero amount drains the remaining token balance
	_, err = f.call(domain.OpWithdrawToken, adminAddr, admin.WithdrawTokenArgs{Token: tokenAddr, Destination: destAddr})
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.ledger.TokenReceived(tokenAddr, destAddr).Int64())
}

func TestRoles(t *testing.T) {
	f := setup(t).initialized(t)

	_, err := f.call(domain.OpGrantRole, otherAddr, admin.RoleArgs{Role: domain.RoleScrumMaster, Identity: otherAddr})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	_, err = f.call(domain.OpGrantRole, adminAddr, admin.RoleArgs{Role: domain.RoleScrumMaster, Identity: otherAddr})
	require.NoError(t, err)

	out, err := f.call(domain.OpHasRole, otherAddr, admin.RoleArgs{Role: domain.RoleScrumMaster, Identity: otherAddr})
	require.NoError(t, err)
	assert.True(t, out.(bool))

	_, err = f.call(domain.OpRevokeRole, adminAddr, admin.RoleArgs{Role: domain.RoleScrumMaster, Identity: otherAddr})
	require.NoError(t, err)

	out, err = f.call(domain.OpHasRole, otherAddr, admin.RoleArgs{Role: domain.RoleScrumMaster, Identity: otherAddr})
	require.NoError(t, err)
	assert.False(t, out.(bool))
}

func TestInvalidArguments(t *testing.T) {
	f := setup(t).initialized(t)

	for _, op := range []domain.Operation{
		domain.OpInitialize,
		domain.OpUpdateExchangeRate,
		domain.OpUpdateVestingPeriod,
		domain.OpWithdraw,
		domain.OpWithdrawToken,
		domain.OpGrantRole,
		domain.OpRevokeRole,
		domain.OpHasRole,
	} {
		_, err := f.call(op, adminAddr, struct{}{})
		assert.ErrorIs(t, err, domain.ErrInvalidArguments, string(op))
	}
}
