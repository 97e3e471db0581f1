// Package admin implements the configuration, pause, role management, and
// treasury withdrawal operations.
package admin

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/access"
	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/treasury"
)

// InitializeArgs is the payload for admin.initialize.
type InitializeArgs struct {
	// Rate is the initial exchange rate (price of one membership unit)
	Rate *big.Int
	// VestingPeriod is the initial vesting duration
	VestingPeriod time.Duration
	// Admin receives the bootstrap ADMIN and PRICE_UPDATER grants
	Admin common.Address
}

// WithdrawArgs is the payload for admin.withdraw. A zero Amount withdraws
// the full balance.
type WithdrawArgs struct {
	Destination common.Address
	Amount      *big.Int
}

// WithdrawTokenArgs is the payload for admin.withdrawToken.
type WithdrawTokenArgs struct {
	Token       common.Address
	Destination common.Address
	Amount      *big.Int
}

// RoleArgs is the payload for the role management operations.
type RoleArgs struct {
	Role     domain.Role
	Identity common.Address
}

// Facet implements the admin operations.
type Facet struct {
	clock  adapter.Clock
	values treasury.ValuePort
	tokens treasury.TokenPort
	guard  treasury.Guard
}

// New creates the admin facet. The value and token ports are the host
// environment's outbound transfer channels.
func New(clock adapter.Clock, values treasury.ValuePort, tokens treasury.TokenPort) *Facet {
	return &Facet{clock: clock, values: values, tokens: tokens}
}

// Name identifies the facet in the router registry.
func (f *Facet) Name() string {
	return "admin"
}

// Handlers returns the operations the facet implements.
func (f *Facet) Handlers() map[domain.Operation]router.Handler {
	return map[domain.Operation]router.Handler{
		domain.OpInitialize:          f.initialize,
		domain.OpUpdateExchangeRate:  f.updateExchangeRate,
		domain.OpExchangeRate:        f.exchangeRate,
		domain.OpPause:               f.pause,
		domain.OpUnpause:             f.unpause,
		domain.OpIsPaused:            f.isPaused,
		domain.OpUpdateVestingPeriod: f.updateVestingPeriod,
		domain.OpWithdraw:            f.withdraw,
		domain.OpWithdrawToken:       f.withdrawToken,
		domain.OpGrantRole:           f.grantRole,
		domain.OpRevokeRole:          f.revokeRole,
		domain.OpHasRole:             f.hasRole,
	}
}

func (f *Facet) initialize(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(InitializeArgs)
	if !ok || args.Rate == nil {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if st.Config.Initialized {
		return nil, domain.ErrAlreadyInitialized
	}
	if domain.IsZeroAddress(args.Admin) {
		return nil, domain.ErrZeroIdentity
	}
	if args.VestingPeriod <= 0 {
		return nil, domain.ErrInvalidVestingPeriod
	}

	now := f.clock.Now()
	st.Config.Initialized = true
	st.Config.ExchangeRate = new(big.Int).Set(args.Rate)
	st.Config.RateUpdatedAt = now
	st.Config.VestingPeriod = args.VestingPeriod

	// Bootstrap grants happen exactly once, outside the ADMIN-only path.
	st.GrantRole(domain.RoleAdmin, args.Admin)
	st.GrantRole(domain.RolePriceUpdater, args.Admin)

	call.Emit(domain.NewEvent(domain.EventInitialized, domain.OpInitialize, call.Caller, map[string]string{
		"admin":          args.Admin.Hex(),
		"rate":           args.Rate.String(),
		"vesting_period": args.VestingPeriod.String(),
	}))
	return nil, nil
}

func (f *Facet) updateExchangeRate(_ context.Context, st *store.State, call *router.Call) (any, error) {
	rate, ok := call.Args.(*big.Int)
	if !ok || rate == nil {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RolePriceUpdater, call.Caller); err != nil {
		return nil, err
	}

	st.Config.ExchangeRate = new(big.Int).Set(rate)
	st.Config.RateUpdatedAt = f.clock.Now()

	call.Emit(domain.NewEvent(domain.EventExchangeRateUpdated, domain.OpUpdateExchangeRate, call.Caller, map[string]string{
		"rate": rate.String(),
	}))
	return nil, nil
}

func (f *Facet) exchangeRate(_ context.Context, st *store.State, _ *router.Call) (any, error) {
	if st.Config.ExchangeRate == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(st.Config.ExchangeRate), nil
}

func (f *Facet) pause(_ context.Context, st *store.State, call *router.Call) (any, error) {
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}
	if st.Config.Paused {
		return nil, domain.ErrAlreadyPaused
	}
	st.Config.Paused = true
	call.Emit(domain.NewEvent(domain.EventPaused, domain.OpPause, call.Caller, nil))
	return nil, nil
}

func (f *Facet) unpause(_ context.Context, st *store.State, call *router.Call) (any, error) {
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}
	if !st.Config.Paused {
		return nil, domain.ErrNotPaused
	}
	st.Config.Paused = false
	call.Emit(domain.NewEvent(domain.EventUnpaused, domain.OpUnpause, call.Caller, nil))
	return nil, nil
}

func (f *Facet) isPaused(_ context.Context, st *store.State, _ *router.Call) (any, error) {
	return st.Config.Paused, nil
}

func (f *Facet) updateVestingPeriod(_ context.Context, st *store.State, call *router.Call) (any, error) {
	period, ok := call.Args.(time.Duration)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, domain.ErrInvalidVestingPeriod
	}
	st.Config.VestingPeriod = period
	call.Emit(domain.NewEvent(domain.EventVestingPeriodUpdated, domain.OpUpdateVestingPeriod, call.Caller, map[string]string{
		"period": period.String(),
	}))
	return nil, nil
}

func (f *Facet) withdraw(ctx context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(WithdrawArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}
	if domain.IsZeroAddress(args.Destination) {
		return nil, domain.ErrZeroIdentity
	}

	available := st.Treasury.Balance
	amount := args.Amount
	if amount == nil || amount.Sign() == 0 {
		// Zero means "withdraw the full balance".
		amount = new(big.Int).Set(available)
	}
	if amount.Cmp(available) > 0 {
		return nil, &domain.InsufficientFundsError{
			Requested: new(big.Int).Set(amount),
			Available: new(big.Int).Set(available),
		}
	}

	// Checks done, effects next, the external transfer last.
	st.Treasury.Balance = new(big.Int).Sub(available, amount)

	if err := f.guard.Enter(); err != nil {
		return nil, err
	}
	defer f.guard.Exit()
	if err := f.values.Transfer(ctx, args.Destination, amount); err != nil {
		return nil, err
	}

	call.Emit(domain.NewEvent(domain.EventWithdrawal, domain.OpWithdraw, call.Caller, map[string]string{
		"destination": args.Destination.Hex(),
		"amount":      amount.String(),
	}))
	return nil, nil
}

func (f *Facet) withdrawToken(ctx context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(WithdrawTokenArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}
	if domain.IsZeroAddress(args.Destination) {
		return nil, domain.ErrZeroIdentity
	}

	available, err := f.tokens.BalanceOf(ctx, args.Token)
	if err != nil {
		return nil, err
	}
	amount := args.Amount
	if amount == nil || amount.Sign() == 0 {
		amount = new(big.Int).Set(available)
	}
	if amount.Cmp(available) > 0 {
		return nil, &domain.InsufficientFundsError{
			Requested: new(big.Int).Set(amount),
			Available: new(big.Int).Set(available),
		}
	}

	if err := f.guard.Enter(); err != nil {
		return nil, err
	}
	defer f.guard.Exit()
	if err := f.tokens.Transfer(ctx, args.Token, args.Destination, amount); err != nil {
		return nil, err
	}

	call.Emit(domain.NewEvent(domain.EventTokenWithdrawal, domain.OpWithdrawToken, call.Caller, map[string]string{
		"token":       args.Token.Hex(),
		"destination": args.Destination.Hex(),
		"amount":      amount.String(),
	}))
	return nil, nil
}

func (f *Facet) grantRole(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(RoleArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Grant(st, call.Caller, args.Role, args.Identity); err != nil {
		return nil, err
	}
	call.Emit(domain.NewEvent(domain.EventRoleGranted, domain.OpGrantRole, call.Caller, map[string]string{
		"role":     string(args.Role),
		"identity": args.Identity.Hex(),
	}))
	return nil, nil
}

func (f *Facet) revokeRole(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(RoleArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Revoke(st, call.Caller, args.Role, args.Identity); err != nil {
		return nil, err
	}
	call.Emit(domain.NewEvent(domain.EventRoleRevoked, domain.OpRevokeRole, call.Caller, map[string]string{
		"role":     string(args.Role),
		"identity": args.Identity.Hex(),
	}))
	return nil, nil
}

func (f *Facet) hasRole(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(RoleArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	return access.Has(st, args.Role, args.Identity), nil
}
