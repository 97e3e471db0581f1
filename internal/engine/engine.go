// Package engine composes the state store, facets, and router into one
// ready-to-use surface. The typed methods wrap Dispatch so hosts and tests
// do not build Call payloads by hand.
package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/facet/admin"
	"github.com/agilemesh/ceremony-engine/internal/facet/ceremony"
	"github.com/agilemesh/ceremony-engine/internal/facet/membership"
	"github.com/agilemesh/ceremony-engine/internal/facet/voting"
	"github.com/agilemesh/ceremony-engine/internal/messaging"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
	"github.com/agilemesh/ceremony-engine/internal/treasury"
)

// Options holds engine construction parameters. Publisher, Clock, and the
// transfer ports default to in-process implementations when nil.
type Options struct {
	// Owner is the only identity allowed to change the routing table
	Owner common.Address
	// ContributionCeiling caps direct transfers to the router
	ContributionCeiling *big.Int
	// Publisher receives every emitted engine event
	Publisher messaging.Publisher
	// Clock supplies all engine timestamps
	Clock adapter.Clock
	// Values is the host's native value transfer channel
	Values treasury.ValuePort
	// Tokens is the host's token ledger
	Tokens treasury.TokenPort
}

// Engine is the composed capability surface over one shared state.
type Engine struct {
	router *router.Router
	clock  adapter.Clock
}

// facetOps keeps registration explicit: the router enforces how facets are
// swapped, this table decides what the default deployment maps where.
func facetOps(f router.Facet) []domain.Operation {
	handlers := f.Handlers()
	ops := make([]domain.Operation, 0, len(handlers))
	for op := range handlers {
		ops = append(ops, op)
	}
	return ops
}

// New builds the engine: fresh state tagged with the current schema version,
// the router over it, and the four default facets registered.
func New(opts Options) (*Engine, error) {
	clock := opts.Clock
	if clock == nil {
		clock = adapter.NewClock()
	}
	pub := opts.Publisher
	if pub == nil {
		pub = messaging.NewMemoryPublisher()
	}
	values := opts.Values
	tokens := opts.Tokens
	if values == nil || tokens == nil {
		ledger := treasury.NewMemoryLedger()
		if values == nil {
			values = ledger.Values()
		}
		if tokens == nil {
			tokens = ledger.Tokens()
		}
	}

	st := store.New()
	st.InitializeIfEmpty(clock.Now())

	r := router.New(router.Config{
		Owner:               opts.Owner,
		ContributionCeiling: opts.ContributionCeiling,
	}, st, pub, clock)

	facets := []router.Facet{
		admin.New(clock, values, tokens),
		membership.New(clock),
		ceremony.New(clock),
		voting.New(clock),
	}
	for _, f := range facets {
		if err := r.Register(opts.Owner, f, facetOps(f), router.ActionAdd); err != nil {
			return nil, err
		}
	}

	return &Engine{router: r, clock: clock}, nil
}

// Router exposes the dispatch layer for hosts that route raw operations.
func (e *Engine) Router() *router.Router {
	return e.router
}

// State returns the current shared state for read-only inspection.
func (e *Engine) State() *store.State {
	return e.router.State()
}

func (e *Engine) dispatch(ctx context.Context, op domain.Operation, caller common.Address, value *big.Int, args any) (any, error) {
	return e.router.Dispatch(ctx, op, &router.Call{Caller: caller, Value: value, Args: args})
}

// Initialize performs the one-time admin setup.
func (e *Engine) Initialize(ctx context.Context, caller common.Address, rate *big.Int, vestingPeriod time.Duration, adminIdentity common.Address) error {
	_, err := e.dispatch(ctx, domain.OpInitialize, caller, nil, admin.InitializeArgs{
		Rate:          rate,
		VestingPeriod: vestingPeriod,
		Admin:         adminIdentity,
	})
	return err
}

// UpdateExchangeRate sets a new membership price. PRICE_UPDATER only.
func (e *Engine) UpdateExchangeRate(ctx context.Context, caller common.Address, rate *big.Int) error {
	_, err := e.dispatch(ctx, domain.OpUpdateExchangeRate, caller, nil, rate)
	return err
}

// ExchangeRate returns the current membership price.
func (e *Engine) ExchangeRate(ctx context.Context, caller common.Address) (*big.Int, error) {
	out, err := e.dispatch(ctx, domain.OpExchangeRate, caller, nil, nil)
	if err != nil {
		return nil, err
	}
	return out.(*big.Int), nil
}

// Pause sets the global pause flag. ADMIN only.
func (e *Engine) Pause(ctx context.Context, caller common.Address) error {
	_, err := e.dispatch(ctx, domain.OpPause, caller, nil, nil)
	return err
}

// Unpause clears the global pause flag. ADMIN only.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) error {
	_, err := e.dispatch(ctx, domain.OpUnpause, caller, nil, nil)
	return err
}

// IsPaused reports the pause flag.
func (e *Engine) IsPaused(ctx context.Context, caller common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpIsPaused, caller, nil, nil)
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// UpdateVestingPeriod sets a new vesting duration. ADMIN only.
func (e *Engine) UpdateVestingPeriod(ctx context.Context, caller common.Address, period time.Duration) error {
	_, err := e.dispatch(ctx, domain.OpUpdateVestingPeriod, caller, nil, period)
	return err
}

// Withdraw sends native treasury funds out. ADMIN only; zero amount means
// the full balance.
func (e *Engine) Withdraw(ctx context.Context, caller common.Address, destination common.Address, amount *big.Int) error {
	_, err := e.dispatch(ctx, domain.OpWithdraw, caller, nil, admin.WithdrawArgs{
		Destination: destination,
		Amount:      amount,
	})
	return err
}

// WithdrawToken sends token funds out. ADMIN only.
func (e *Engine) WithdrawToken(ctx context.Context, caller common.Address, token common.Address, destination common.Address, amount *big.Int) error {
	_, err := e.dispatch(ctx, domain.OpWithdrawToken, caller, nil, admin.WithdrawTokenArgs{
		Token:       token,
		Destination: destination,
		Amount:      amount,
	})
	return err
}

// GrantRole adds an identity to a role set. ADMIN only.
func (e *Engine) GrantRole(ctx context.Context, caller common.Address, role domain.Role, identity common.Address) error {
	_, err := e.dispatch(ctx, domain.OpGrantRole, caller, nil, admin.RoleArgs{Role: role, Identity: identity})
	return err
}

// RevokeRole removes an identity from a role set. ADMIN only.
func (e *Engine) RevokeRole(ctx context.Context, caller common.Address, role domain.Role, identity common.Address) error {
	_, err := e.dispatch(ctx, domain.OpRevokeRole, caller, nil, admin.RoleArgs{Role: role, Identity: identity})
	return err
}

// HasRole reports flat role membership.
func (e *Engine) HasRole(ctx context.Context, caller common.Address, role domain.Role, identity common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpHasRole, caller, nil, admin.RoleArgs{Role: role, Identity: identity})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// Purchase buys the caller's one membership unit. The attached value must
// equal the exchange rate exactly. Returns the assigned membership id.
func (e *Engine) Purchase(ctx context.Context, caller common.Address, value *big.Int, displayName, metadataRef string) (uint64, error) {
	out, err := e.dispatch(ctx, domain.OpPurchase, caller, value, membership.PurchaseArgs{
		DisplayName: displayName,
		MetadataRef: metadataRef,
	})
	if err != nil {
		return 0, err
	}
	return out.(uint64), nil
}

// MembershipOf returns an identity's membership id, 0 meaning none.
func (e *Engine) MembershipOf(ctx context.Context, caller common.Address, identity common.Address) (uint64, error) {
	out, err := e.dispatch(ctx, domain.OpMembershipOf, caller, nil, identity)
	if err != nil {
		return 0, err
	}
	return out.(uint64), nil
}

// IsVested reports whether an identity's membership has finished vesting.
func (e *Engine) IsVested(ctx context.Context, caller common.Address, identity common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpIsVested, caller, nil, identity)
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// BadgeHistory returns an identity's append-only sprint result history.
func (e *Engine) BadgeHistory(ctx context.Context, caller common.Address, identity common.Address) ([]schema.SprintResult, error) {
	out, err := e.dispatch(ctx, domain.OpBadgeHistory, caller, nil, identity)
	if err != nil {
		return nil, err
	}
	return out.([]schema.SprintResult), nil
}

// RecordSprintParticipation emits the participation notification. ADMIN only.
func (e *Engine) RecordSprintParticipation(ctx context.Context, caller common.Address, identity common.Address, membershipID uint64, sprint uint64) error {
	_, err := e.dispatch(ctx, domain.OpRecordSprintParticipation, caller, nil, membership.ParticipationArgs{
		Identity:     identity,
		MembershipID: membershipID,
		Sprint:       sprint,
	})
	return err
}

// StartCeremony creates a new active ceremony and returns its code.
func (e *Engine) StartCeremony(ctx context.Context, caller common.Address, sprint uint64) (string, error) {
	out, err := e.dispatch(ctx, domain.OpStartCeremony, caller, nil, sprint)
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// RequestEntry records the caller's wish to join a ceremony.
func (e *Engine) RequestEntry(ctx context.Context, caller common.Address, code string) error {
	_, err := e.dispatch(ctx, domain.OpRequestEntry, caller, nil, code)
	return err
}

// Approve admits a requested identity. Organizer or ADMIN only.
func (e *Engine) Approve(ctx context.Context, caller common.Address, code string, identity common.Address) error {
	_, err := e.dispatch(ctx, domain.OpApproveEntry, caller, nil, ceremony.ApproveArgs{Code: code, Identity: identity})
	return err
}

// Conclude ends an active ceremony. Organizer or ADMIN only.
func (e *Engine) Conclude(ctx context.Context, caller common.Address, code string) error {
	_, err := e.dispatch(ctx, domain.OpConclude, caller, nil, code)
	return err
}

// CeremonyExists reports whether a code resolves to a ceremony.
func (e *Engine) CeremonyExists(ctx context.Context, caller common.Address, code string) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpCeremonyExists, caller, nil, code)
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// EntryRequested reports the request flag for (code, identity).
func (e *Engine) EntryRequested(ctx context.Context, caller common.Address, code string, identity common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpEntryRequested, caller, nil, ceremony.EntryArgs{Code: code, Identity: identity})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// EntryApproved reports the approval flag for (code, identity).
func (e *Engine) EntryApproved(ctx context.Context, caller common.Address, code string, identity common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpEntryApproved, caller, nil, ceremony.EntryArgs{Code: code, Identity: identity})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// Vote casts the caller's one general estimate vote.
func (e *Engine) Vote(ctx context.Context, caller common.Address, code string, value uint64) error {
	_, err := e.dispatch(ctx, domain.OpVote, caller, nil, voting.VoteArgs{Code: code, Value: value})
	return err
}

// HasVoted reports whether an identity cast the general vote.
func (e *Engine) HasVoted(ctx context.Context, caller common.Address, code string, identity common.Address) (bool, error) {
	out, err := e.dispatch(ctx, domain.OpHasVoted, caller, nil, voting.QueryArgs{Code: code, Identity: identity})
	if err != nil {
		return false, err
	}
	return out.(bool), nil
}

// GetVote returns an identity's general vote value.
func (e *Engine) GetVote(ctx context.Context, caller common.Address, code string, identity common.Address) (uint64, error) {
	out, err := e.dispatch(ctx, domain.OpGetVote, caller, nil, voting.QueryArgs{Code: code, Identity: identity})
	if err != nil {
		return 0, err
	}
	return out.(uint64), nil
}

// OpenFeatureVote appends a new feature vote session and returns its index.
func (e *Engine) OpenFeatureVote(ctx context.Context, caller common.Address, code string, featureCode string) (int, error) {
	out, err := e.dispatch(ctx, domain.OpOpenFeatureVote, caller, nil, voting.FeatureArgs{Code: code, FeatureCode: featureCode})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

// VoteFeature casts the caller's vote in one feature session.
func (e *Engine) VoteFeature(ctx context.Context, caller common.Address, code string, sessionIndex int, value uint64) error {
	_, err := e.dispatch(ctx, domain.OpVoteFeature, caller, nil, voting.FeatureVoteArgs{
		Code:         code,
		SessionIndex: sessionIndex,
		Value:        value,
	})
	return err
}

// CloseFeatureVote closes a feature session. Irreversible.
func (e *Engine) CloseFeatureVote(ctx context.Context, caller common.Address, code string, sessionIndex int) error {
	_, err := e.dispatch(ctx, domain.OpCloseFeatureVote, caller, nil, voting.SessionArgs{Code: code, SessionIndex: sessionIndex})
	return err
}

// UpdateBadges rolls a concluded ceremony's votes into badge history.
// Returns the number of participants processed.
func (e *Engine) UpdateBadges(ctx context.Context, caller common.Address, code string, limit int) (int, error) {
	out, err := e.dispatch(ctx, domain.OpUpdateBadges, caller, nil, voting.UpdateBadgesArgs{Code: code, Limit: limit})
	if err != nil {
		return 0, err
	}
	return out.(int), nil
}

// ParticipantTotal returns the derived total points of one participant.
func (e *Engine) ParticipantTotal(ctx context.Context, caller common.Address, code string, identity common.Address) (uint64, error) {
	out, err := e.dispatch(ctx, domain.OpParticipantTotal, caller, nil, voting.QueryArgs{Code: code, Identity: identity})
	if err != nil {
		return 0, err
	}
	return out.(uint64), nil
}

// CeremonyResults returns the derived full result list of a ceremony.
func (e *Engine) CeremonyResults(ctx context.Context, caller common.Address, code string) ([]voting.ParticipantResult, error) {
	out, err := e.dispatch(ctx, domain.OpCeremonyResults, caller, nil, code)
	if err != nil {
		return nil, err
	}
	return out.([]voting.ParticipantResult), nil
}

// SessionResults returns the derived result list of one feature session.
func (e *Engine) SessionResults(ctx context.Context, caller common.Address, code string, sessionIndex int) ([]voting.SessionResult, error) {
	out, err := e.dispatch(ctx, domain.OpSessionResults, caller, nil, voting.SessionArgs{Code: code, SessionIndex: sessionIndex})
	if err != nil {
		return nil, err
	}
	return out.([]voting.SessionResult), nil
}

// Receive accepts a direct contribution with no operation identifier.
func (e *Engine) Receive(ctx context.Context, caller common.Address, value *big.Int) error {
	return e.router.Receive(ctx, caller, value)
}

// SetContributionCeiling changes the direct-transfer ceiling. Owner only.
func (e *Engine) SetContributionCeiling(ctx context.Context, caller common.Address, max *big.Int) error {
	_, err := e.dispatch(ctx, domain.OpSetContributionCeiling, caller, nil, max)
	return err
}

// Owner returns the router owner.
func (e *Engine) Owner(ctx context.Context, caller common.Address) (common.Address, error) {
	out, err := e.dispatch(ctx, domain.OpOwner, caller, nil, nil)
	if err != nil {
		return common.Address{}, err
	}
	return out.(common.Address), nil
}
