// Package membership implements one-time membership issuance, the vesting
// clock, and badge record queries.
package membership

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/access"
	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

// PurchaseArgs is the payload for membership.purchase.
type PurchaseArgs struct {
	// DisplayName is the participant's display name
	DisplayName string
	// MetadataRef is an opaque external metadata reference
	MetadataRef string
}

// ParticipationArgs is the payload for membership.recordSprintParticipation.
type ParticipationArgs struct {
	Identity     common.Address
	MembershipID uint64
	Sprint       uint64
}

// Facet implements the membership operations.
type Facet struct {
	clock adapter.Clock
}

// New creates the membership facet.
func New(clock adapter.Clock) *Facet {
	return &Facet{clock: clock}
}

// Name identifies the facet in the router registry.
func (f *Facet) Name() string {
	return "membership"
}

// Handlers returns the operations the facet implements.
func (f *Facet) Handlers() map[domain.Operation]router.Handler {
	return map[domain.Operation]router.Handler{
		domain.OpPurchase:                  f.purchase,
		domain.OpMembershipOf:              f.membershipOf,
		domain.OpIsVested:                  f.isVested,
		domain.OpBadgeHistory:              f.badgeHistory,
		domain.OpRecordSprintParticipation: f.recordParticipation,
	}
}

func (f *Facet) purchase(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(PurchaseArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	rate := st.Config.ExchangeRate
	if rate == nil {
		rate = new(big.Int)
	}
	paid := call.AttachedValue()
	if paid.Cmp(rate) != 0 {
		return nil, &domain.IncorrectPaymentAmountError{
			Sent:     new(big.Int).Set(paid),
			Required: new(big.Int).Set(rate),
		}
	}
	if st.MembershipOf(call.Caller) != nil {
		return nil, domain.ErrAlreadyOwnsMembership
	}

	now := f.clock.Now()

	// Staleness is a signal, not a failure: the purchase still goes through
	// at the stored rate.
	if now.Sub(st.Config.RateUpdatedAt) > domain.RateFreshnessWindow {
		call.Emit(domain.NewEvent(domain.EventRateStale, domain.OpPurchase, call.Caller, map[string]string{
			"rate":       rate.String(),
			"updated_at": st.Config.RateUpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}))
	}

	st.Config.MembershipCounter++
	id := st.Config.MembershipCounter

	st.Memberships[call.Caller] = &schema.Membership{
		Owner:        call.Caller,
		ID:           id,
		VestingStart: now,
		DisplayName:  args.DisplayName,
		MetadataRef:  args.MetadataRef,
	}
	st.Treasury.Balance.Add(st.Treasury.Balance, paid)

	call.Emit(domain.NewEvent(domain.EventMembershipPurchased, domain.OpPurchase, call.Caller, map[string]string{
		"membership_id": strconv.FormatUint(id, 10),
		"display_name":  args.DisplayName,
		"metadata_ref":  args.MetadataRef,
	}))
	return id, nil
}

func (f *Facet) membershipOf(_ context.Context, st *store.State, call *router.Call) (any, error) {
	identity, ok := call.Args.(common.Address)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	m := st.MembershipOf(identity)
	if m == nil {
		return uint64(domain.SentinelMembershipID), nil
	}
	return m.ID, nil
}

func (f *Facet) isVested(_ context.Context, st *store.State, call *router.Call) (any, error) {
	identity, ok := call.Args.(common.Address)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	return Vested(st, identity, f.clock), nil
}

// Vested reports whether an identity's membership has finished vesting. It is
// shared with the voting facet, which gates every vote on it.
func Vested(st *store.State, identity common.Address, clock adapter.Clock) bool {
	m := st.MembershipOf(identity)
	if m == nil {
		return false
	}
	return !clock.Now().Before(m.VestingStart.Add(st.Config.VestingPeriod))
}

func (f *Facet) badgeHistory(_ context.Context, st *store.State, call *router.Call) (any, error) {
	identity, ok := call.Args.(common.Address)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	m := st.MembershipOf(identity)
	if m == nil {
		return []schema.SprintResult(nil), nil
	}
	out := make([]schema.SprintResult, len(m.History))
	for i, r := range m.History {
		out[i] = r.Clone()
	}
	return out, nil
}

func (f *Facet) recordParticipation(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(ParticipationArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}
	if err := access.Require(st, domain.RoleAdmin, call.Caller); err != nil {
		return nil, err
	}

	// Event emission only; the substantive history mutation happens during
	// badge aggregation in the voting facet.
	call.Emit(domain.NewEvent(domain.EventSprintParticipation, domain.OpRecordSprintParticipation, call.Caller, map[string]string{
		"identity":      args.Identity.Hex(),
		"membership_id": strconv.FormatUint(args.MembershipID, 10),
		"sprint":        strconv.FormatUint(args.Sprint, 10),
	}))
	return nil, nil
}
