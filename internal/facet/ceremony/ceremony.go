// Package ceremony implements the sprint-planning session lifecycle:
// create, admit participants, conclude.
package ceremony

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/access"
	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

// EntryArgs is the payload for ceremony.requestEntry and the query
// operations keyed by (code, identity).
type EntryArgs struct {
	Code     string
	Identity common.Address
}

// ApproveArgs is the payload for ceremony.approve.
type ApproveArgs struct {
	Code     string
	Identity common.Address
}

// Facet implements the ceremony lifecycle operations.
type Facet struct {
	clock adapter.Clock
}

// New creates the ceremony facet.
func New(clock adapter.Clock) *Facet {
	return &Facet{clock: clock}
}

// Name identifies the facet in the router registry.
func (f *Facet) Name() string {
	return "ceremony"
}

// Handlers returns the operations the facet implements.
func (f *Facet) Handlers() map[domain.Operation]router.Handler {
	return map[domain.Operation]router.Handler{
		domain.OpStartCeremony:  f.start,
		domain.OpRequestEntry:   f.requestEntry,
		domain.OpApproveEntry:   f.approve,
		domain.OpConclude:       f.conclude,
		domain.OpCeremonyExists: f.exists,
		domain.OpEntryRequested: f.entryRequested,
		domain.OpEntryApproved:  f.entryApproved,
	}
}

func (f *Facet) start(_ context.Context, st *store.State, call *router.Call) (any, error) {
	sprint, ok := call.Args.(uint64)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	st.Config.CeremonyCounter++
	code := fmt.Sprintf("CER-%d-%d", sprint, st.Config.CeremonyCounter)

	// Counter-based generation makes a collision unreachable, but the check
	// stays: a silent overwrite would corrupt an existing ceremony.
	if _, exists := st.CeremonyByCode(code); exists {
		return nil, domain.ErrCeremonyAlreadyExists
	}

	c := &schema.Ceremony{
		Code:         code,
		Sprint:       sprint,
		StartTime:    f.clock.Now(),
		Organizer:    call.Caller,
		Active:       true,
		Entries:      make(map[common.Address]schema.Entry),
		GeneralVotes: make(map[common.Address]schema.Vote),
	}
	st.PutCeremony(c)

	if !st.HasRole(domain.RoleScrumMaster, call.Caller) {
		st.GrantRole(domain.RoleScrumMaster, call.Caller)
	}

	call.Emit(domain.NewEvent(domain.EventCeremonyStarted, domain.OpStartCeremony, call.Caller, map[string]string{
		"code":   code,
		"sprint": strconv.FormatUint(sprint, 10),
	}))
	return code, nil
}

func (f *Facet) requestEntry(_ context.Context, st *store.State, call *router.Call) (any, error) {
	code, ok := call.Args.(string)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, ok := st.CeremonyByCode(code)
	if !ok {
		return nil, domain.ErrCeremonyNotFound
	}
	// A concluded ceremony only ever serves reads.
	if !c.Active {
		return nil, domain.ErrCeremonyNotActive
	}
	if st.MembershipOf(call.Caller) == nil {
		return nil, domain.ErrMembershipRequired
	}
	entry := c.Entries[call.Caller]
	if entry.Requested {
		return nil, domain.ErrEntryAlreadyRequested
	}
	entry.Requested = true
	c.Entries[call.Caller] = entry

	call.Emit(domain.NewEvent(domain.EventEntryRequested, domain.OpRequestEntry, call.Caller, map[string]string{
		"code": code,
	}))
	return nil, nil
}

func (f *Facet) approve(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(ApproveArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, ok := st.CeremonyByCode(args.Code)
	if !ok {
		return nil, domain.ErrCeremonyNotFound
	}
	if err := RequireOrganizerOrAdmin(st, c, call.Caller); err != nil {
		return nil, err
	}
	// Admission after conclusion would grow the participant list under the
	// aggregation cursor and restart a vesting clock for nothing.
	if !c.Active {
		return nil, domain.ErrCeremonyNotActive
	}

	entry := c.Entries[args.Identity]
	if !entry.Requested {
		return nil, domain.ErrEntryNotRequested
	}
	if entry.Approved {
		return nil, domain.ErrParticipantAlreadyApproved
	}

	entry.Approved = true
	c.Entries[args.Identity] = entry
	c.Participants = append(c.Participants, args.Identity)

	// Every new approval restarts the vesting clock.
	if m := st.MembershipOf(args.Identity); m != nil {
		m.VestingStart = f.clock.Now()
	}

	call.Emit(domain.NewEvent(domain.EventEntryApproved, domain.OpApproveEntry, call.Caller, map[string]string{
		"code":     args.Code,
		"identity": args.Identity.Hex(),
	}))
	return nil, nil
}

func (f *Facet) conclude(_ context.Context, st *store.State, call *router.Call) (any, error) {
	code, ok := call.Args.(string)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, ok := st.CeremonyByCode(code)
	if !ok {
		return nil, domain.ErrCeremonyNotFound
	}
	if err := RequireOrganizerOrAdmin(st, c, call.Caller); err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, domain.ErrCeremonyNotActive
	}

	c.Active = false
	c.EndTime = f.clock.Now()

	call.Emit(domain.NewEvent(domain.EventCeremonyConcluded, domain.OpConclude, call.Caller, map[string]string{
		"code": code,
	}))
	return nil, nil
}

func (f *Facet) exists(_ context.Context, st *store.State, call *router.Call) (any, error) {
	code, ok := call.Args.(string)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	_, found := st.CeremonyByCode(code)
	return found, nil
}

func (f *Facet) entryRequested(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(EntryArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	return c.Entries[args.Identity].Requested, nil
}

func (f *Facet) entryApproved(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(EntryArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	return c.Entries[args.Identity].Approved, nil
}

// RequireOrganizerOrAdmin fails unless the caller organized the ceremony or
// holds ADMIN. Shared with the voting facet, which uses the same gate for
// feature sessions and badge aggregation.
func RequireOrganizerOrAdmin(st *store.State, c *schema.Ceremony, caller common.Address) error {
	if caller == c.Organizer || access.Has(st, domain.RoleAdmin, caller) {
		return nil
	}
	return domain.ErrNotAuthorized
}
