package ceremony_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/facet/ceremony"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

var (
	adminAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	organizerAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	memberAddr    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	strangerAddr  = common.HexToAddress("0x4444444444444444444444444444444444444444")
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
	facet *ceremony.Facet
	clock *stubClock
	state *store.State
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clock := &stubClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := store.New()
	st.InitializeIfEmpty(clock.now)
	st.Config.Initialized = true
	st.Config.VestingPeriod = 24 * time.Hour
	st.GrantRole(domain.RoleAdmin, adminAddr)
	st.Memberships[memberAddr] = &schema.Membership{Owner: memberAddr, ID: 1, VestingStart: clock.now}
	return &fixture{
		facet: ceremony.New(clock),
		clock: clock,
		state: st,
	}
}

func (f *fixture) call(op domain.Operation, caller common.Address, args any) (any, error) {
	handler := f.facet.Handlers()[op]
	return handler(context.Background(), f.state, &router.Call{Caller: caller, Args: args})
}

// started creates one active ceremony and returns its code.
func (f *fixture) started(t *testing.T, sprint uint64) string {
	t.Helper()
	out, err := f.call(domain.OpStartCeremony, organizerAddr, sprint)
	require.NoError(t, err)
	return out.(string)
}

func TestStart(t *testing.T) {
	f := setup(t)

	code := f.started(t, 7)
	assert.Equal(t, "CER-7-1", code)

	c, ok := f.state.CeremonyByCode(code)
	require.True(t, ok)
	assert.Equal(t, uint64(7), c.Sprint)
	assert.Equal(t, organizerAddr, c.Organizer)
	assert.True(t, c.Active)
	assert.Equal(t, f.clock.now, c.StartTime)
	assert.True(t, f.state.HasRole(domain.RoleScrumMaster, organizerAddr))

	// The counter is global, so codes stay unique across sprints
	assert.Equal(t, "CER-7-2", f.started(t, 7))
	assert.Equal(t, "CER-8-3", f.started(t, 8))
	assert.Len(t, f.state.CeremonyOrder, 3)
}

func TestRequestEntry(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	_, err := f.call(domain.OpRequestEntry, memberAddr, "CER-9-9")
	assert.ErrorIs(t, err, domain.ErrCeremonyNotFound)

	_, err = f.call(domain.OpRequestEntry, strangerAddr, code)
	assert.ErrorIs(t, err, domain.ErrMembershipRequired)

	_, err = f.call(domain.OpRequestEntry, memberAddr, code)
	require.NoError(t, err)

	c, _ := f.state.CeremonyByCode(code)
	assert.True(t, c.Entries[memberAddr].Requested)
	assert.False(t, c.Entries[memberAddr].Approved)

	_, err = f.call(domain.OpRequestEntry, memberAddr, code)
	assert.ErrorIs(t, err, domain.ErrEntryAlreadyRequested)
}

func TestApprove(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	// Approval requires a prior request
	_, err := f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	assert.ErrorIs(t, err, domain.ErrEntryNotRequested)

	_, err = f.call(domain.OpRequestEntry, memberAddr, code)
	require.NoError(t, err)

	// Only the organizer or an admin may approve
	_, err = f.call(domain.OpApproveEntry, strangerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	f.clock.now = f.clock.now.Add(time.Hour)
	_, err = f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)

	c, _ := f.state.CeremonyByCode(code)
	assert.True(t, c.Entries[memberAddr].Approved)
	assert.Equal(t, []common.Address{memberAddr}, c.Participants)

	// Approval restarts the vesting clock
	assert.Equal(t, f.clock.now, f.state.MembershipOf(memberAddr).VestingStart)

	_, err = f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	assert.ErrorIs(t, err, domain.ErrParticipantAlreadyApproved)
}

func TestApprove_AdminMayApprove(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	_, err := f.call(domain.OpRequestEntry, memberAddr, code)
	require.NoError(t, err)

	_, err = f.call(domain.OpApproveEntry, adminAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	assert.NoError(t, err)
}

func TestConclude(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	_, err := f.call(domain.OpConclude, strangerAddr, code)
	assert.ErrorIs(t, err, domain.ErrNotAuthorized)

	f.clock.now = f.clock.now.Add(2 * time.Hour)
	_, err = f.call(domain.OpConclude, organizerAddr, code)
	require.NoError(t, err)

	c, _ := f.state.CeremonyByCode(code)
	assert.False(t, c.Active)
	assert.Equal(t, f.clock.now, c.EndTime)

	// Conclusion is irreversible
	_, err = f.call(domain.OpConclude, organizerAddr, code)
	assert.ErrorIs(t, err, domain.ErrCeremonyNotActive)
}

func TestConcludedCeremonyRejectsAdmission(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	secondAddr := common.HexToAddress("0x5555555555555555555555555555555555555555")
	f.state.Memberships[secondAddr] = &schema.Membership{Owner: secondAddr, ID: 2, VestingStart: f.clock.now}

	_, err := f.call(domain.OpRequestEntry, memberAddr, code)
	require.NoError(t, err)
	_, err = f.call(domain.OpRequestEntry, secondAddr, code)
	require.NoError(t, err)
	_, err = f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)

	_, err = f.call(domain.OpConclude, organizerAddr, code)
	require.NoError(t, err)

	c, _ := f.state.CeremonyByCode(code)
	participantsBefore := len(c.Participants)
	vestingBefore := f.state.MembershipOf(secondAddr).VestingStart

	thirdAddr := common.HexToAddress("0x6666666666666666666666666666666666666666")
	f.state.Memberships[thirdAddr] = &schema.Membership{Owner: thirdAddr, ID: 3, VestingStart: f.clock.now}
	_, err = f.call(domain.OpRequestEntry, thirdAddr, code)
	assert.ErrorIs(t, err, domain.ErrCeremonyNotActive)

	// A pending request cannot be approved once the ceremony is concluded,
	// even by the organizer: the participant list and the requester's
	// vesting clock must stay frozen.
	f.clock.now = f.clock.now.Add(time.Hour)
	_, err = f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: secondAddr})
	assert.ErrorIs(t, err, domain.ErrCeremonyNotActive)

	c, _ = f.state.CeremonyByCode(code)
	assert.Len(t, c.Participants, participantsBefore)
	assert.False(t, c.Entries[secondAddr].Approved)
	assert.Equal(t, vestingBefore, f.state.MembershipOf(secondAddr).VestingStart)
}

func TestQueries(t *testing.T) {
	f := setup(t)
	code := f.started(t, 1)

	out, err := f.call(domain.OpCeremonyExists, strangerAddr, code)
	require.NoError(t, err)
	assert.True(t, out.(bool))

	out, err = f.call(domain.OpCeremonyExists, strangerAddr, "CER-9-9")
	require.NoError(t, err)
	assert.False(t, out.(bool))

	_, err = f.call(domain.OpEntryRequested, strangerAddr, ceremony.EntryArgs{Code: "CER-9-9", Identity: memberAddr})
	assert.ErrorIs(t, err, domain.ErrCeremonyNotFound)

	out, err = f.call(domain.OpEntryRequested, strangerAddr, ceremony.EntryArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)
	assert.False(t, out.(bool))

	_, err = f.call(domain.OpRequestEntry, memberAddr, code)
	require.NoError(t, err)

	out, err = f.call(domain.OpEntryRequested, strangerAddr, ceremony.EntryArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)
	assert.True(t, out.(bool))

	out, err = f.call(domain.OpEntryApproved, strangerAddr, ceremony.EntryArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)
	assert.False(t, out.(bool))

	_, err = f.call(domain.OpApproveEntry, organizerAddr, ceremony.ApproveArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)

	out, err = f.call(domain.OpEntryApproved, strangerAddr, ceremony.EntryArgs{Code: code, Identity: memberAddr})
	require.NoError(t, err)
	assert.True(t, out.(bool))
}
