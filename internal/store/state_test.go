package store_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

func TestState_InitializeIfEmpty(t *testing.T) {
	st := store.New()
	assert.Equal(t, uint64(0), st.Version)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.InitializeIfEmpty(now)
	assert.Equal(t, uint64(domain.CurrentSchemaVersion), st.Version)
	assert.Equal(t, now, st.InitializedAt)

	// Idempotent: a second call must not touch the timestamp
	later := now.Add(time.Hour)
	st.InitializeIfEmpty(later)
	assert.Equal(t, now, st.InitializedAt)
}

func TestState_RequireCurrentVersion(t *testing.T) {
	tests := []struct {
		name    string
		version uint64
		wantErr error
	}{
		{
			name:    "uninitialized",
			version: 0,
			wantErr: domain.ErrStorageNotInitialized,
		},
		{
			name:    "current version",
			version: domain.CurrentSchemaVersion,
			wantErr: nil,
		},
		{
			name:    "future version",
			version: domain.CurrentSchemaVersion + 1,
			wantErr: &domain.VersionMismatchError{Expected: domain.CurrentSchemaVersion, Actual: domain.CurrentSchemaVersion + 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.New()
			st.Version = tt.version
			err := st.RequireCurrentVersion()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestHashCode(t *testing.T) {
	a := store.HashCode("CER-1-1")
	b := store.HashCode("CER-1-1")
	c := store.HashCode("CER-1-2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestState_PutCeremony(t *testing.T) {
	st := store.New()

	first := &schema.Ceremony{
		Code:         "CER-1-1",
		Entries:      make(map[common.Address]schema.Entry),
		GeneralVotes: make(map[common.Address]schema.Vote),
	}
	st.PutCeremony(first)

	got, ok := st.CeremonyByCode("CER-1-1")
	require.True(t, ok)
	assert.Equal(t, first, got)
	assert.Equal(t, store.HashCode("CER-1-1"), got.Key)
	assert.Equal(t, "CER-1-1", st.CodeIndex[got.Key])
	assert.Len(t, st.CeremonyOrder, 1)

	// Re-putting the same code must not grow the order slice
	st.PutCeremony(first)
	assert.Len(t, st.CeremonyOrder, 1)

	second := &schema.Ceremony{
		Code:         "CER-1-2",
		Entries:      make(map[common.Address]schema.Entry),
		GeneralVotes: make(map[common.Address]schema.Vote),
	}
	st.PutCeremony(second)
	assert.Equal(t, []common.Hash{first.Key, second.Key}, st.CeremonyOrder)
}

func TestState_Roles(t *testing.T) {
	st := store.New()
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	assert.False(t, st.HasRole(domain.RoleAdmin, addr))

	st.GrantRole(domain.RoleAdmin, addr)
	assert.True(t, st.HasRole(domain.RoleAdmin, addr))
	assert.False(t, st.HasRole(domain.RoleScrumMaster, addr))

	st.RevokeRole(domain.RoleAdmin, addr)
	assert.False(t, st.HasRole(domain.RoleAdmin, addr))
}

func TestState_Clone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	voter := common.HexToAddress("0x2222222222222222222222222222222222222222")

	st := store.New()
	st.InitializeIfEmpty(now)
	st.Config.ExchangeRate = big.NewInt(100)
	st.Treasury.Balance = big.NewInt(500)
	st.GrantRole(domain.RoleAdmin, addr)
	st.Memberships[addr] = &schema.Membership{
		Owner:        addr,
		ID:           1,
		VestingStart: now,
		History: []schema.SprintResult{{
			Sprint:      3,
			TotalPoints: 8,
			Features:    []schema.FeaturePoints{{FeatureCode: "FEAT-1", Points: 8}},
		}},
	}
	st.PutCeremony(&schema.Ceremony{
		Code:         "CER-3-1",
		Sprint:       3,
		Active:       true,
		Entries:      map[common.Address]schema.Entry{voter: {Requested: true, Approved: true}},
		GeneralVotes: map[common.Address]schema.Vote{voter: {Cast: true, Value: 5}},
		FeatureSessions: []*schema.FeatureSession{{
			FeatureCode: "FEAT-1",
			Active:      true,
			Votes:       map[common.Address]schema.Vote{voter: {Cast: true, Value: 3}},
		}},
		Participants: []common.Address{voter},
	})

	clone := st.Clone()

	// Mutate the clone in every region
	clone.Config.ExchangeRate.SetInt64(999)
	clone.Treasury.Balance.SetInt64(0)
	clone.RevokeRole(domain.RoleAdmin, addr)
	clone.Memberships[addr].History[0].TotalPoints = 0
	clone.Memberships[addr].History[0].Features[0].Points = 0
	cloned, ok := clone.CeremonyByCode("CER-3-1")
	require.True(t, ok)
	cloned.Active = false
	cloned.GeneralVotes[voter] = schema.Vote{}
	cloned.FeatureSessions[0].Votes[voter] = schema.Vote{}
	cloned.Participants[0] = addr

	// The original must be untouched
	assert.Equal(t, int64(100), st.Config.ExchangeRate.Int64())
	assert.Equal(t, int64(500), st.Treasury.Balance.Int64())
	assert.True(t, st.HasRole(domain.RoleAdmin, addr))
	assert.Equal(t, uint64(8), st.Memberships[addr].History[0].TotalPoints)
	assert.Equal(t, uint64(8), st.Memberships[addr].History[0].Features[0].Points)

	orig, ok := st.CeremonyByCode("CER-3-1")
	require.True(t, ok)
	assert.True(t, orig.Active)
	assert.True(t, orig.GeneralVotes[voter].Cast)
	assert.True(t, orig.FeatureSessions[0].Votes[voter].Cast)
	assert.Equal(t, voter, orig.Participants[0])
}
