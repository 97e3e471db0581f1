package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// CurrentSchemaVersion is the schema version this build of the engine
// understands. Mutating operations refuse to run against a store tagged with
// any other version.
const CurrentSchemaVersion uint64 = 1

const (
	// MaxVoteValue is the upper bound for a single estimate vote.
	MaxVoteValue uint64 = 100

	// RateFreshnessWindow is how long an exchange rate is considered fresh.
	// Purchases against a stale rate still succeed but emit a staleness event.
	RateFreshnessWindow = 24 * time.Hour

	// SentinelMembershipID marks "no membership". The first issued id is 1.
	SentinelMembershipID uint64 = 0
)

// Role is an opaque role tag. Role membership is flat set membership; an
// identity may hold several roles at once.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleScrumMaster  Role = "SCRUM_MASTER"
	RolePriceUpdater Role = "PRICE_UPDATER"
)

// Operation identifies a dispatchable engine operation. The router resolves
// every incoming call to exactly one facet by its Operation.
type Operation string

// Router-owned operations.
const (
	OpOwner                  Operation = "router.owner"
	OpFacets                 Operation = "router.facets"
	OpFacetOf                Operation = "router.facetOf"
	OpSetContributionCeiling Operation = "router.setContributionCeiling"
)

// Admin facet operations.
const (
	OpInitialize          Operation = "admin.initialize"
	OpUpdateExchangeRate  Operation = "admin.updateExchangeRate"
	OpExchangeRate        Operation = "admin.exchangeRate"
	OpPause               Operation = "admin.pause"
	OpUnpause             Operation = "admin.unpause"
	OpIsPaused            Operation = "admin.isPaused"
	OpUpdateVestingPeriod Operation = "admin.updateVestingPeriod"
	OpWithdraw            Operation = "admin.withdraw"
	OpWithdrawToken       Operation = "admin.withdrawToken"
	OpGrantRole           Operation = "admin.grantRole"
	OpRevokeRole          Operation = "admin.revokeRole"
	OpHasRole             Operation = "admin.hasRole"
)

// Membership facet operations.
const (
	OpPurchase                  Operation = "membership.purchase"
	OpMembershipOf              Operation = "membership.membershipOf"
	OpIsVested                  Operation = "membership.isVested"
	OpBadgeHistory              Operation = "membership.badgeHistory"
	OpRecordSprintParticipation Operation = "membership.recordSprintParticipation"
)

// Ceremony facet operations.
const (
	OpStartCeremony  Operation = "ceremony.start"
	OpRequestEntry   Operation = "ceremony.requestEntry"
	OpApproveEntry   Operation = "ceremony.approve"
	OpConclude       Operation = "ceremony.conclude"
	OpCeremonyExists Operation = "ceremony.exists"
	OpEntryRequested Operation = "ceremony.entryRequested"
	OpEntryApproved  Operation = "ceremony.entryApproved"
)

// Voting facet operations.
const (
	OpVote             Operation = "voting.vote"
	OpHasVoted         Operation = "voting.hasVoted"
	OpGetVote          Operation = "voting.getVote"
	OpOpenFeatureVote  Operation = "voting.openFeatureVote"
	OpVoteFeature      Operation = "voting.voteFeature"
	OpCloseFeatureVote Operation = "voting.closeFeatureVote"
	OpUpdateBadges     Operation = "voting.updateBadges"
	OpParticipantTotal Operation = "voting.participantTotal"
	OpCeremonyResults  Operation = "voting.ceremonyResults"
	OpSessionResults   Operation = "voting.sessionResults"
)

// String returns the string representation of the Operation.
func (o Operation) String() string {
	return string(o)
}

// ZeroAddress is the empty identity rejected by every validation path.
var ZeroAddress = common.Address{}

// IsZeroAddress reports whether an identity is the empty identity.
func IsZeroAddress(addr common.Address) bool {
	return addr == ZeroAddress
}
