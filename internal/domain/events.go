package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType classifies an engine event.
type EventType string

const (
	EventInitialized          EventType = "initialized"
	EventExchangeRateUpdated  EventType = "exchange_rate_updated"
	EventVestingPeriodUpdated EventType = "vesting_period_updated"
	EventPaused               EventType = "paused"
	EventUnpaused             EventType = "unpaused"
	EventRoleGranted          EventType = "role_granted"
	EventRoleRevoked          EventType = "role_revoked"
	EventWithdrawal           EventType = "withdrawal"
	EventTokenWithdrawal      EventType = "token_withdrawal"
	EventContribution         EventType = "contribution"
	EventCeilingUpdated       EventType = "ceiling_updated"
	EventMembershipPurchased  EventType = "membership_purchased"
	EventRateStale            EventType = "rate_stale"
	EventSprintParticipation  EventType = "sprint_participation"
	EventCeremonyStarted      EventType = "ceremony_started"
	EventEntryRequested       EventType = "entry_requested"
	EventEntryApproved        EventType = "entry_approved"
	EventCeremonyConcluded    EventType = "ceremony_concluded"
	EventVoteCast             EventType = "vote_cast"
	EventFeatureVoteOpened    EventType = "feature_vote_opened"
	EventFeatureVoteCast      EventType = "feature_vote_cast"
	EventFeatureVoteClosed    EventType = "feature_vote_closed"
	EventBadgesUpdated        EventType = "badges_updated"
	EventFacetRegistered      EventType = "facet_registered"
)

// EngineEvent is the normalized notification emitted after every
// state-changing operation. This is the standard format published to NATS for
// the external indexer; delivery guarantees are the indexer's concern, the
// engine only emits.
type EngineEvent struct {
	ID         string            `json:"id"`         // unique event id
	Type       EventType         `json:"type"`       // event classification
	Operation  Operation         `json:"operation"`  // operation that produced the event
	Caller     common.Address    `json:"caller"`     // authenticated caller identity
	Attributes map[string]string `json:"attributes"` // key identities and values
	Timestamp  time.Time         `json:"timestamp"`  // engine-assigned emission time
}

// NewEvent creates an EngineEvent with a fresh id. The timestamp is assigned
// by the router at publish time so that all events of one dispatch share it.
func NewEvent(typ EventType, op Operation, caller common.Address, attrs map[string]string) EngineEvent {
	if attrs == nil {
		attrs = map[string]string{}
	}
	return EngineEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		Operation:  op,
		Caller:     caller,
		Attributes: attrs,
	}
}
