package schema

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Entry tracks the per-(ceremony, identity) admission flags. Both flags are
// one-way transitions, false to true only.
type Entry struct {
	// Requested is set once by the identity itself
	Requested bool
	// Approved is set once by the organizer or an admin
	Approved bool
}

// Vote is a single cast vote. Set once, never overwritten.
type Vote struct {
	// Cast marks that the vote was recorded
	Cast bool
	// Value is the estimate value
	Value uint64
}

// FeatureSession is one feature vote sub-session within a ceremony. Sessions
// form an ordered, append-only list; a closed session cannot be reopened.
type FeatureSession struct {
	// FeatureCode is the display code of the feature under vote
	FeatureCode string
	// Key is the canonical hash of the feature code
	Key common.Hash
	// Active is cleared exactly once when the session closes
	Active bool
	// Votes holds the per-identity votes for this session
	Votes map[common.Address]Vote
}

// Clone returns a deep copy of the feature session.
func (s *FeatureSession) Clone() *FeatureSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Votes = make(map[common.Address]Vote, len(s.Votes))
	for k, v := range s.Votes {
		out.Votes[k] = v
	}
	return &out
}

// Ceremony is one sprint-planning session. The canonical key is the hash of
// the code; the code string is retained for display.
type Ceremony struct {
	// Code is the unique display code
	Code string
	// Key is the canonical hash of the code
	Key common.Hash
	// Sprint is the sprint number
	Sprint uint64
	// StartTime is when the ceremony was created
	StartTime time.Time
	// EndTime is zero until the ceremony concludes
	EndTime time.Time
	// Organizer is the scrum master who created the ceremony
	Organizer common.Address
	// Active is cleared exactly once on conclude
	Active bool
	// Participants is the ordered list of admitted identities, no duplicates
	Participants []common.Address
	// Entries holds the per-identity request/approval flags
	Entries map[common.Address]Entry
	// GeneralVotes holds the per-identity general estimate votes
	GeneralVotes map[common.Address]Vote
	// FeatureSessions is the ordered, append-only list of feature vote sessions
	FeatureSessions []*FeatureSession
	// AggregatedThrough is the badge-aggregation cursor into Participants;
	// equal to len(Participants) once every badge has been rolled up
	AggregatedThrough int
	// Aggregated is set once the cursor has covered every participant,
	// including the empty ceremony where the cursor alone cannot tell a
	// finished rollup from an unstarted one
	Aggregated bool
}

// Clone returns a deep copy of the ceremony.
func (c *Ceremony) Clone() *Ceremony {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]common.Address(nil), c.Participants...)
	out.Entries = make(map[common.Address]Entry, len(c.Entries))
	for k, v := range c.Entries {
		out.Entries[k] = v
	}
	out.GeneralVotes = make(map[common.Address]Vote, len(c.GeneralVotes))
	for k, v := range c.GeneralVotes {
		out.GeneralVotes[k] = v
	}
	out.FeatureSessions = make([]*FeatureSession, len(c.FeatureSessions))
	for i, s := range c.FeatureSessions {
		out.FeatureSessions[i] = s.Clone()
	}
	return &out
}

// SessionByKey returns the index of the feature session with the given
// canonical key, or -1 if none exists.
func (c *Ceremony) SessionByKey(key common.Hash) int {
	for i, s := range c.FeatureSessions {
		if s.Key == key {
			return i
		}
	}
	return -1
}
