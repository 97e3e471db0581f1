package schema

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FeaturePoints is one (feature code, points) pair inside a SprintResult.
type FeaturePoints struct {
	// FeatureCode is the display code of the feature vote session
	FeatureCode string `json:"feature_code"`
	// Points is the value the participant voted for this feature
	Points uint64 `json:"points"`
}

// SprintResult is the immutable snapshot appended to a membership record when
// a concluded ceremony's votes are rolled into badge history.
type SprintResult struct {
	// Sprint is the sprint number of the ceremony
	Sprint uint64 `json:"sprint"`
	// StartTime is when the ceremony started
	StartTime time.Time `json:"start_time"`
	// EndTime is when the ceremony concluded
	EndTime time.Time `json:"end_time"`
	// TotalPoints is the general vote plus every feature vote the participant cast
	TotalPoints uint64 `json:"total_points"`
	// Features lists the per-feature contributions
	Features []FeaturePoints `json:"features"`
}

// Clone returns a deep copy of the sprint result.
func (r SprintResult) Clone() SprintResult {
	out := r
	out.Features = append([]FeaturePoints(nil), r.Features...)
	return out
}

// Membership is the one-per-identity badge record. An identity owns zero or
// one membership units; id 0 is the "none" sentinel.
type Membership struct {
	// Owner is the identity holding the unit
	Owner common.Address
	// ID is the membership id, assigned from the membership counter
	ID uint64
	// VestingStart is reset to "now" on purchase and on every new ceremony approval
	VestingStart time.Time
	// DisplayName is the participant's display name
	DisplayName string
	// MetadataRef is an opaque external metadata reference, never interpreted by the engine
	MetadataRef string
	// CeremoniesParticipated counts concluded ceremonies rolled into history
	CeremoniesParticipated uint64
	// VotesCast counts every general and feature vote the identity ever cast
	VotesCast uint64
	// History is the append-only list of sprint results
	History []SprintResult
}

// Clone returns a deep copy of the membership record.
func (m *Membership) Clone() *Membership {
	if m == nil {
		return nil
	}
	out := *m
	out.History = make([]SprintResult, len(m.History))
	for i, r := range m.History {
		out.History[i] = r.Clone()
	}
	return &out
}
