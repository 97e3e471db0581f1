// Package voting implements the general estimate vote, per-feature vote
// sub-sessions, and the rollup of concluded ceremonies into badge history.
package voting

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/facet/ceremony"
	"github.com/agilemesh/ceremony-engine/internal/facet/membership"
	"github.com/agilemesh/ceremony-engine/internal/router"
	"github.com/agilemesh/ceremony-engine/internal/store"
	"github.com/agilemesh/ceremony-engine/internal/store/schema"
)

// VoteArgs is the payload for voting.vote.
type VoteArgs struct {
	Code  string
	Value uint64
}

// QueryArgs is the payload for the per-identity vote queries.
type QueryArgs struct {
	Code     string
	Identity common.Address
}

// FeatureArgs is the payload for voting.openFeatureVote.
type FeatureArgs struct {
	Code        string
	FeatureCode string
}

// FeatureVoteArgs is the payload for voting.voteFeature.
type FeatureVoteArgs struct {
	Code         string
	SessionIndex int
	Value        uint64
}

// SessionArgs is the payload for voting.closeFeatureVote and
// voting.sessionResults.
type SessionArgs struct {
	Code         string
	SessionIndex int
}

// UpdateBadgesArgs is the payload for voting.updateBadges. Limit bounds how
// many participants are processed in one call; zero means all remaining.
type UpdateBadgesArgs struct {
	Code  string
	Limit int
}

// ParticipantResult is one row of the derived per-ceremony result list.
type ParticipantResult struct {
	Identity    common.Address         `json:"identity"`
	TotalPoints uint64                 `json:"total_points"`
	Features    []schema.FeaturePoints `json:"features"`
}

// SessionResult is one row of the derived per-session result list.
type SessionResult struct {
	Identity common.Address `json:"identity"`
	Value    uint64         `json:"value"`
}

// Facet implements the voting operations.
type Facet struct {
	clock adapter.Clock
}

// New creates the voting facet.
func New(clock adapter.Clock) *Facet {
	return &Facet{clock: clock}
}

// Name identifies the facet in the router registry.
func (f *Facet) Name() string {
	return "voting"
}

// Handlers returns the operations the facet implements.
func (f *Facet) Handlers() map[domain.Operation]router.Handler {
	return map[domain.Operation]router.Handler{
		domain.OpVote:             f.vote,
		domain.OpHasVoted:         f.hasVoted,
		domain.OpGetVote:          f.getVote,
		domain.OpOpenFeatureVote:  f.openFeatureVote,
		domain.OpVoteFeature:      f.voteFeature,
		domain.OpCloseFeatureVote: f.closeFeatureVote,
		domain.OpUpdateBadges:     f.updateBadges,
		domain.OpParticipantTotal: f.participantTotal,
		domain.OpCeremonyResults:  f.ceremonyResults,
		domain.OpSessionResults:   f.sessionResults,
	}
}

// activeCeremony resolves a code and requires the ceremony to be active.
func activeCeremony(st *store.State, code string) (*schema.Ceremony, error) {
	c, ok := st.CeremonyByCode(code)
	if !ok {
		return nil, domain.ErrCeremonyNotFound
	}
	if !c.Active {
		return nil, domain.ErrCeremonyNotActive
	}
	return c, nil
}

// requireVoter checks the guards shared by the general and feature vote
// paths: admission, vesting, and the vote value bound.
func (f *Facet) requireVoter(st *store.State, c *schema.Ceremony, caller common.Address, value uint64) error {
	if !c.Entries[caller].Approved {
		return domain.ErrNotApproved
	}
	if !membership.Vested(st, caller, f.clock) {
		return domain.ErrNotVested
	}
	if value > domain.MaxVoteValue {
		return &domain.InvalidVoteValueError{Value: value, Max: domain.MaxVoteValue}
	}
	return nil
}

func (f *Facet) vote(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(VoteArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, err := activeCeremony(st, args.Code)
	if err != nil {
		return nil, err
	}
	if c.GeneralVotes[call.Caller].Cast {
		return nil, domain.ErrAlreadyVoted
	}
	if err := f.requireVoter(st, c, call.Caller, args.Value); err != nil {
		return nil, err
	}

	c.GeneralVotes[call.Caller] = schema.Vote{Cast: true, Value: args.Value}
	st.MembershipOf(call.Caller).VotesCast++

	call.Emit(domain.NewEvent(domain.EventVoteCast, domain.OpVote, call.Caller, map[string]string{
		"code":  args.Code,
		"value": strconv.FormatUint(args.Value, 10),
	}))
	return nil, nil
}

func (f *Facet) hasVoted(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(QueryArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	return c.GeneralVotes[args.Identity].Cast, nil
}

func (f *Facet) getVote(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(QueryArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	return c.GeneralVotes[args.Identity].Value, nil
}

func (f *Facet) openFeatureVote(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(FeatureArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, err := activeCeremony(st, args.Code)
	if err != nil {
		return nil, err
	}
	if err := ceremony.RequireOrganizerOrAdmin(st, c, call.Caller); err != nil {
		return nil, err
	}

	key := st.RegisterCode(args.FeatureCode)
	if c.SessionByKey(key) >= 0 {
		return nil, domain.ErrDuplicateFeatureSession
	}

	c.FeatureSessions = append(c.FeatureSessions, &schema.FeatureSession{
		FeatureCode: args.FeatureCode,
		Key:         key,
		Active:      true,
		Votes:       make(map[common.Address]schema.Vote),
	})
	index := len(c.FeatureSessions) - 1

	call.Emit(domain.NewEvent(domain.EventFeatureVoteOpened, domain.OpOpenFeatureVote, call.Caller, map[string]string{
		"code":          args.Code,
		"feature_code":  args.FeatureCode,
		"session_index": strconv.Itoa(index),
	}))
	return index, nil
}

func (f *Facet) voteFeature(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(FeatureVoteArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, err := activeCeremony(st, args.Code)
	if err != nil {
		return nil, err
	}
	if args.SessionIndex < 0 || args.SessionIndex >= len(c.FeatureSessions) {
		return nil, domain.ErrSessionNotFound
	}
	session := c.FeatureSessions[args.SessionIndex]
	if !session.Active {
		return nil, domain.ErrSessionClosed
	}
	if session.Votes[call.Caller].Cast {
		return nil, domain.ErrAlreadyVoted
	}
	if err := f.requireVoter(st, c, call.Caller, args.Value); err != nil {
		return nil, err
	}

	session.Votes[call.Caller] = schema.Vote{Cast: true, Value: args.Value}
	st.MembershipOf(call.Caller).VotesCast++

	call.Emit(domain.NewEvent(domain.EventFeatureVoteCast, domain.OpVoteFeature, call.Caller, map[string]string{
		"code":          args.Code,
		"session_index": strconv.Itoa(args.SessionIndex),
		"value":         strconv.FormatUint(args.Value, 10),
	}))
	return nil, nil
}

func (f *Facet) closeFeatureVote(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(SessionArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	if err := ceremony.RequireOrganizerOrAdmin(st, c, call.Caller); err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, domain.ErrCeremonyNotActive
	}
	if args.SessionIndex < 0 || args.SessionIndex >= len(c.FeatureSessions) {
		return nil, domain.ErrSessionNotFound
	}
	session := c.FeatureSessions[args.SessionIndex]
	if !session.Active {
		return nil, domain.ErrSessionClosed
	}

	session.Active = false

	call.Emit(domain.NewEvent(domain.EventFeatureVoteClosed, domain.OpCloseFeatureVote, call.Caller, map[string]string{
		"code":          args.Code,
		"session_index": strconv.Itoa(args.SessionIndex),
	}))
	return nil, nil
}

func (f *Facet) updateBadges(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(UpdateBadgesArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	if err := st.RequireCurrentVersion(); err != nil {
		return nil, err
	}

	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	if err := ceremony.RequireOrganizerOrAdmin(st, c, call.Caller); err != nil {
		return nil, err
	}
	if c.Active {
		return nil, domain.ErrCeremonyStillActive
	}
	if c.Aggregated {
		// A completed rollup cannot double-count; a ceremony with no
		// participants still aggregates exactly once.
		return nil, domain.ErrResultsAlreadyAggregated
	}

	end := len(c.Participants)
	if args.Limit > 0 && c.AggregatedThrough+args.Limit < end {
		end = c.AggregatedThrough + args.Limit
	}

	processed := 0
	for i := c.AggregatedThrough; i < end; i++ {
		participant := c.Participants[i]
		result := buildResult(c, participant)

		if m := st.MembershipOf(participant); m != nil {
			m.History = append(m.History, result)
			m.CeremoniesParticipated++
		}
		processed++
	}
	c.AggregatedThrough = end
	c.Aggregated = end == len(c.Participants)

	call.Emit(domain.NewEvent(domain.EventBadgesUpdated, domain.OpUpdateBadges, call.Caller, map[string]string{
		"code":      args.Code,
		"processed": strconv.Itoa(processed),
		"remaining": strconv.Itoa(len(c.Participants) - end),
	}))
	return processed, nil
}

// buildResult snapshots one participant's votes in a concluded ceremony.
func buildResult(c *schema.Ceremony, participant common.Address) schema.SprintResult {
	result := schema.SprintResult{
		Sprint:    c.Sprint,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
	}
	if v := c.GeneralVotes[participant]; v.Cast {
		result.TotalPoints += v.Value
	}
	for _, session := range c.FeatureSessions {
		if v := session.Votes[participant]; v.Cast {
			result.TotalPoints += v.Value
			result.Features = append(result.Features, schema.FeaturePoints{
				FeatureCode: session.FeatureCode,
				Points:      v.Value,
			})
		}
	}
	return result
}

func (f *Facet) participantTotal(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(QueryArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	return buildResult(c, args.Identity).TotalPoints, nil
}

func (f *Facet) ceremonyResults(_ context.Context, st *store.State, call *router.Call) (any, error) {
	code, ok := call.Args.(string)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	results := make([]ParticipantResult, 0, len(c.Participants))
	for _, participant := range c.Participants {
		r := buildResult(c, participant)
		results = append(results, ParticipantResult{
			Identity:    participant,
			TotalPoints: r.TotalPoints,
			Features:    r.Features,
		})
	}
	return results, nil
}

func (f *Facet) sessionResults(_ context.Context, st *store.State, call *router.Call) (any, error) {
	args, ok := call.Args.(SessionArgs)
	if !ok {
		return nil, domain.ErrInvalidArguments
	}
	c, found := st.CeremonyByCode(args.Code)
	if !found {
		return nil, domain.ErrCeremonyNotFound
	}
	if args.SessionIndex < 0 || args.SessionIndex >= len(c.FeatureSessions) {
		return nil, domain.ErrSessionNotFound
	}
	session := c.FeatureSessions[args.SessionIndex]
	results := make([]SessionResult, 0, len(c.Participants))
	for _, participant := range c.Participants {
		if v := session.Votes[participant]; v.Cast {
			results = append(results, SessionResult{Identity: participant, Value: v.Value})
		}
	}
	return results, nil
}
