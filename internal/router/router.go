// Package router is the single entry surface of the engine. It maps every
// operation to exactly one registered facet, enforces the global pause gate
// at dispatch time, and makes each operation all-or-nothing by running it
// against a clone of the shared state.
package router

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/logger"
	"github.com/agilemesh/ceremony-engine/internal/messaging"
	"github.com/agilemesh/ceremony-engine/internal/store"
)

// Action selects what a Register call does to the routing table.
type Action int

const (
	// ActionAdd maps previously unowned operations to the facet
	ActionAdd Action = iota
	// ActionReplace remaps operations owned by a different facet
	ActionReplace
	// ActionRemove clears the mapping entries
	ActionRemove
)

// Handler executes one operation against the shared state. The state is
// passed in explicitly; facets never hold a reference of their own.
type Handler func(ctx context.Context, st *store.State, call *Call) (any, error)

// Facet is a swappable unit implementing a subset of operations over the
// shared state.
type Facet interface {
	// Name identifies the facet in the registry
	Name() string
	// Handlers returns the operations the facet implements
	Handlers() map[domain.Operation]Handler
}

// Call carries the authenticated caller identity, the attached payment, the
// operation arguments, and the events the operation emits.
type Call struct {
	// Caller is the authenticated identity supplied by the host environment
	Caller common.Address
	// Value is the payment attached to the call; nil means zero
	Value *big.Int
	// Args is the operation-specific argument payload
	Args any

	events []domain.EngineEvent
}

// Emit queues an event for publication. Events are published only after the
// whole operation succeeds.
func (c *Call) Emit(ev domain.EngineEvent) {
	c.events = append(c.events, ev)
}

// AttachedValue returns the attached payment, treating nil as zero.
func (c *Call) AttachedValue() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}

// FacetInfo describes one registry entry for introspection.
type FacetInfo struct {
	// Name is the facet's registry name
	Name string `json:"name"`
	// Operations lists the operations currently mapped to the facet
	Operations []domain.Operation `json:"operations"`
}

// Router dispatches operations to facets. Dispatch is serialized: one
// operation runs to completion before the next starts, which is the whole
// concurrency model of the engine.
type Router struct {
	mu sync.Mutex

	owner    common.Address
	state    *store.State
	routes   map[domain.Operation]string
	handlers map[domain.Operation]Handler
	order    []string
	exempt   map[domain.Operation]bool
	ceiling  *big.Int

	publisher messaging.Publisher
	clock     adapter.Clock
}

// pauseExempt is the fixed allow-list of operations that stay available
// while the engine is paused.
var pauseExempt = []domain.Operation{
	domain.OpUnpause,
	domain.OpWithdraw,
	domain.OpWithdrawToken,
	domain.OpIsPaused,
	domain.OpOwner,
	domain.OpExchangeRate,
	domain.OpSetContributionCeiling,
	domain.OpFacets,
	domain.OpFacetOf,
	domain.OpHasVoted,
	domain.OpGetVote,
	domain.OpMembershipOf,
	domain.OpIsVested,
	domain.OpBadgeHistory,
	domain.OpParticipantTotal,
}

// Config holds router construction parameters.
type Config struct {
	// Owner is the only identity allowed to change the routing table
	Owner common.Address
	// ContributionCeiling caps direct transfers; nil means no direct transfers
	ContributionCeiling *big.Int
}

// New creates a router over the given state. The router's own operations
// (owner query, introspection, contribution ceiling) are registered up front.
func New(cfg Config, st *store.State, pub messaging.Publisher, clock adapter.Clock) *Router {
	r := &Router{
		owner:     cfg.Owner,
		state:     st,
		routes:    make(map[domain.Operation]string),
		handlers:  make(map[domain.Operation]Handler),
		exempt:    make(map[domain.Operation]bool, len(pauseExempt)),
		ceiling:   new(big.Int),
		publisher: pub,
		clock:     clock,
	}
	if cfg.ContributionCeiling != nil {
		r.ceiling.Set(cfg.ContributionCeiling)
	}
	for _, op := range pauseExempt {
		r.exempt[op] = true
	}
	r.registerBuiltin()
	return r
}

const builtinFacetName = "router"

func (r *Router) registerBuiltin() {
	builtin := map[domain.Operation]Handler{
		domain.OpOwner: func(_ context.Context, _ *store.State, _ *Call) (any, error) {
			return r.owner, nil
		},
		domain.OpFacets: func(_ context.Context, _ *store.State, _ *Call) (any, error) {
			return r.facetInfos(), nil
		},
		domain.OpFacetOf: func(_ context.Context, _ *store.State, call *Call) (any, error) {
			op, ok := call.Args.(domain.Operation)
			if !ok {
				return nil, domain.ErrInvalidArguments
			}
			return r.routes[op], nil
		},
		domain.OpSetContributionCeiling: func(_ context.Context, _ *store.State, call *Call) (any, error) {
			max, ok := call.Args.(*big.Int)
			if !ok || max == nil {
				return nil, domain.ErrInvalidArguments
			}
			if call.Caller != r.owner {
				return nil, domain.ErrNotOwner
			}
			r.ceiling.Set(max)
			call.Emit(domain.NewEvent(domain.EventCeilingUpdated, domain.OpSetContributionCeiling, call.Caller, map[string]string{
				"max": max.String(),
			}))
			return nil, nil
		},
	}
	for op, h := range builtin {
		r.routes[op] = builtinFacetName
		r.handlers[op] = h
	}
	r.order = append(r.order, builtinFacetName)
}

// Register changes the routing table. All three actions are restricted to
// the router's owner. Adding requires every operation to be unowned;
// replacing requires it to be owned by a different facet; removing clears
// the entries.
func (r *Router) Register(caller common.Address, facet Facet, ops []domain.Operation, action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.owner {
		return domain.ErrNotOwner
	}

	name := facet.Name()
	handlers := facet.Handlers()

	for _, op := range ops {
		owner, owned := r.routes[op]
		switch action {
		case ActionAdd:
			if owned {
				return &domain.RegistrationError{Op: op, Reason: "already owned by " + owner}
			}
		case ActionReplace:
			if !owned {
				return &domain.RegistrationError{Op: op, Reason: "not registered"}
			}
			if owner == name {
				return &domain.RegistrationError{Op: op, Reason: "already owned by " + name}
			}
		case ActionRemove:
			if !owned {
				return &domain.RegistrationError{Op: op, Reason: "not registered"}
			}
		}
		if action != ActionRemove {
			if _, ok := handlers[op]; !ok {
				return &domain.RegistrationError{Op: op, Reason: "facet " + name + " does not implement it"}
			}
		}
	}

	for _, op := range ops {
		switch action {
		case ActionAdd, ActionReplace:
			r.routes[op] = name
			r.handlers[op] = handlers[op]
		case ActionRemove:
			delete(r.routes, op)
			delete(r.handlers, op)
		}
	}

	if action != ActionRemove && !r.knownFacet(name) {
		r.order = append(r.order, name)
	}
	return nil
}

func (r *Router) knownFacet(name string) bool {
	for _, n := range r.order {
		if n == name {
			return true
		}
	}
	return false
}

// Dispatch resolves an operation and forwards the call, propagating the
// facet's result or failure unchanged. It is the single choke point for
// pause enforcement; no facet re-checks the pause flag.
func (r *Router) Dispatch(ctx context.Context, op domain.Operation, call *Call) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state.Config.Paused && !r.exempt[op] {
		return nil, domain.ErrSystemPaused
	}

	handler, ok := r.handlers[op]
	if !ok {
		return nil, &domain.OperationNotRegisteredError{Op: op}
	}

	// Run against a clone so a failing operation discards every pending
	// write in one step.
	working := r.state.Clone()
	result, err := handler(ctx, working, call)
	if err != nil {
		return nil, err
	}
	r.state = working

	r.publish(ctx, call)
	return result, nil
}

// Receive accepts a direct value transfer carrying no operation identifier,
// up to the configured ceiling.
func (r *Router) Receive(ctx context.Context, caller common.Address, value *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value == nil {
		value = new(big.Int)
	}
	if value.Cmp(r.ceiling) > 0 {
		return &domain.ContributionTooLargeError{
			Sent: new(big.Int).Set(value),
			Max:  new(big.Int).Set(r.ceiling),
		}
	}
	if err := r.state.RequireCurrentVersion(); err != nil {
		return err
	}

	working := r.state.Clone()
	working.Treasury.Balance.Add(working.Treasury.Balance, value)
	r.state = working

	call := &Call{Caller: caller, Value: value}
	call.Emit(domain.NewEvent(domain.EventContribution, "", caller, map[string]string{
		"amount": value.String(),
	}))
	r.publish(ctx, call)
	return nil
}

// State returns the current shared state. Read-only callers outside the
// dispatch path (composition, tests) use this; facets always receive the
// state through their handler.
func (r *Router) State() *store.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Owner returns the router's owner identity.
func (r *Router) Owner() common.Address {
	return r.owner
}

// ContributionCeiling returns the current direct-transfer ceiling.
func (r *Router) ContributionCeiling() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.ceiling)
}

// Facets returns the ordered facet registry for introspection.
func (r *Router) Facets() []FacetInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facetInfos()
}

// FacetOf returns the name of the facet owning an operation, or the empty
// string if the operation is unmapped.
func (r *Router) FacetOf(op domain.Operation) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[op]
}

func (r *Router) facetInfos() []FacetInfo {
	infos := make([]FacetInfo, 0, len(r.order))
	for _, name := range r.order {
		info := FacetInfo{Name: name}
		for op, owner := range r.routes {
			if owner == name {
				info.Operations = append(info.Operations, op)
			}
		}
		// Map iteration order is random; keep the output stable.
		sort.Slice(info.Operations, func(i, j int) bool {
			return info.Operations[i] < info.Operations[j]
		})
		infos = append(infos, info)
	}
	return infos
}

func (r *Router) publish(ctx context.Context, call *Call) {
	if r.publisher == nil || len(call.events) == 0 {
		return
	}
	now := r.clock.Now()
	for i := range call.events {
		call.events[i].Timestamp = now
		if err := r.publisher.PublishEvent(ctx, &call.events[i]); err != nil {
			logger.Warn("failed to publish engine event",
				zap.String("event_type", string(call.events[i].Type)),
				zap.Error(err))
		}
	}
	call.events = nil
}
