// Package bridge consumes operation requests from the host environment over
// NATS JetStream and dispatches them to the router. The engine core stays
// transport-free; this is the host's delivery channel for serialized,
// identity-authenticated calls.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/facet/admin"
	"github.com/agilemesh/ceremony-engine/internal/facet/ceremony"
	"github.com/agilemesh/ceremony-engine/internal/facet/membership"
	"github.com/agilemesh/ceremony-engine/internal/facet/voting"
	"github.com/agilemesh/ceremony-engine/internal/logger"
	"github.com/agilemesh/ceremony-engine/internal/router"
)

// Config holds the configuration for the operations bridge
type Config struct {
	URL            string
	StreamName     string
	ConsumerName   string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	AckWaitTimeout time.Duration
	MaxDeliver     int
	OpsSubject     string
}

// OperationRequest is the wire form of one host call. The caller identity is
// authenticated by the host before the request reaches the stream.
type OperationRequest struct {
	Operation domain.Operation `json:"operation"`
	Caller    common.Address   `json:"caller"`
	// Value is the attached payment in base units, decimal string
	Value string          `json:"value,omitempty"`
	Args  json.RawMessage `json:"args,omitempty"`
}

// Bridge defines the interface for the operations bridge
type Bridge interface {
	// Run starts consuming operation requests
	Run(ctx context.Context) error
	// Close closes the bridge and cleans up resources
	Close()
}

type bridge struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	router *router.Router
	json   adapter.JSON
	config Config
}

// NewBridge creates a new operations bridge
func NewBridge(
	cfg Config,
	natsJS adapter.NatsJetStream,
	r *router.Router,
	jsonAdapter adapter.JSON,
) (Bridge, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &bridge{
		nc:     nc,
		js:     js,
		router: r,
		json:   jsonAdapter,
		config: cfg,
	}, nil
}

// Run starts consuming operation requests
func (b *bridge) Run(ctx context.Context) error {
	logger.Info("Starting operations bridge",
		zap.String("stream", b.config.StreamName),
		zap.String("consumer", b.config.ConsumerName))

	subject := b.config.OpsSubject + ".>"

	consumerConfig := jetstream.ConsumerConfig{
		Durable:       b.config.ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       b.config.AckWaitTimeout,
		MaxDeliver:    b.config.MaxDeliver,
		FilterSubject: subject,
	}

	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.config.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create/update consumer: %w", err)
	}

	msgChan := make(chan adapter.Message, 100)
	sub, err := consumer.Consume(func(msg adapter.Message) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	defer sub.Stop()

	logger.Info("Started consuming operation requests")

	// Requests are handled inline, never in parallel: the protocol is
	// serialized, atomic-per-operation.
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down operations bridge")
			return ctx.Err()
		case msg := <-msgChan:
			b.handleMessage(ctx, msg)
		}
	}
}

// handleMessage dispatches a single operation request
func (b *bridge) handleMessage(ctx context.Context, msg adapter.Message) {
	var req OperationRequest
	if err := b.json.Unmarshal(msg.Data(), &req); err != nil {
		logger.Error(err, zap.String("message", "Failed to unmarshal operation request"))
		// Terminate message for unparseable data
		if err := msg.Term(); err != nil {
			logger.Error(err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	call, err := b.buildCall(&req)
	if err != nil {
		logger.Error(err,
			zap.String("message", "Rejecting malformed operation request"),
			zap.String("operation", req.Operation.String()))
		if err := msg.Term(); err != nil {
			logger.Error(err, zap.String("message", "Failed to terminate message"))
		}
		return
	}

	if _, err := b.router.Dispatch(ctx, req.Operation, call); err != nil {
		// Operation failures are final: the state is unchanged and the host
		// learns the outcome from the absence of events. Redelivery would
		// just fail again.
		logger.Warn("Operation failed",
			zap.String("operation", req.Operation.String()),
			zap.String("caller", req.Caller.Hex()),
			zap.Error(err))
	} else {
		logger.Info("Operation applied",
			zap.String("operation", req.Operation.String()),
			zap.String("caller", req.Caller.Hex()))
	}

	if err := msg.Ack(); err != nil {
		logger.Error(err, zap.String("message", "Failed to ack message"))
	}
}

// buildCall converts the wire request into a typed router call.
func (b *bridge) buildCall(req *OperationRequest) (*router.Call, error) {
	var value *big.Int
	if req.Value != "" {
		v, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			return nil, fmt.Errorf("invalid value: %q", req.Value)
		}
		value = v
	}

	args, err := decodeArgs(req.Operation, req.Args)
	if err != nil {
		return nil, err
	}

	return &router.Call{Caller: req.Caller, Value: value, Args: args}, nil
}

// decodeArgs maps each operation's JSON payload to its typed arguments.
func decodeArgs(op domain.Operation, raw json.RawMessage) (any, error) {
	unmarshal := func(v any) error {
		if len(raw) == 0 {
			return fmt.Errorf("missing args for %s", op)
		}
		return json.Unmarshal(raw, v)
	}

	switch op {
	case domain.OpInitialize:
		var p struct {
			Rate          string         `json:"rate"`
			VestingPeriod string         `json:"vesting_period"`
			Admin         common.Address `json:"admin"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		rate, ok := new(big.Int).SetString(p.Rate, 10)
		if !ok {
			return nil, fmt.Errorf("invalid rate: %q", p.Rate)
		}
		period, err := time.ParseDuration(p.VestingPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid vesting period: %w", err)
		}
		return admin.InitializeArgs{Rate: rate, VestingPeriod: period, Admin: p.Admin}, nil

	case domain.OpUpdateExchangeRate:
		var p struct {
			Rate string `json:"rate"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		rate, ok := new(big.Int).SetString(p.Rate, 10)
		if !ok {
			return nil, fmt.Errorf("invalid rate: %q", p.Rate)
		}
		return rate, nil

	case domain.OpUpdateVestingPeriod:
		var p struct {
			Period string `json:"period"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		period, err := time.ParseDuration(p.Period)
		if err != nil {
			return nil, fmt.Errorf("invalid period: %w", err)
		}
		return period, nil

	case domain.OpWithdraw:
		var p struct {
			Destination common.Address `json:"destination"`
			Amount      string         `json:"amount"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return admin.WithdrawArgs{Destination: p.Destination, Amount: amount}, nil

	case domain.OpWithdrawToken:
		var p struct {
			Token       common.Address `json:"token"`
			Destination common.Address `json:"destination"`
			Amount      string         `json:"amount"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		amount, err := parseAmount(p.Amount)
		if err != nil {
			return nil, err
		}
		return admin.WithdrawTokenArgs{Token: p.Token, Destination: p.Destination, Amount: amount}, nil

	case domain.OpGrantRole, domain.OpRevokeRole, domain.OpHasRole:
		var p struct {
			Role     domain.Role    `json:"role"`
			Identity common.Address `json:"identity"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return admin.RoleArgs{Role: p.Role, Identity: p.Identity}, nil

	case domain.OpSetContributionCeiling:
		var p struct {
			Max string `json:"max"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		max, ok := new(big.Int).SetString(p.Max, 10)
		if !ok {
			return nil, fmt.Errorf("invalid max: %q", p.Max)
		}
		return max, nil

	case domain.OpPurchase:
		var p struct {
			DisplayName string `json:"display_name"`
			MetadataRef string `json:"metadata_ref"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return membership.PurchaseArgs{DisplayName: p.DisplayName, MetadataRef: p.MetadataRef}, nil

	case domain.OpMembershipOf, domain.OpIsVested, domain.OpBadgeHistory:
		var p struct {
			Identity common.Address `json:"identity"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return p.Identity, nil

	case domain.OpRecordSprintParticipation:
		var p struct {
			Identity     common.Address `json:"identity"`
			MembershipID uint64         `json:"membership_id"`
			Sprint       uint64         `json:"sprint"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return membership.ParticipationArgs{Identity: p.Identity, MembershipID: p.MembershipID, Sprint: p.Sprint}, nil

	case domain.OpStartCeremony:
		var p struct {
			Sprint uint64 `json:"sprint"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return p.Sprint, nil

	case domain.OpRequestEntry, domain.OpConclude, domain.OpCeremonyExists, domain.OpCeremonyResults:
		var p struct {
			Code string `json:"code"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return p.Code, nil

	case domain.OpApproveEntry:
		var p struct {
			Code     string         `json:"code"`
			Identity common.Address `json:"identity"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return ceremony.ApproveArgs{Code: p.Code, Identity: p.Identity}, nil

	case domain.OpEntryRequested, domain.OpEntryApproved:
		var p struct {
			Code     string         `json:"code"`
			Identity common.Address `json:"identity"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return ceremony.EntryArgs{Code: p.Code, Identity: p.Identity}, nil

	case domain.OpVote:
		var p struct {
			Code  string `json:"code"`
			Value uint64 `json:"value"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.VoteArgs{Code: p.Code, Value: p.Value}, nil

	case domain.OpHasVoted, domain.OpGetVote, domain.OpParticipantTotal:
		var p struct {
			Code     string         `json:"code"`
			Identity common.Address `json:"identity"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.QueryArgs{Code: p.Code, Identity: p.Identity}, nil

	case domain.OpOpenFeatureVote:
		var p struct {
			Code        string `json:"code"`
			FeatureCode string `json:"feature_code"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.FeatureArgs{Code: p.Code, FeatureCode: p.FeatureCode}, nil

	case domain.OpVoteFeature:
		var p struct {
			Code         string `json:"code"`
			SessionIndex int    `json:"session_index"`
			Value        uint64 `json:"value"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.FeatureVoteArgs{Code: p.Code, SessionIndex: p.SessionIndex, Value: p.Value}, nil

	case domain.OpCloseFeatureVote, domain.OpSessionResults:
		var p struct {
			Code         string `json:"code"`
			SessionIndex int    `json:"session_index"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.SessionArgs{Code: p.Code, SessionIndex: p.SessionIndex}, nil

	case domain.OpUpdateBadges:
		var p struct {
			Code  string `json:"code"`
			Limit int    `json:"limit"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return voting.UpdateBadgesArgs{Code: p.Code, Limit: p.Limit}, nil

	case domain.OpFacetOf:
		var p struct {
			Operation domain.Operation `json:"operation"`
		}
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return p.Operation, nil

	case domain.OpPause, domain.OpUnpause, domain.OpIsPaused, domain.OpExchangeRate,
		domain.OpOwner, domain.OpFacets:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown operation: %s", op)
	}
}

func parseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	return amount, nil
}

// Close closes the bridge and cleans up resources
func (b *bridge) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}
