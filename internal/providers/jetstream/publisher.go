package jetstream

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/agilemesh/ceremony-engine/internal/adapter"
	"github.com/agilemesh/ceremony-engine/internal/domain"
	"github.com/agilemesh/ceremony-engine/internal/logger"
	"github.com/agilemesh/ceremony-engine/internal/messaging"
)

// Config holds the configuration for the NATS JetStream connection.
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	// PublishMaxElapsed bounds the total publish retry time; zero disables
	// retries
	PublishMaxElapsed time.Duration
}

type publisher struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	config Config
	json   adapter.JSON
	closed chan struct{}
}

// NewPublisher creates a new NATS JetStream publisher for engine events.
func NewPublisher(cfg Config, natsJS adapter.NatsJetStream, jsonAdapter adapter.JSON) (messaging.Publisher, error) {
	closed := make(chan struct{})

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
			select {
			case <-closed:
			default:
				close(closed)
			}
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	return &publisher{
		nc:     nc,
		js:     js,
		config: cfg,
		json:   jsonAdapter,
		closed: closed,
	}, nil
}

// PublishEvent publishes one engine event to NATS JetStream, retrying
// transient failures with exponential backoff.
func (p *publisher) PublishEvent(ctx context.Context, event *domain.EngineEvent) error {
	logger.Debug("Publishing engine event", zap.Any("event", event))

	data, err := p.json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := p.buildSubject(event)

	operation := func() error {
		_, err := p.js.Publish(ctx, subject, data)
		return err
	}

	if p.config.PublishMaxElapsed <= 0 {
		if err := operation(); err != nil {
			return fmt.Errorf("failed to publish event: %w", err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.config.PublishMaxElapsed
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("Publish failed, retrying",
			zap.Error(err),
			zap.String("subject", subject),
			zap.Duration("next_retry_in", next))
	}); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// buildSubject constructs the NATS subject based on the event.
func (p *publisher) buildSubject(event *domain.EngineEvent) string {
	// Format: ceremony.events.{event_type}
	// e.g., ceremony.events.vote_cast, ceremony.events.membership_purchased
	return fmt.Sprintf("ceremony.events.%s", event.Type)
}

// Close closes the NATS connection.
func (p *publisher) Close() {
	if p.nc == nil {
		return
	}

	p.nc.Close()
}

// CloseChan returns a channel that is closed when the connection closes.
func (p *publisher) CloseChan() <-chan struct{} {
	return p.closed
}
