package messaging

import (
	"context"

	"github.com/agilemesh/ceremony-engine/internal/domain"
)

// Publisher defines the interface for publishing engine events to the
// external indexer. The engine's obligation is emission, not delivery.
//
//go:generate mockgen -source=publisher.go -destination=../mocks/publisher.go -package=mocks -mock_names=Publisher=MockPublisher
type Publisher interface {
	// PublishEvent publishes one engine event to the message broker
	PublishEvent(ctx context.Context, event *domain.EngineEvent) error
	// Close closes the connection
	Close()
	// CloseChan returns a channel that is closed when the publisher is closed
	CloseChan() <-chan struct{}
}
