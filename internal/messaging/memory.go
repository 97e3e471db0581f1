package messaging

import (
	"context"
	"sync"

	"github.com/agilemesh/ceremony-engine/internal/domain"
)

// MemoryPublisher records events in memory. It backs tests and embedded
// deployments that run without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []domain.EngineEvent
	closed chan struct{}
	once   sync.Once
}

// NewMemoryPublisher creates an in-memory event recorder.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{closed: make(chan struct{})}
}

// PublishEvent appends the event to the in-memory log.
func (p *MemoryPublisher) PublishEvent(_ context.Context, event *domain.EngineEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, *event)
	return nil
}

// Events returns a copy of every recorded event.
func (p *MemoryPublisher) Events() []domain.EngineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.EngineEvent(nil), p.events...)
}

// EventsOfType returns recorded events matching the given type.
func (p *MemoryPublisher) EventsOfType(typ domain.EventType) []domain.EngineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.EngineEvent
	for _, ev := range p.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Close marks the publisher closed.
func (p *MemoryPublisher) Close() {
	p.once.Do(func() { close(p.closed) })
}

// CloseChan returns a channel closed when the publisher is closed.
func (p *MemoryPublisher) CloseChan() <-chan struct{} {
	return p.closed
}
