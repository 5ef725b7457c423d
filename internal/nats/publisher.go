package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher provides typed methods for publishing events to NATS JetStream.
// A nil *Publisher discards everything, which is how the service runs when
// NATS is not configured.
type Publisher struct {
	js streamPublisher
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishFreeTrialEvent publishes a free trial usage decision.
func (p *Publisher) PublishFreeTrialEvent(ctx context.Context, event FreeTrialEvent) error {
	return p.publish(ctx, SubjectFreeTrialEvent, event)
}

// PublishRetakeEvent publishes a retake decision.
func (p *Publisher) PublishRetakeEvent(ctx context.Context, event RetakeEvent) error {
	return p.publish(ctx, SubjectRetakeEvent, event)
}

// PublishAdminEvent publishes an administrative change.
func (p *Publisher) PublishAdminEvent(ctx context.Context, event AdminEvent) error {
	return p.publish(ctx, SubjectAdminEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	if p == nil || p.js == nil {
		return nil
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
