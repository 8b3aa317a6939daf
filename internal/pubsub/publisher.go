package pubsub

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/entitlements/internal/domain/events"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
)

// EventPublisher publishes balance events to a single topic.
type EventPublisher interface {
	PublishBalanceUpdated(ctx context.Context, event *events.BalanceUpdated) error
}

type eventPublisher struct {
	pubSub PubSub
	topic  string
	log    *logger.Logger
}

func NewEventPublisher(pubSub PubSub, topic string, log *logger.Logger) EventPublisher {
	if topic == "" {
		topic = events.EventBalanceUpdated
	}
	return &eventPublisher{pubSub: pubSub, topic: topic, log: log}
}

func (p *eventPublisher) PublishBalanceUpdated(ctx context.Context, event *events.BalanceUpdated) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to marshal balance event").
			Mark(ierr.ErrValidation)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("tenant_id", event.TenantID)
	msg.Metadata.Set("environment_id", event.EnvironmentID)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set(MetadataPartitionKey, event.PartitionKey())

	p.log.Debugw("publishing balance event",
		"event_id", event.ID,
		"customer_id", event.CustomerID,
		"feature_id", event.FeatureID,
		"operation", event.Operation,
		"topic", p.topic,
	)

	if err := p.pubSub.Publish(ctx, p.topic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish balance event").
			Mark(ierr.ErrSystem)
	}
	return nil
}
