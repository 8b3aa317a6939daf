package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/entitlements/internal/config"
	ierr "github.com/flexprice/entitlements/internal/errors"
	ikafka "github.com/flexprice/entitlements/internal/kafka"
	"github.com/flexprice/entitlements/internal/logger"
)

const MetadataPartitionKey = "partition_key"

// KafkaPubSub publishes to kafka, keying messages by their partition_key metadata.
type KafkaPubSub struct {
	publisher  *kafka.Publisher
	subscriber *kafka.Subscriber
}

func NewKafkaPubSub(cfg *config.Configuration, log *logger.Logger) (*KafkaPubSub, error) {
	saramaConfig := ikafka.GetSaramaConfig(cfg)
	marshaler := kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		return msg.Metadata.Get(MetadataPartitionKey), nil
	})
	wlog := newWatermillLogger(log)

	publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               cfg.Kafka.Brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: saramaConfig,
	}, wlog)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka publisher").
			Mark(ierr.ErrSystem)
	}

	subscriber, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Kafka.Brokers,
		Unmarshaler:           marshaler,
		OverwriteSaramaConfig: saramaConfig,
		ConsumerGroup:         cfg.Kafka.ClientID,
	}, wlog)
	if err != nil {
		_ = publisher.Close()
		return nil, ierr.WithError(err).
			WithHint("Failed to create kafka subscriber").
			Mark(ierr.ErrSystem)
	}

	log.Infow("kafka pubsub ready", "brokers", cfg.Kafka.Brokers, "client_id", cfg.Kafka.ClientID)
	return &KafkaPubSub{publisher: publisher, subscriber: subscriber}, nil
}

func (k *KafkaPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return k.publisher.Publish(topic, msg)
}

func (k *KafkaPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return k.subscriber.Subscribe(ctx, topic)
}

func (k *KafkaPubSub) Close() error {
	pubErr := k.publisher.Close()
	if err := k.subscriber.Close(); err != nil {
		return err
	}
	return pubErr
}
