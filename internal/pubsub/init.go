package pubsub

import (
	"github.com/flexprice/entitlements/internal/config"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
)

const (
	PublisherGoChannel = "gochannel"
	PublisherKafka     = "kafka"
)

// NewPubSub picks the transport configured under events.publisher.
func NewPubSub(cfg *config.Configuration, log *logger.Logger) (PubSub, error) {
	switch cfg.Events.Publisher {
	case "", PublisherGoChannel:
		return NewMemoryPubSub(log), nil
	case PublisherKafka:
		return NewKafkaPubSub(cfg, log)
	default:
		return nil, ierr.NewErrorf("unknown events publisher %q", cfg.Events.Publisher).
			WithHint("Events publisher must be gochannel or kafka").
			Mark(ierr.ErrValidation)
	}
}
