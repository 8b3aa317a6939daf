package pubsub

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/flexprice/entitlements/internal/logger"
)

// MemoryPubSub delivers messages in process. Messages published before a
// subscriber exists are dropped.
type MemoryPubSub struct {
	ch *gochannel.GoChannel
}

func NewMemoryPubSub(log *logger.Logger) *MemoryPubSub {
	return &MemoryPubSub{
		ch: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, newWatermillLogger(log)),
	}
}

func (m *MemoryPubSub) Publish(ctx context.Context, topic string, msg *message.Message) error {
	msg.SetContext(ctx)
	return m.ch.Publish(topic, msg)
}

func (m *MemoryPubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return m.ch.Subscribe(ctx, topic)
}

func (m *MemoryPubSub) Close() error {
	return m.ch.Close()
}
