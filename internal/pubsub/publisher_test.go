package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/flexprice/entitlements/internal/domain/events"
	"github.com/flexprice/entitlements/internal/domain/ledger"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balanceEvent() *events.BalanceUpdated {
	current := decimal.NewFromInt(42)
	return events.NewBalanceUpdated("tenant_a", "env_1", events.OperationDeduct, &ledger.BalanceSnapshot{
		CustomerID:     "cus_1",
		FeatureID:      "api_calls",
		CurrentBalance: &current,
	})
}

func TestEventPublisherOverGoChannel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps := NewMemoryPubSub(logger.NewNoopLogger())
	defer ps.Close()

	msgs, err := ps.Subscribe(ctx, "balance.updated")
	require.NoError(t, err)

	evt := balanceEvent()
	require.NoError(t, NewEventPublisher(ps, "", logger.NewNoopLogger()).PublishBalanceUpdated(ctx, evt))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, evt.ID, msg.UUID)
		assert.Equal(t, "tenant_a:cus_1", msg.Metadata.Get(MetadataPartitionKey))
		assert.Equal(t, events.EventBalanceUpdated, msg.Metadata.Get("event_type"))

		var got events.BalanceUpdated
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "api_calls", got.FeatureID)
		assert.Equal(t, events.OperationDeduct, got.Operation)
		assert.True(t, got.Balance.CurrentBalance.Equal(decimal.NewFromInt(42)))
	case <-ctx.Done():
		t.Fatal("balance event was not delivered")
	}
}

type failingPubSub struct{}

func (failingPubSub) Publish(context.Context, string, *message.Message) error {
	return errors.New("broker unavailable")
}

func (failingPubSub) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, nil
}

func (failingPubSub) Close() error { return nil }

func TestEventPublisherFailure(t *testing.T) {
	err := NewEventPublisher(failingPubSub{}, "topic", logger.NewNoopLogger()).
		PublishBalanceUpdated(context.Background(), balanceEvent())
	assert.True(t, ierr.IsSystem(err))
}

func TestNewPubSub(t *testing.T) {
	cfg := config.GetDefaultConfig()
	ps, err := NewPubSub(cfg, logger.NewNoopLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryPubSub{}, ps)
	require.NoError(t, ps.Close())

	cfg.Events.Publisher = "nats"
	_, err = NewPubSub(cfg, logger.NewNoopLogger())
	assert.True(t, ierr.IsValidation(err))
}
