package testutil

import (
	"context"
	"sync"

	"github.com/flexprice/entitlements/internal/domain/events"
)

// RecordingPublisher keeps published balance events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []*events.BalanceUpdated
	err    error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishBalanceUpdated(_ context.Context, event *events.BalanceUpdated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

// FailWith makes every following publish return err.
func (p *RecordingPublisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *RecordingPublisher) Events() []*events.BalanceUpdated {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.BalanceUpdated(nil), p.events...)
}
