package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/flexprice/entitlements/internal/billing"
)

// FakeBilling is an in-memory billing.Collaborator that records every charge.
// It can be made to fail, or to block inside Charge until released so tests
// can hold a ledger lock open.
type FakeBilling struct {
	mu      sync.Mutex
	charges []*billing.Charge
	err     error

	blocking bool
	entered  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func NewFakeBilling() *FakeBilling {
	return &FakeBilling{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (f *FakeBilling) Charge(ctx context.Context, charge *billing.Charge) (*billing.ChargeResult, error) {
	f.mu.Lock()
	blocking, err := f.blocking, f.err
	f.mu.Unlock()

	if blocking {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges = append(f.charges, charge)
	return &billing.ChargeResult{
		ID:       fmt.Sprintf("ch_test_%d", len(f.charges)),
		Provider: "fake",
	}, nil
}

// FailWith makes every following charge return err.
func (f *FakeBilling) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Block makes every following charge wait until ReleaseAll is called.
func (f *FakeBilling) Block() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocking = true
}

// Entered signals once per charge that reached the provider while blocked.
func (f *FakeBilling) Entered() <-chan struct{} {
	return f.entered
}

// ReleaseAll unblocks every waiting and future charge.
func (f *FakeBilling) ReleaseAll() {
	f.once.Do(func() { close(f.release) })
}

// Charges returns the successful charges in call order.
func (f *FakeBilling) Charges() []*billing.Charge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*billing.Charge(nil), f.charges...)
}
