// Package lock provides the non-blocking per-feature lock that serializes
// ledger read-modify-write cycles.
package lock

import (
	"context"

	ierr "github.com/flexprice/entitlements/internal/errors"
)

// Guard is a held lock. Release is safe to call more than once.
type Guard interface {
	Release(ctx context.Context) error
}

// Locker acquires locks without waiting. ok is false when another holder has
// the key; err is reserved for backend failures.
type Locker interface {
	TryLock(ctx context.Context, key string) (guard Guard, ok bool, err error)
}

// Acquire tries key once and turns a held lock into ErrLockContention so
// callers can retry.
func Acquire(ctx context.Context, locker Locker, key string) (Guard, error) {
	guard, ok, err := locker.TryLock(ctx, key)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to acquire ledger lock").
			WithReportableDetails(map[string]interface{}{"key": key}).
			Mark(ierr.ErrSystem)
	}
	if !ok {
		return nil, ierr.NewErrorf("lock %s is held", key).
			WithHint("Another request is updating this balance, please retry").
			WithReportableDetails(map[string]interface{}{"key": key}).
			Mark(ierr.ErrLockContention)
	}
	return guard, nil
}
