package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/lock"
	"github.com/lib/pq"
)

// Locker implements lock.Locker with transaction scoped advisory locks. Each
// held lock pins one pooled connection inside an open transaction; releasing
// the guard ends the transaction and with it the lock.
type Locker struct {
	client *Client
}

func NewLocker(client *Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) TryLock(ctx context.Context, key string) (lock.Guard, bool, error) {
	tx, err := l.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, false, ierr.WithError(err).
			WithHint("Failed to start lock transaction").
			Mark(ierr.ErrDatabase)
	}

	ok, err := tryLockKey(ctx, tx, key)
	if err != nil || !ok {
		_ = tx.Rollback()
		if isLockNotAvailable(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &txGuard{tx: tx}, true, nil
}

// tryLockKey tries acquiring the advisory lock immediately.
// Returns ok=false if the lock is already held.
func tryLockKey(ctx context.Context, tx *sql.Tx, key string) (bool, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pg_try_advisory_xact_lock(hashtext($1))
	`, key)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	if !rows.Next() {
		return false, rows.Err()
	}

	var ok bool
	if err := rows.Scan(&ok); err != nil {
		return false, err
	}

	return ok, nil
}

// isLockNotAvailable checks for PostgreSQL error 55P03 (lock_not_available).
func isLockNotAvailable(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "55P03"
	}

	return false
}

type txGuard struct {
	tx   *sql.Tx
	once sync.Once
	err  error
}

func (g *txGuard) Release(context.Context) error {
	g.once.Do(func() {
		if err := g.tx.Commit(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			g.err = ierr.WithError(err).
				WithHint("Failed to release advisory lock").
				Mark(ierr.ErrDatabase)
		}
	})
	return g.err
}
