package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flexprice/entitlements/internal/domain/ledger"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/postgres"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/lib/pq"
	"github.com/samber/lo"
)

type ledgerRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

// NewLedgerRepository stores ledger rows in customer_entitlements. Indexed
// columns are kept next to the full row in the data JSONB column.
func NewLedgerRepository(client *postgres.Client, log *logger.Logger) ledger.Repository {
	return &ledgerRepository{client: client, log: log}
}

const ledgerColumns = `data, version`

func (r *ledgerRepository) Create(ctx context.Context, row *ledger.CustomerEntitlement) error {
	if row == nil {
		return ierr.NewError("customer entitlement cannot be nil").
			WithHint("Customer entitlement cannot be nil").
			Mark(ierr.ErrValidation)
	}

	span := StartRepositorySpan(ctx, "customer_entitlement", "create", map[string]interface{}{
		"customer_entitlement_id": row.ID,
		"feature_id":              row.FeatureID,
	})
	defer FinishSpan(span)

	if row.TenantID == "" {
		row.TenantID = types.GetTenantID(ctx)
	}
	if row.EnvironmentID == "" {
		row.EnvironmentID = types.GetEnvironmentID(ctx)
	}
	if row.Version == 0 {
		row.Version = 1
	}

	data, err := json.Marshal(row)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to encode customer entitlement").
			Mark(ierr.ErrSystem)
	}

	r.log.Debugw("creating customer entitlement",
		"customer_entitlement_id", row.ID,
		"customer_id", row.CustomerID,
		"feature_id", row.FeatureID,
	)

	_, err = r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO customer_entitlements (
			id, tenant_id, environment_id, customer_id, customer_product_id,
			feature_id, entity_id, status, next_reset_at, version, data, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.ID, row.TenantID, row.EnvironmentID, row.CustomerID, row.CustomerProductID,
		row.FeatureID, row.EntityID, string(row.Status), nullTime(row.NextResetAt), row.Version, data,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		SetSpanError(span, err)
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Customer entitlement already exists").
				WithReportableDetails(map[string]interface{}{"id": row.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create customer entitlement").
			WithReportableDetails(map[string]interface{}{"id": row.ID}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *ledgerRepository) Get(ctx context.Context, id string) (*ledger.CustomerEntitlement, error) {
	span := StartRepositorySpan(ctx, "customer_entitlement", "get", map[string]interface{}{
		"customer_entitlement_id": id,
	})
	defer FinishSpan(span)

	row := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM customer_entitlements
		WHERE id = $1 AND tenant_id = $2 AND ($3 = '' OR environment_id = $3)`,
		id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx),
	)

	ce, err := scanLedgerRow(row)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Customer entitlement %s was not found", id).
				WithReportableDetails(map[string]interface{}{"id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to get customer entitlement %s", id).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return ce, nil
}

func (r *ledgerRepository) List(ctx context.Context, filter *ledger.Filter) ([]*ledger.CustomerEntitlement, error) {
	if filter == nil {
		filter = &ledger.Filter{}
	}

	span := StartRepositorySpan(ctx, "customer_entitlement", "list", map[string]interface{}{
		"customer_id": filter.CustomerID,
		"feature_ids": filter.FeatureIDs,
	})
	defer FinishSpan(span)

	query, args := buildLedgerListQuery(ctx, filter)
	rows, err := r.client.Querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list customer entitlements").
			WithReportableDetails(map[string]interface{}{"customer_id": filter.CustomerID}).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	out, err := scanLedgerRows(rows)
	if err != nil {
		SetSpanError(span, err)
		return nil, err
	}

	SetSpanSuccess(span)
	return out, nil
}

func buildLedgerListQuery(ctx context.Context, filter *ledger.Filter) (string, []interface{}) {
	conditions := []string{"tenant_id = $1", "($2 = '' OR environment_id = $2)"}
	args := []interface{}{types.GetTenantID(ctx), types.GetEnvironmentID(ctx)}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if len(filter.FeatureIDs) > 0 {
		add("feature_id = ANY($%d)", pq.Array(filter.FeatureIDs))
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(statusStrings(filter.Statuses)))
	}
	if filter.CustomerProductID != "" {
		add("customer_product_id = $%d", filter.CustomerProductID)
	}

	query := `SELECT ` + ledgerColumns + ` FROM customer_entitlements WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at, id`
	return query, args
}

// Save writes every row in one transaction. A row whose stored version moved
// since it was read aborts the whole batch with a lock contention error.
func (r *ledgerRepository) Save(ctx context.Context, rows []*ledger.CustomerEntitlement) error {
	if len(rows) == 0 {
		return nil
	}

	span := StartRepositorySpan(ctx, "customer_entitlement", "save", map[string]interface{}{
		"count": len(rows),
	})
	defer FinishSpan(span)

	now := time.Now().UTC()
	userID := types.GetUserID(ctx)

	err := r.client.WithTx(ctx, func(ctx context.Context) error {
		for _, row := range rows {
			next := *row
			next.Version = row.Version + 1
			next.UpdatedAt = now
			next.UpdatedBy = userID

			data, err := json.Marshal(&next)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to encode customer entitlement").
					Mark(ierr.ErrSystem)
			}

			res, err := r.client.Querier(ctx).ExecContext(ctx, `
				UPDATE customer_entitlements
				SET data = $1, status = $2, next_reset_at = $3, version = version + 1, updated_at = $4
				WHERE id = $5 AND tenant_id = $6 AND version = $7`,
				data, string(row.Status), nullTime(row.NextResetAt), now,
				row.ID, row.TenantID, row.Version,
			)
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to update customer entitlement").
					WithReportableDetails(map[string]interface{}{"id": row.ID}).
					Mark(ierr.ErrDatabase)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return ierr.WithError(err).
					WithHint("Failed to update customer entitlement").
					Mark(ierr.ErrDatabase)
			}
			if affected == 0 {
				return ierr.NewErrorf("customer entitlement %s was modified concurrently", row.ID).
					WithHint("Balance changed while the request was running, please retry").
					WithReportableDetails(map[string]interface{}{
						"id":               row.ID,
						"expected_version": row.Version,
					}).
					Mark(ierr.ErrLockContention)
			}
		}
		return nil
	})
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	for _, row := range rows {
		row.Version++
		row.UpdatedAt = now
		row.UpdatedBy = userID
	}

	SetSpanSuccess(span)
	return nil
}

// ListDueForReset scans every tenant; the reset job sets the tenant per row.
func (r *ledgerRepository) ListDueForReset(ctx context.Context, now time.Time, limit int) ([]*ledger.CustomerEntitlement, error) {
	span := StartRepositorySpan(ctx, "customer_entitlement", "list_due_for_reset", map[string]interface{}{
		"limit": limit,
	})
	defer FinishSpan(span)

	if limit <= 0 {
		limit = 1000
	}

	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT `+ledgerColumns+` FROM customer_entitlements
		WHERE next_reset_at IS NOT NULL AND next_reset_at <= $1
			AND status = ANY($2)
			AND COALESCE((data->'entitlement'->>'unlimited')::boolean, false) = false
		ORDER BY next_reset_at
		LIMIT $3`,
		now, pq.Array(statusStrings(types.DefaultStatusFilter)), limit,
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list customer entitlements due for reset").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	out, err := scanLedgerRows(rows)
	if err != nil {
		SetSpanError(span, err)
		return nil, err
	}

	SetSpanSuccess(span)
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLedgerRow(s rowScanner) (*ledger.CustomerEntitlement, error) {
	var (
		data    []byte
		version int64
	)
	if err := s.Scan(&data, &version); err != nil {
		return nil, err
	}

	var ce ledger.CustomerEntitlement
	if err := json.Unmarshal(data, &ce); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stored customer entitlement could not be decoded").
			Mark(ierr.ErrInvalidEntitlementState)
	}
	ce.Version = version
	return &ce, nil
}

func scanLedgerRows(rows *sql.Rows) ([]*ledger.CustomerEntitlement, error) {
	out := make([]*ledger.CustomerEntitlement, 0)
	for rows.Next() {
		ce, err := scanLedgerRow(rows)
		if err != nil {
			if ierr.IsInvalidEntitlementState(err) {
				return nil, err
			}
			return nil, ierr.WithError(err).
				WithHint("Failed to read customer entitlement").
				Mark(ierr.ErrDatabase)
		}
		out = append(out, ce)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read customer entitlements").
			Mark(ierr.ErrDatabase)
	}
	return out, nil
}

func statusStrings(statuses []types.CustomerEntitlementStatus) []string {
	return lo.Map(statuses, func(s types.CustomerEntitlementStatus, _ int) string {
		return string(s)
	})
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation checks for PostgreSQL error 23505 (unique_violation).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
