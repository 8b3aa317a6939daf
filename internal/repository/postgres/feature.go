package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/flexprice/entitlements/internal/domain/feature"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/postgres"
	"github.com/flexprice/entitlements/internal/types"
)

type featureRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

func NewFeatureRepository(client *postgres.Client, log *logger.Logger) feature.Repository {
	return &featureRepository{client: client, log: log}
}

func (r *featureRepository) Create(ctx context.Context, f *feature.Feature) error {
	if f == nil {
		return ierr.NewError("feature cannot be nil").
			WithHint("Feature cannot be nil").
			Mark(ierr.ErrValidation)
	}

	span := StartRepositorySpan(ctx, "feature", "create", map[string]interface{}{
		"feature_id": f.ID,
	})
	defer FinishSpan(span)

	if f.TenantID == "" {
		f.TenantID = types.GetTenantID(ctx)
	}
	if f.EnvironmentID == "" {
		f.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	record := f.ToRecord()
	data, err := json.Marshal(record)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to encode feature").
			Mark(ierr.ErrSystem)
	}

	_, err = r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO features (id, tenant_id, environment_id, type, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.ID, record.TenantID, record.EnvironmentID, string(record.Type), data,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		SetSpanError(span, err)
		if isUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("Feature with this ID already exists").
				WithReportableDetails(map[string]interface{}{"feature_id": f.ID}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create feature").
			WithReportableDetails(map[string]interface{}{"feature_id": f.ID}).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return nil
}

func (r *featureRepository) Get(ctx context.Context, id string) (*feature.Feature, error) {
	span := StartRepositorySpan(ctx, "feature", "get", map[string]interface{}{
		"feature_id": id,
	})
	defer FinishSpan(span)

	var data []byte
	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT data FROM features
		WHERE id = $1 AND tenant_id = $2 AND ($3 = '' OR environment_id = $3)`,
		id, types.GetTenantID(ctx), types.GetEnvironmentID(ctx),
	).Scan(&data)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Feature %s was not found", id).
				WithReportableDetails(map[string]interface{}{"feature_id": id}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to get feature %s", id).
			Mark(ierr.ErrDatabase)
	}

	SetSpanSuccess(span)
	return decodeFeature(data)
}

func (r *featureRepository) List(ctx context.Context) ([]*feature.Feature, error) {
	span := StartRepositorySpan(ctx, "feature", "list", nil)
	defer FinishSpan(span)

	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT data FROM features
		WHERE tenant_id = $1 AND ($2 = '' OR environment_id = $2)
		ORDER BY id`,
		types.GetTenantID(ctx), types.GetEnvironmentID(ctx),
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list features").
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

// ListCreditSystemsFor matches schema items with JSONB containment.
func (r *featureRepository) ListCreditSystemsFor(ctx context.Context, featureID string) ([]*feature.Feature, error) {
	span := StartRepositorySpan(ctx, "feature", "list_credit_systems_for", map[string]interface{}{
		"feature_id": featureID,
	})
	defer FinishSpan(span)

	containment, err := json.Marshal(map[string]interface{}{
		"schema": []map[string]string{{"metered_feature_id": featureID}},
	})
	if err != nil {
		return nil, ierr.WithError(err).Mark(ierr.ErrSystem)
	}

	rows, err := r.client.Querier(ctx).QueryContext(ctx, `
		SELECT data FROM features
		WHERE tenant_id = $1 AND ($2 = '' OR environment_id = $2)
			AND type = $3 AND id <> $4 AND data @> $5::jsonb
		ORDER BY id`,
		types.GetTenantID(ctx), types.GetEnvironmentID(ctx),
		string(types.FeatureTypeCreditSystem), featureID, string(containment),
	)
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list credit systems").
			WithReportableDetails(map[string]interface{}{"feature_id": featureID}).
			Mark(ierr.ErrDatabase)
	}
	defer rows.Close()

	return scanFeatures(rows)
}

func scanFeatures(rows *sql.Rows) ([]*feature.Feature, error) {
	out := make([]*feature.Feature, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, ierr.WithError(err).
				WithHint("Failed to read feature").
				Mark(ierr.ErrDatabase)
		}
		f, err := decodeFeature(data)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to read features").
			Mark(ierr.ErrDatabase)
	}
	return out, nil
}

func decodeFeature(data []byte) (*feature.Feature, error) {
	var record feature.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Stored feature could not be decoded").
			Mark(ierr.ErrInvalidEntitlementState)
	}
	return feature.FromRecord(&record)
}
