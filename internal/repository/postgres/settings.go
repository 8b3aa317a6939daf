package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/flexprice/entitlements/internal/domain/settings"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/logger"
	"github.com/flexprice/entitlements/internal/postgres"
	"github.com/flexprice/entitlements/internal/types"
)

type settingsRepository struct {
	client *postgres.Client
	log    *logger.Logger
}

func NewSettingsRepository(client *postgres.Client, log *logger.Logger) settings.Repository {
	return &settingsRepository{client: client, log: log}
}

func (r *settingsRepository) GetByKey(ctx context.Context, key types.SettingKey) (*settings.Setting, error) {
	span := StartRepositorySpan(ctx, "settings", "get_by_key", map[string]interface{}{
		"key": key,
	})
	defer FinishSpan(span)

	var (
		s     settings.Setting
		value []byte
	)
	err := r.client.Querier(ctx).QueryRowContext(ctx, `
		SELECT id, tenant_id, environment_id, key, value, created_at, updated_at
		FROM settings
		WHERE tenant_id = $1 AND environment_id = $2 AND key = $3`,
		types.GetTenantID(ctx), types.GetEnvironmentID(ctx), string(key),
	).Scan(&s.ID, &s.TenantID, &s.EnvironmentID, &s.Key, &value, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHintf("Setting %s not found", key).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHintf("Failed to get setting %s", key).
			Mark(ierr.ErrDatabase)
	}

	if err := json.Unmarshal(value, &s.Value); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHintf("Setting %s has an invalid value", key).
			Mark(ierr.ErrValidation)
	}
	s.Status = types.StatusPublished

	SetSpanSuccess(span)
	return &s, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, s *settings.Setting) error {
	if err := s.Validate(); err != nil {
		return err
	}

	span := StartRepositorySpan(ctx, "settings", "upsert", map[string]interface{}{
		"key": s.Key,
	})
	defer FinishSpan(span)

	if s.ID == "" {
		s.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SETTING)
	}
	if s.TenantID == "" {
		s.BaseModel = types.GetDefaultBaseModel(ctx)
	}
	s.EnvironmentID = types.GetEnvironmentID(ctx)

	value, err := json.Marshal(s.Value)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to encode setting value").
			Mark(ierr.ErrValidation)
	}

	_, err = r.client.Querier(ctx).ExecContext(ctx, `
		INSERT INTO settings (id, tenant_id, environment_id, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, environment_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.TenantID, s.EnvironmentID, string(s.Key), value, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHintf("Failed to save setting %s", s.Key).
			Mark(ierr.ErrDatabase)
	}

	r.log.Infow("setting saved", "key", s.Key, "tenant_id", s.TenantID, "environment_id", s.EnvironmentID)
	SetSpanSuccess(span)
	return nil
}
