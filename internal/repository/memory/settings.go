package memory

import (
	"context"

	"github.com/flexprice/entitlements/internal/domain/settings"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
)

// SettingsStore implements settings.Repository in memory, keyed by tenant,
// environment and setting key.
type SettingsStore struct {
	*Store[*settings.Setting]
}

func NewSettingsStore() *SettingsStore {
	return &SettingsStore{Store: NewStore[*settings.Setting]()}
}

func settingKey(ctx context.Context, key types.SettingKey) string {
	return types.GetTenantID(ctx) + ":" + types.GetEnvironmentID(ctx) + ":" + string(key)
}

func (s *SettingsStore) GetByKey(ctx context.Context, key types.SettingKey) (*settings.Setting, error) {
	setting, err := s.Store.Get(ctx, settingKey(ctx, key))
	if err != nil {
		return nil, ierr.NewErrorf("setting %s not found", key).
			WithHint("Setting not found").
			Mark(ierr.ErrNotFound)
	}
	out := *setting
	out.Value = lo.Assign(map[string]interface{}{}, setting.Value)
	return &out, nil
}

func (s *SettingsStore) Upsert(ctx context.Context, setting *settings.Setting) error {
	if err := setting.Validate(); err != nil {
		return err
	}
	if setting.ID == "" {
		setting.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SETTING)
	}
	if setting.TenantID == "" {
		setting.BaseModel = types.GetDefaultBaseModel(ctx)
	}
	setting.EnvironmentID = types.GetEnvironmentID(ctx)

	stored := *setting
	stored.Value = lo.Assign(map[string]interface{}{}, setting.Value)
	s.Store.Upsert(ctx, settingKey(ctx, setting.Key), &stored)
	return nil
}
