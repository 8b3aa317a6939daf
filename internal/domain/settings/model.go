package settings

import (
	"context"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
)

// Setting is a JSON document stored under a well-known key for one tenant
// environment. The ledger reads its tenant overrides from here.
type Setting struct {
	ID            string                 `json:"id"`
	Key           types.SettingKey       `json:"key"`
	Value         map[string]interface{} `json:"value"`
	EnvironmentID string                 `json:"environment_id"`
	types.BaseModel
}

// Validate checks the key is known and the value decodes for that key.
func (s *Setting) Validate() error {
	if err := s.Key.Validate(); err != nil {
		return err
	}
	if s.Value == nil {
		return ierr.NewErrorf("setting %s has no value", s.Key).
			WithHint("Setting value is required").
			Mark(ierr.ErrValidation)
	}
	if s.Key == types.SettingKeyLedgerConfig {
		if _, err := types.LedgerConfigFromMap(s.Value); err != nil {
			return err
		}
	}
	return nil
}

func (s *Setting) ToLedgerConfig() (types.LedgerConfig, error) {
	if s.Key != types.SettingKeyLedgerConfig {
		return types.LedgerConfig{}, ierr.NewErrorf("setting %s is not a ledger config", s.Key).
			Mark(ierr.ErrInvalidOperation)
	}
	return types.LedgerConfigFromMap(s.Value)
}

// Repository stores settings per tenant and environment, both taken from ctx.
type Repository interface {
	GetByKey(ctx context.Context, key types.SettingKey) (*Setting, error)
	Upsert(ctx context.Context, s *Setting) error
}
