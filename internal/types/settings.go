package types

import (
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/validator"
	"github.com/samber/lo"
)

// SettingConfig defines the interface for setting configuration validation
type SettingConfig interface {
	Validate() error
}

type SettingKey string

const (
	SettingKeyLedgerConfig SettingKey = "ledger_config"
)

func (s *SettingKey) Validate() error {
	allowedKeys := []SettingKey{
		SettingKeyLedgerConfig,
	}

	if !lo.Contains(allowedKeys, *s) {
		return ierr.NewErrorf("invalid setting key: %s", *s).
			WithHint("Please provide a valid setting key").
			WithReportableDetails(map[string]interface{}{
				"allowed": allowedKeys,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// LedgerConfig is the per tenant/environment ledger policy.
type LedgerConfig struct {
	DeductionOrder         DeductionOrder  `json:"deduction_order" validate:"required"`
	DefaultOverageBehavior OverageBehavior `json:"default_overage_behavior" validate:"required"`
	BlockUsageLimit        bool            `json:"block_usage_limit"`
}

// Validate implements SettingConfig interface
func (c LedgerConfig) Validate() error {
	if err := validator.ValidateRequest(c); err != nil {
		return err
	}
	if err := c.DeductionOrder.Validate(); err != nil {
		return err
	}
	return c.DefaultOverageBehavior.Validate()
}

// DefaultLedgerConfig is used when a tenant has not stored a ledger_config setting.
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		DeductionOrder:         DeductionOrderNormal,
		DefaultOverageBehavior: OverageBehaviorCap,
		BlockUsageLimit:        true,
	}
}

// LedgerConfigFromMap decodes a stored setting value, filling missing keys from
// the defaults.
func LedgerConfigFromMap(value map[string]interface{}) (LedgerConfig, error) {
	cfg := DefaultLedgerConfig()
	if value == nil {
		return cfg, nil
	}
	if v, ok := value["deduction_order"].(string); ok && v != "" {
		cfg.DeductionOrder = DeductionOrder(v)
	}
	if v, ok := value["default_overage_behavior"].(string); ok && v != "" {
		cfg.DefaultOverageBehavior = OverageBehavior(v)
	}
	if v, ok := value["block_usage_limit"].(bool); ok {
		cfg.BlockUsageLimit = v
	}
	if err := cfg.Validate(); err != nil {
		return LedgerConfig{}, err
	}
	return cfg, nil
}

// ToMap is the inverse of LedgerConfigFromMap.
func (c LedgerConfig) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"deduction_order":          string(c.DeductionOrder),
		"default_overage_behavior": string(c.DefaultOverageBehavior),
		"block_usage_limit":        c.BlockUsageLimit,
	}
}
