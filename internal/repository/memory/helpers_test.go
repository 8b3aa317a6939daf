package memory

import (
	"github.com/flexprice/entitlements/internal/domain/settings"
	"github.com/flexprice/entitlements/internal/types"
)

func settingsFixture(order string) *settings.Setting {
	return &settings.Setting{
		Key:   types.SettingKeyLedgerConfig,
		Value: map[string]interface{}{"deduction_order": order},
	}
}
