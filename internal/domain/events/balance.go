package events

import (
	"time"

	"github.com/flexprice/entitlements/internal/domain/ledger"
	"github.com/flexprice/entitlements/internal/types"
)

const EventBalanceUpdated = "balance.updated"

// BalanceOperation names the mutation that produced a balance event.
type BalanceOperation string

const (
	OperationDeduct         BalanceOperation = "deduct"
	OperationSetBalance     BalanceOperation = "set_balance"
	OperationSetUsage       BalanceOperation = "set_usage"
	OperationQuantityChange BalanceOperation = "quantity_change"
	OperationReset          BalanceOperation = "reset"
	OperationProductSwitch  BalanceOperation = "product_switch"
)

// BalanceUpdated is published after a ledger mutation commits.
type BalanceUpdated struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"`
	TenantID      string                  `json:"tenant_id"`
	EnvironmentID string                  `json:"environment_id"`
	CustomerID    string                  `json:"customer_id"`
	FeatureID     string                  `json:"feature_id"`
	EntityID      string                  `json:"entity_id,omitempty"`
	Operation     BalanceOperation        `json:"operation"`
	Balance       *ledger.BalanceSnapshot `json:"balance,omitempty"`
	Timestamp     time.Time               `json:"timestamp"`
}

func NewBalanceUpdated(tenantID, environmentID string, op BalanceOperation, snap *ledger.BalanceSnapshot) *BalanceUpdated {
	return &BalanceUpdated{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		Type:          EventBalanceUpdated,
		TenantID:      tenantID,
		EnvironmentID: environmentID,
		CustomerID:    snap.CustomerID,
		FeatureID:     snap.FeatureID,
		EntityID:      snap.EntityID,
		Operation:     op,
		Balance:       snap,
		Timestamp:     time.Now().UTC(),
	}
}

// PartitionKey keeps every event of one customer on the same partition.
func (e *BalanceUpdated) PartitionKey() string {
	return e.TenantID + ":" + e.CustomerID
}
