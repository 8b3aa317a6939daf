package ledger

import (
	"sort"
	"time"

	"github.com/flexprice/entitlements/internal/domain/entitlement"
	"github.com/flexprice/entitlements/internal/domain/price"
	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/shopspring/decimal"
)

// Rollover is unused balance carried over from an earlier period. Usage is the
// part already consumed, so Balance+Usage is the amount originally rolled.
type Rollover struct {
	ID        string          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Usage     decimal.Decimal `json:"usage"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Expired reports whether the rollover must be ignored at now.
func (r *Rollover) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// Replaceable is an allocated slot freed this period that was already paid for.
type Replaceable struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// EntityBalance is the balance of one sub-entity on an entity-scoped row.
type EntityBalance struct {
	Balance    decimal.Decimal `json:"balance"`
	Adjustment decimal.Decimal `json:"adjustment"`
}

// CustomerEntitlement is the live ledger row of one entitlement for one customer.
type CustomerEntitlement struct {
	ID                string `json:"id"`
	CustomerID        string `json:"customer_id"`
	CustomerProductID string `json:"customer_product_id"`
	ProductID         string `json:"product_id"`
	FeatureID         string `json:"feature_id"`
	// EntityID pins the row to one sub-entity; empty rows are customer wide.
	EntityID string `json:"entity_id,omitempty"`

	// Entitlement is the template snapshot taken when the product was attached.
	Entitlement entitlement.Entitlement `json:"entitlement"`
	Price       *price.Price            `json:"price,omitempty"`

	UsageAllowed    bool            `json:"usage_allowed"`
	PrepaidQuantity decimal.Decimal `json:"prepaid_quantity"`

	Balance      decimal.Decimal           `json:"balance"`
	Adjustment   decimal.Decimal           `json:"adjustment"`
	Entities     map[string]*EntityBalance `json:"entities,omitempty"`
	Rollovers    []*Rollover               `json:"rollovers,omitempty"`
	Replaceables []*Replaceable            `json:"replaceables,omitempty"`

	NextResetAt *time.Time                      `json:"next_reset_at,omitempty"`
	Status      types.CustomerEntitlementStatus `json:"status"`

	EnvironmentID string `json:"environment_id"`
	// Version increases on every persisted change.
	Version int64 `json:"version"`
	types.BaseModel
}

// Unlimited reports whether the row grants unlimited usage.
func (c *CustomerEntitlement) Unlimited() bool {
	return c.Entitlement.Unlimited
}

// EntityScoped reports whether balances are kept per sub-entity in Entities.
func (c *CustomerEntitlement) EntityScoped() bool {
	return c.Entitlement.EntityFeatureID != ""
}

// Purchased is the prepaid part of the reset balance.
func (c *CustomerEntitlement) Purchased() decimal.Decimal {
	if !c.PrepaidQuantity.IsPositive() {
		return decimal.Zero
	}
	return c.PrepaidQuantity.Mul(c.Price.GetBillingUnits())
}

// ResetBalance is the balance the row starts each period with.
func (c *CustomerEntitlement) ResetBalance() decimal.Decimal {
	return c.Entitlement.Allowance.Add(c.Purchased())
}

// MinBalance is the usage floor, or nil when the row has no usage limit.
func (c *CustomerEntitlement) MinBalance() *decimal.Decimal {
	if c.Entitlement.UsageLimit == nil {
		return nil
	}
	floor := c.ResetBalance().Sub(*c.Entitlement.UsageLimit)
	return &floor
}

// EntityIDs returns the sub-entity ids in deterministic order.
func (c *CustomerEntitlement) EntityIDs() []string {
	ids := make([]string, 0, len(c.Entities))
	for id := range c.Entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveRollovers returns the non-expired rollovers, oldest expiry first.
func (c *CustomerEntitlement) ActiveRollovers(now time.Time) []*Rollover {
	return SortRollovers(ActiveRollovers(c.Rollovers, now))
}

// Validate checks the integrity of a persisted row. Failures mean the stored
// data is corrupt and are never retried.
func (c *CustomerEntitlement) Validate() error {
	if c.ID == "" || c.CustomerID == "" || c.FeatureID == "" {
		return ierr.NewError("ledger row is missing identifiers").
			WithHint("Customer entitlement is missing its id, customer or feature").
			WithReportableDetails(map[string]interface{}{
				"id":          c.ID,
				"customer_id": c.CustomerID,
				"feature_id":  c.FeatureID,
			}).
			Mark(ierr.ErrInvalidEntitlementState)
	}
	if c.Unlimited() {
		return nil
	}
	if c.ResetBalance().IsNegative() {
		return ierr.NewError("negative reset balance").
			WithHintf("Customer entitlement %s has a negative reset balance", c.ID).
			WithReportableDetails(map[string]interface{}{
				"id":            c.ID,
				"reset_balance": c.ResetBalance().String(),
			}).
			Mark(ierr.ErrInvalidEntitlementState)
	}
	if c.Entitlement.UsageLimit != nil && c.Entitlement.UsageLimit.IsNegative() {
		return ierr.NewError("negative usage limit").
			WithHintf("Customer entitlement %s has a negative usage limit", c.ID).
			Mark(ierr.ErrInvalidEntitlementState)
	}
	for _, r := range c.Rollovers {
		if r == nil || r.Balance.IsNegative() || r.Usage.IsNegative() {
			return ierr.NewError("malformed rollover").
				WithHintf("Customer entitlement %s has a malformed rollover", c.ID).
				WithReportableDetails(map[string]interface{}{"id": c.ID}).
				Mark(ierr.ErrInvalidEntitlementState)
		}
	}
	return nil
}

// Clone returns a deep copy so a deduction can be computed without touching
// the loaded rows.
func (c *CustomerEntitlement) Clone() *CustomerEntitlement {
	if c == nil {
		return nil
	}
	out := *c
	if c.Entities != nil {
		out.Entities = make(map[string]*EntityBalance, len(c.Entities))
		for id, e := range c.Entities {
			eb := *e
			out.Entities[id] = &eb
		}
	}
	if c.Rollovers != nil {
		out.Rollovers = make([]*Rollover, len(c.Rollovers))
		for i, r := range c.Rollovers {
			rc := *r
			out.Rollovers[i] = &rc
		}
	}
	if c.Replaceables != nil {
		out.Replaceables = make([]*Replaceable, len(c.Replaceables))
		for i, r := range c.Replaceables {
			rc := *r
			out.Replaceables[i] = &rc
		}
	}
	if c.NextResetAt != nil {
		t := *c.NextResetAt
		out.NextResetAt = &t
	}
	return &out
}

// CloneAll deep-copies every row.
func CloneAll(rows []*CustomerEntitlement) []*CustomerEntitlement {
	out := make([]*CustomerEntitlement, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
