package feature

import (
	"context"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Kind is the closed set of feature kinds: BooleanKind, MeteredKind and
// CreditSystemKind. Callers switch on the concrete type.
type Kind interface {
	Type() types.FeatureType
	sealed()
}

// BooleanKind features are either on or off; they never carry a balance.
type BooleanKind struct{}

// MeteredKind features are tracked in their own units.
type MeteredKind struct {
	Aggregation types.AggregationType  `json:"aggregation"`
	UsageType   types.FeatureUsageType `json:"usage_type,omitempty"`
}

// CreditSystemKind features are a shared credit pool that other metered
// features spend from according to Schema.
type CreditSystemKind struct {
	Schema []SchemaItem `json:"schema"`
}

func (BooleanKind) Type() types.FeatureType      { return types.FeatureTypeBoolean }
func (MeteredKind) Type() types.FeatureType      { return types.FeatureTypeMetered }
func (CreditSystemKind) Type() types.FeatureType { return types.FeatureTypeCreditSystem }

func (BooleanKind) sealed()      {}
func (MeteredKind) sealed()      {}
func (CreditSystemKind) sealed() {}

// SchemaItem converts FeatureAmount units of MeteredFeatureID into CreditAmount credits.
type SchemaItem struct {
	MeteredFeatureID string          `json:"metered_feature_id"`
	FeatureAmount    decimal.Decimal `json:"feature_amount"`
	CreditAmount     decimal.Decimal `json:"credit_amount"`
}

// CreditCost is the number of credits one unit of the metered feature costs.
func (s SchemaItem) CreditCost() decimal.Decimal {
	return types.DivCredit(s.CreditAmount, s.FeatureAmount)
}

// Feature is a metered, boolean or credit-system capability.
type Feature struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          Kind   `json:"-"`
	EnvironmentID string `json:"environment_id"`
	types.BaseModel
}

func (f *Feature) Type() types.FeatureType {
	if f.Kind == nil {
		return ""
	}
	return f.Kind.Type()
}

func (f *Feature) IsBoolean() bool {
	_, ok := f.Kind.(BooleanKind)
	return ok
}

// IsContinuousUse reports whether usage of f is an allocated quantity that
// stays consumed until released, like seats.
func (f *Feature) IsContinuousUse() bool {
	k, ok := f.Kind.(MeteredKind)
	return ok && k.UsageType == types.FeatureUsageContinuousUse
}

// Schema returns the credit schema when f is a credit system.
func (f *Feature) Schema() ([]SchemaItem, bool) {
	cs, ok := f.Kind.(CreditSystemKind)
	if !ok {
		return nil, false
	}
	return cs.Schema, true
}

// CreditCostFor returns the credits charged per unit of meteredFeatureID, and
// false when f is not a credit system or does not price that feature.
func (f *Feature) CreditCostFor(meteredFeatureID string) (decimal.Decimal, bool) {
	schema, ok := f.Schema()
	if !ok {
		return decimal.Zero, false
	}
	item, found := lo.Find(schema, func(item SchemaItem) bool {
		return item.MeteredFeatureID == meteredFeatureID
	})
	if !found {
		return decimal.Zero, false
	}
	return item.CreditCost(), true
}

func (f *Feature) Validate() error {
	if f.ID == "" {
		return ierr.NewError("feature id is required").
			WithHint("Please provide a feature id").
			Mark(ierr.ErrValidation)
	}
	if f.Kind == nil {
		return ierr.NewError("feature kind is required").
			WithHintf("Feature %s has no type", f.ID).
			Mark(ierr.ErrValidation)
	}

	switch k := f.Kind.(type) {
	case BooleanKind:
		return nil
	case MeteredKind:
		if err := k.Aggregation.Validate(); err != nil {
			return err
		}
		return k.UsageType.Validate()
	case CreditSystemKind:
		if len(k.Schema) == 0 {
			return ierr.NewError("credit system schema is empty").
				WithHintf("Credit system %s must price at least one feature", f.ID).
				Mark(ierr.ErrValidation)
		}
		for _, item := range k.Schema {
			if item.MeteredFeatureID == "" || !item.FeatureAmount.IsPositive() || !item.CreditAmount.IsPositive() {
				return ierr.NewError("invalid credit schema item").
					WithHintf("Schema item for %q needs positive feature and credit amounts", item.MeteredFeatureID).
					WithReportableDetails(map[string]interface{}{
						"feature_id":         f.ID,
						"metered_feature_id": item.MeteredFeatureID,
					}).
					Mark(ierr.ErrValidation)
			}
		}
		return nil
	default:
		return ierr.NewErrorf("unsupported feature kind %T", k).
			Mark(ierr.ErrValidation)
	}
}

// Repository is the read side of the feature catalog plus the writes used by seeding.
type Repository interface {
	Create(ctx context.Context, f *Feature) error
	Get(ctx context.Context, id string) (*Feature, error)
	List(ctx context.Context) ([]*Feature, error)
	// ListCreditSystemsFor returns every credit-system feature whose schema prices featureID.
	ListCreditSystemsFor(ctx context.Context, featureID string) ([]*Feature, error)
}
