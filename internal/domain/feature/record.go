package feature

import (
	"encoding/json"

	ierr "github.com/flexprice/entitlements/internal/errors"
	"github.com/flexprice/entitlements/internal/types"
)

// Record is the flat, serializable form of a Feature used by stores and caches.
type Record struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Type          types.FeatureType      `json:"type"`
	Aggregation   types.AggregationType  `json:"aggregation,omitempty"`
	UsageType     types.FeatureUsageType `json:"usage_type,omitempty"`
	Schema        []SchemaItem           `json:"schema,omitempty"`
	EnvironmentID string                 `json:"environment_id"`
	types.BaseModel
}

func (f *Feature) ToRecord() *Record {
	r := &Record{
		ID:            f.ID,
		Name:          f.Name,
		Type:          f.Type(),
		EnvironmentID: f.EnvironmentID,
		BaseModel:     f.BaseModel,
	}
	switch k := f.Kind.(type) {
	case MeteredKind:
		r.Aggregation = k.Aggregation
		r.UsageType = k.UsageType
	case CreditSystemKind:
		r.Schema = k.Schema
	}
	return r
}

func FromRecord(r *Record) (*Feature, error) {
	if r == nil {
		return nil, nil
	}
	f := &Feature{
		ID:            r.ID,
		Name:          r.Name,
		EnvironmentID: r.EnvironmentID,
		BaseModel:     r.BaseModel,
	}
	switch r.Type {
	case types.FeatureTypeBoolean:
		f.Kind = BooleanKind{}
	case types.FeatureTypeMetered:
		f.Kind = MeteredKind{Aggregation: r.Aggregation, UsageType: r.UsageType}
	case types.FeatureTypeCreditSystem:
		f.Kind = CreditSystemKind{Schema: r.Schema}
	default:
		return nil, ierr.NewErrorf("unknown feature type %q", r.Type).
			WithHintf("Feature %s has an unknown type", r.ID).
			Mark(ierr.ErrInvalidEntitlementState)
	}
	return f, nil
}

func (f *Feature) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.ToRecord())
}

func (f *Feature) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	decoded, err := FromRecord(&r)
	if err != nil {
		return err
	}
	*f = *decoded
	return nil
}
