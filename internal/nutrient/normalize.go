package nutrient

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Float coerces an arbitrary numeric-like value into a finite float64.
// Missing, malformed and non-finite values yield fallback. It never fails:
// upstream data entry allows blank and partial records.
func Float(v any, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return fallback
		}
		v = s
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

// NonNegative is Float for quantities that cannot be negative, such as
// nutrient contents, targets and inclusion percentages
func NonNegative(v any, fallback float64) float64 {
	f := Float(v, fallback)
	if f < 0 {
		return fallback
	}
	return f
}

// RawIngredient is an ingredient record as delivered by the data layer.
// Nutrient fields may hold numbers, numeric strings, null or garbage.
type RawIngredient struct {
	ID   any    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	PK   any    `json:"pk" yaml:"pk"`
	ME   any    `json:"me" yaml:"me"`
	SK   any    `json:"sk" yaml:"sk"`
	LK   any    `json:"lk" yaml:"lk"`
	Ca   any    `json:"ca" yaml:"ca"`
	P    any    `json:"p" yaml:"p"`
}

// Normalize converts the raw record into an Ingredient with finite,
// non-negative nutrient values
func (r RawIngredient) Normalize() Ingredient {
	return Ingredient{
		ID:   strings.TrimSpace(cast.ToString(r.ID)),
		Name: strings.TrimSpace(r.Name),
		Nutrients: Profile{
			PK: NonNegative(r.PK, 0),
			ME: NonNegative(r.ME, 0),
			SK: NonNegative(r.SK, 0),
			LK: NonNegative(r.LK, 0),
			Ca: NonNegative(r.Ca, 0),
			P:  NonNegative(r.P, 0),
		},
	}
}

// RawTarget is a nutrient requirement record as delivered by the data layer
type RawTarget struct {
	PK any `json:"pk_target" yaml:"pk_target"`
	ME any `json:"me_target" yaml:"me_target"`
	SK any `json:"sk_target" yaml:"sk_target"`
	LK any `json:"lk_target" yaml:"lk_target"`
	Ca any `json:"ca_target" yaml:"ca_target"`
	P  any `json:"p_target" yaml:"p_target"`
}

// IsEmpty reports whether no target field was supplied at all
func (r RawTarget) IsEmpty() bool {
	return r.PK == nil && r.ME == nil && r.SK == nil && r.LK == nil && r.Ca == nil && r.P == nil
}

// Normalize converts the raw record into a Target with finite, non-negative values
func (r RawTarget) Normalize() Target {
	return Target{
		PK: NonNegative(r.PK, 0),
		ME: NonNegative(r.ME, 0),
		SK: NonNegative(r.SK, 0),
		LK: NonNegative(r.LK, 0),
		Ca: NonNegative(r.Ca, 0),
		P:  NonNegative(r.P, 0),
	}
}

// NormalizeIngredients normalizes a list of raw records, preserving order
func NormalizeIngredients(raw []RawIngredient) []Ingredient {
	out := make([]Ingredient, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.Normalize())
	}
	return out
}
