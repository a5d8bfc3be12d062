package types

import (
	"context"
	"fmt"

	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
)

// FormulationRequest selects ingredients and a target, either from the
// catalog by id or inline
type FormulationRequest struct {
	ProfileID     string                   `json:"profile_id,omitempty" yaml:"profile_id"`
	IngredientIDs []string                 `json:"ingredient_ids,omitempty" yaml:"ingredient_ids"`
	Ingredients   []nutrient.RawIngredient `json:"ingredients,omitempty" yaml:"ingredients"`
	Target        *nutrient.RawTarget      `json:"target,omitempty" yaml:"target"`
}

// Resolve turns the request into optimizer input. Catalog ingredients come
// first, followed by inline ones. An inline target overrides the profile's.
// A profile without requirement data leaves the target nil, which the
// optimizer rejects as a validation error.
func (r FormulationRequest) Resolve(ctx context.Context, c catalog.Catalog) (optimizer.Request, error) {
	var req optimizer.Request

	if len(r.IngredientIDs) > 0 {
		if c == nil {
			return req, fmt.Errorf("ingredient_ids given but no catalog is available")
		}
		ings, err := c.GetIngredients(ctx, r.IngredientIDs)
		if err != nil {
			return req, err
		}
		req.Ingredients = append(req.Ingredients, ings...)
	}
	req.Ingredients = append(req.Ingredients, nutrient.NormalizeIngredients(r.Ingredients)...)

	switch {
	case r.Target != nil && !r.Target.IsEmpty():
		target := r.Target.Normalize()
		req.Target = &target
	case r.ProfileID != "":
		if c == nil {
			return req, fmt.Errorf("profile_id given but no catalog is available")
		}
		profile, err := c.GetProfile(ctx, r.ProfileID)
		if err != nil {
			return req, err
		}
		req.Target = profile.Target
	}

	return req, nil
}

// BlendItem is one ingredient share in a response
type BlendItem struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// NutrientComparison is the wire form of optimizer.Comparison
type NutrientComparison struct {
	Nutrient        string  `json:"nutrient"`
	Name            string  `json:"name"`
	Unit            string  `json:"unit"`
	Target          float64 `json:"target"`
	Actual          float64 `json:"actual"`
	Difference      float64 `json:"difference"`
	PercentOfTarget float64 `json:"percent_of_target"`
}

// FormulationResponse is the caller-facing result of one formulation
type FormulationResponse struct {
	RunID    string `json:"run_id,omitempty"`
	Feasible bool   `json:"feasible"`
	Status   string `json:"status,omitempty"`
	// Reason and Error are set only when no blend was produced
	Reason            string               `json:"reason,omitempty"`
	Error             string               `json:"error,omitempty"`
	Objective         float64              `json:"objective"`
	Blend             map[string]float64   `json:"blend"`
	Items             []BlendItem          `json:"items"`
	Achieved          *nutrient.Profile    `json:"achieved,omitempty"`
	TargetsDisplay    *nutrient.Target     `json:"targetsDisplay,omitempty"`
	Comparison        []NutrientComparison `json:"comparison,omitempty"`
	TotalPercentage   float64              `json:"total_percentage"`
	ActiveIngredients int                  `json:"active_ingredients"`
}

// FromOutcome converts an optimizer outcome into its response
func FromOutcome(out optimizer.Outcome) FormulationResponse {
	resp := FormulationResponse{
		RunID: out.RunID,
		Blend: map[string]float64{},
		Items: []BlendItem{},
	}

	if !out.OK() {
		rej := out.Rejection
		resp.Status = string(rej.Status)
		resp.Reason = string(rej.Reason)
		if rej.Err != nil {
			resp.Error = rej.Err.Error()
		}
		return resp
	}

	res := out.Result
	achieved, target := res.Achieved, res.TargetsDisplay
	resp.Feasible = res.Feasible
	resp.Status = string(res.Status)
	resp.Objective = res.Objective
	resp.Items = blendItems(res.Blend)
	resp.Blend = blendMap(res.Blend)
	resp.Achieved = &achieved
	resp.TargetsDisplay = &target
	resp.Comparison = comparisons(optimizer.Compare(achieved, target))
	resp.TotalPercentage = res.Blend.Total()
	resp.ActiveIngredients = res.ActiveIngredients()
	return resp
}

// IsValidationError reports whether the request itself was unusable
func (r FormulationResponse) IsValidationError() bool {
	return r.Reason == string(optimizer.ReasonValidation)
}

func blendItems(blend optimizer.Blend) []BlendItem {
	items := make([]BlendItem, 0, len(blend))
	for _, e := range blend {
		items = append(items, BlendItem{ID: e.ID, Name: e.Name, Percentage: e.Percentage})
	}
	return items
}

// blendMap keys shares by ingredient name. A name seen before is
// disambiguated as "name (id)", so no share is lost.
func blendMap(blend optimizer.Blend) map[string]float64 {
	out := make(map[string]float64, len(blend))
	for i, e := range blend {
		key := e.Name
		if _, taken := out[key]; taken {
			key = fmt.Sprintf("%s (%s)", e.Name, e.ID)
		}
		if _, taken := out[key]; taken {
			key = fmt.Sprintf("%s #%d", key, i+1)
		}
		out[key] = e.Percentage
	}
	return out
}

func comparisons(in []optimizer.Comparison) []NutrientComparison {
	out := make([]NutrientComparison, 0, len(in))
	for _, c := range in {
		out = append(out, NutrientComparison{
			Nutrient:        c.Nutrient.Code(),
			Name:            c.Nutrient.String(),
			Unit:            c.Nutrient.Unit(),
			Target:          c.Target,
			Actual:          c.Actual,
			Difference:      c.Difference,
			PercentOfTarget: c.PercentOfTarget,
		})
	}
	return out
}
