package types

import (
	"context"
	"errors"
	"strings"

	"github.com/noot-app/feed-formulation-mcp-server/internal/catalog"
	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
	"github.com/noot-app/feed-formulation-mcp-server/internal/optimizer"
)

// ErrEmptyEvaluation is returned when an evaluation names no ingredients
var ErrEmptyEvaluation = errors.New("evaluation needs at least one item")

// EvaluationItem is one hand-entered ingredient share
type EvaluationItem struct {
	IngredientID string `json:"ingredient_id" yaml:"ingredient_id"`
	Percentage   any    `json:"percentage" yaml:"percentage"`
}

// EvaluationRequest describes a manual blend to check against an optional target
type EvaluationRequest struct {
	Items     []EvaluationItem    `json:"items" yaml:"items"`
	ProfileID string              `json:"profile_id,omitempty" yaml:"profile_id"`
	Target    *nutrient.RawTarget `json:"target,omitempty" yaml:"target"`
}

// EvaluationResponse reports what a manual blend achieves
type EvaluationResponse struct {
	Items             []BlendItem          `json:"items"`
	Achieved          nutrient.Profile     `json:"achieved"`
	TargetsDisplay    *nutrient.Target     `json:"targetsDisplay,omitempty"`
	Comparison        []NutrientComparison `json:"comparison,omitempty"`
	TotalPercentage   float64              `json:"total_percentage"`
	Complete          bool                 `json:"complete"`
	ActiveIngredients int                  `json:"active_ingredients"`
}

// Evaluate resolves the items against the catalog and evaluates the blend.
// Repeated ingredient ids are merged by adding their shares.
func (r EvaluationRequest) Evaluate(ctx context.Context, c catalog.Catalog) (EvaluationResponse, error) {
	if len(r.Items) == 0 {
		return EvaluationResponse{}, ErrEmptyEvaluation
	}

	var ids []string
	shares := map[string]float64{}
	for _, item := range r.Items {
		id := strings.TrimSpace(item.IngredientID)
		if _, seen := shares[id]; !seen {
			ids = append(ids, id)
		}
		shares[id] += nutrient.NonNegative(item.Percentage, 0)
	}

	ingredients, err := c.GetIngredients(ctx, ids)
	if err != nil {
		return EvaluationResponse{}, err
	}

	percentages := make([]any, len(ingredients))
	for i, ing := range ingredients {
		percentages[i] = shares[ing.ID]
	}
	eval := optimizer.Evaluate(ingredients, percentages)

	resp := EvaluationResponse{
		Items:           blendItems(eval.Blend),
		Achieved:        eval.Achieved,
		TotalPercentage: eval.Total,
		Complete:        eval.Complete,
	}
	for _, e := range eval.Blend {
		if e.Percentage > 0 {
			resp.ActiveIngredients++
		}
	}

	target, err := r.resolveTarget(ctx, c)
	if err != nil {
		return EvaluationResponse{}, err
	}
	if target != nil {
		resp.TargetsDisplay = target
		resp.Comparison = comparisons(optimizer.Compare(eval.Achieved, *target))
	}
	return resp, nil
}

func (r EvaluationRequest) resolveTarget(ctx context.Context, c catalog.Catalog) (*nutrient.Target, error) {
	if r.Target != nil && !r.Target.IsEmpty() {
		target := r.Target.Normalize()
		return &target, nil
	}
	if r.ProfileID == "" {
		return nil, nil
	}
	profile, err := c.GetProfile(ctx, r.ProfileID)
	if err != nil {
		return nil, err
	}
	return profile.Target, nil
}
