package mcpgo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
	"github.com/noot-app/feed-formulation-mcp-server/internal/types"
)

// Tool names
const (
	ToolListIngredients     = "list_ingredients"
	ToolListProfiles        = "list_livestock_profiles"
	ToolFormulateFeed       = "formulate_feed"
	ToolEvaluateFormulation = "evaluate_formulation"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListIngredientsResponse represents the response from list_ingredients
type ListIngredientsResponse struct {
	Found       bool                  `json:"found"`
	Count       int                   `json:"count"`
	Ingredients []nutrient.Ingredient `json:"ingredients"`
}

// ProfileSummary is a livestock profile with its display label
type ProfileSummary struct {
	ID        string           `json:"id"`
	Label     string           `json:"label"`
	Species   string           `json:"species"`
	Type      string           `json:"type"`
	Stage     string           `json:"stage"`
	HasTarget bool             `json:"has_target"`
	Target    *nutrient.Target `json:"target,omitempty"`
}

// ListProfilesResponse represents the response from list_livestock_profiles
type ListProfilesResponse struct {
	Found    bool             `json:"found"`
	Count    int              `json:"count"`
	Profiles []ProfileSummary `json:"profiles"`
}

var targetSchema = map[string]any{
	"pk_target": map[string]any{"type": "number", "description": "Crude protein, %"},
	"me_target": map[string]any{"type": "number", "description": "Metabolizable energy, kcal/kg"},
	"sk_target": map[string]any{"type": "number", "description": "Crude fiber, %"},
	"lk_target": map[string]any{"type": "number", "description": "Crude fat, %"},
	"ca_target": map[string]any{"type": "number", "description": "Calcium, %"},
	"p_target":  map[string]any{"type": "number", "description": "Phosphorus, %"},
}

func (s *Server) addTools() {
	listIngredientsTool := mcp.NewTool(ToolListIngredients,
		mcp.WithDescription("List feed ingredients from the catalog with their nutrient content per 100 units (pk, sk, lk, ca, p in %, me in kcal/kg). Use the returned ids with formulate_feed."),
		mcp.WithString("filter",
			mcp.Description("Case-insensitive substring of the ingredient name. Empty lists everything."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
			mcp.DefaultNumber(defaultListLimit),
			mcp.Min(1),
			mcp.Max(maxListLimit),
		),
		mcp.WithOutputSchema[ListIngredientsResponse](),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(listIngredientsTool, s.handleListIngredients)

	listProfilesTool := mcp.NewTool(ToolListProfiles,
		mcp.WithDescription("List livestock profiles (species, type, stage) and their nutrient requirements. Use the returned id as profile_id."),
		mcp.WithString("filter",
			mcp.Description("Case-insensitive substring of \"species type stage\". Empty lists everything."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 20, max: 100)"),
			mcp.DefaultNumber(defaultListLimit),
			mcp.Min(1),
			mcp.Max(maxListLimit),
		),
		mcp.WithOutputSchema[ListProfilesResponse](),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(listProfilesTool, s.handleListProfiles)

	formulateTool := mcp.NewTool(ToolFormulateFeed,
		mcp.WithDescription("Compute the least-deviation feed blend: inclusion percentages of the selected ingredients that sum to 100% and come closest to the target nutrient profile. Select ingredients by catalog id and/or inline, and the target by livestock profile id or inline."),
		mcp.WithString("profile_id",
			mcp.Description("Livestock profile whose requirements are the target"),
		),
		mcp.WithArray("ingredient_ids",
			mcp.Description("Catalog ingredient ids to blend"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("ingredients",
			mcp.Description("Inline ingredients with fields id, name, pk, me, sk, lk, ca, p"),
			mcp.Items(map[string]any{"type": "object"}),
		),
		mcp.WithObject("target",
			mcp.Description("Inline target; overrides the profile's requirements"),
			mcp.Properties(targetSchema),
		),
		mcp.WithOutputSchema[types.FormulationResponse](),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(formulateTool, s.handleFormulateFeed)

	evaluateTool := mcp.NewTool(ToolEvaluateFormulation,
		mcp.WithDescription("Evaluate a hand-entered blend: the nutrient profile it achieves, whether it adds up to 100%, and how it compares with a target."),
		mcp.WithArray("items",
			mcp.Required(),
			mcp.Description("Blend entries with fields ingredient_id and percentage"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ingredient_id": map[string]any{"type": "string"},
					"percentage":    map[string]any{"type": "number"},
				},
				"required": []string{"ingredient_id", "percentage"},
			}),
		),
		mcp.WithString("profile_id",
			mcp.Description("Livestock profile to compare against"),
		),
		mcp.WithObject("target",
			mcp.Description("Inline target to compare against; overrides the profile"),
			mcp.Properties(targetSchema),
		),
		mcp.WithOutputSchema[types.EvaluationResponse](),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)
	s.mcpServer.AddTool(evaluateTool, s.handleEvaluateFormulation)
}

func (s *Server) handleListIngredients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleListIngredients: Starting tool call", "arguments", request.GetArguments())

	filter := request.GetString("filter", "")
	limit := clampLimit(request.GetFloat("limit", defaultListLimit))

	ingredients, err := s.catalog.ListIngredients(ctx, filter, limit)
	if err != nil {
		s.log.Error("Ingredient listing failed", "error", err)
		s.observe(ToolListIngredients, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Listing ingredients failed: %v", err)), nil
	}
	if ingredients == nil {
		ingredients = []nutrient.Ingredient{}
	}

	response := ListIngredientsResponse{
		Found:       len(ingredients) > 0,
		Count:       len(ingredients),
		Ingredients: ingredients,
	}
	return s.structured(ToolListIngredients, "ok", response)
}

func (s *Server) handleListProfiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleListProfiles: Starting tool call", "arguments", request.GetArguments())

	filter := request.GetString("filter", "")
	limit := clampLimit(request.GetFloat("limit", defaultListLimit))

	profiles, err := s.catalog.ListProfiles(ctx, filter, limit)
	if err != nil {
		s.log.Error("Profile listing failed", "error", err)
		s.observe(ToolListProfiles, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Listing livestock profiles failed: %v", err)), nil
	}

	summaries := make([]ProfileSummary, 0, len(profiles))
	for _, p := range profiles {
		summaries = append(summaries, ProfileSummary{
			ID:        p.ID,
			Label:     p.Label(),
			Species:   p.Species,
			Type:      p.Type,
			Stage:     p.Stage,
			HasTarget: p.Target != nil,
			Target:    p.Target,
		})
	}

	response := ListProfilesResponse{
		Found:    len(summaries) > 0,
		Count:    len(summaries),
		Profiles: summaries,
	}
	return s.structured(ToolListProfiles, "ok", response)
}

func (s *Server) handleFormulateFeed(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleFormulateFeed: Starting tool call", "arguments", request.GetArguments())

	var args types.FormulationRequest
	if err := bindArguments(request, &args); err != nil {
		s.log.Warn("handleFormulateFeed: Invalid arguments", "error", err)
		s.observe(ToolFormulateFeed, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	req, err := args.Resolve(ctx, s.catalog)
	if err != nil {
		s.log.Warn("handleFormulateFeed: Could not resolve request", "error", err)
		s.observe(ToolFormulateFeed, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Could not resolve request: %v", err)), nil
	}

	response := types.FromOutcome(s.optimizer.Formulate(ctx, req))

	s.log.Debug("handleFormulateFeed: Returning structured result",
		"run_id", response.RunID,
		"feasible", response.Feasible,
		"status", response.Status,
		"reason", response.Reason)

	result := "ok"
	if !response.Feasible {
		result = "rejected"
	}
	return s.structured(ToolFormulateFeed, result, response)
}

func (s *Server) handleEvaluateFormulation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.log.Debug("handleEvaluateFormulation: Starting tool call", "arguments", request.GetArguments())

	var args types.EvaluationRequest
	if err := bindArguments(request, &args); err != nil {
		s.log.Warn("handleEvaluateFormulation: Invalid arguments", "error", err)
		s.observe(ToolEvaluateFormulation, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments: %v", err)), nil
	}

	response, err := args.Evaluate(ctx, s.catalog)
	if err != nil {
		s.log.Warn("handleEvaluateFormulation: Evaluation failed", "error", err)
		s.observe(ToolEvaluateFormulation, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Evaluation failed: %v", err)), nil
	}

	return s.structured(ToolEvaluateFormulation, "ok", response)
}

// structured returns both structured content and a JSON text fallback
func (s *Server) structured(tool, result string, response any) (*mcp.CallToolResult, error) {
	responseJSON, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		s.log.Error("Failed to marshal response", "tool", tool, "error", err)
		s.observe(tool, "error")
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal response: %v", err)), nil
	}

	s.observe(tool, result)
	s.log.Debug("Returning structured result", "tool", tool, "response_size", len(responseJSON))
	return mcp.NewToolResultStructured(response, string(responseJSON)), nil
}

// bindArguments decodes the tool arguments into dst, keeping numbers as
// json.Number so the nutrient normalizer sees them unchanged
func bindArguments(request mcp.CallToolRequest, dst any) error {
	data, err := json.Marshal(request.GetArguments())
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dst)
}

func clampLimit(v float64) int {
	limit := int(v)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
