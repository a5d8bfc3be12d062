package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/noot-app/feed-formulation-mcp-server/internal/config"
	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// ErrNotFound is returned when a requested ingredient or profile does not exist
var ErrNotFound = errors.New("not found")

// DefaultLimit bounds list queries when the caller passes no limit
const DefaultLimit = 100

// Catalog is the read-only reference data the optimizer formulates from
type Catalog interface {
	ListIngredients(ctx context.Context, filter string, limit int) ([]nutrient.Ingredient, error)
	// GetIngredients returns the ingredients in the order of ids, without duplicates
	GetIngredients(ctx context.Context, ids []string) ([]nutrient.Ingredient, error)
	ListProfiles(ctx context.Context, filter string, limit int) ([]nutrient.LivestockProfile, error)
	GetProfile(ctx context.Context, id string) (*nutrient.LivestockProfile, error)
	HealthCheck(ctx context.Context) error
	Close() error
}

// NewCatalog creates the catalog for cfg.
// Uses the in-memory mock if CATALOG_MOCK is "true".
func NewCatalog(cfg *config.Config, logger *slog.Logger) (Catalog, error) {
	if os.Getenv("CATALOG_MOCK") == "true" {
		logger.Info("Using mock catalog")
		return NewMockCatalog(logger), nil
	}
	return NewStore(cfg.IngredientsPath, cfg.ProfilesPath, logger)
}

// MissingIDsError lists the ids a lookup could not resolve
type MissingIDsError struct {
	IDs []string
}

func (e *MissingIDsError) Error() string {
	return fmt.Sprintf("ingredients not found: %s", strings.Join(e.IDs, ", "))
}

func (e *MissingIDsError) Unwrap() error {
	return ErrNotFound
}

// dedupe trims ids and drops blanks and repeats, keeping first occurrences
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// orderByIDs arranges found ingredients in the order of ids, reporting
// any ids that were not found
func orderByIDs(ids []string, found []nutrient.Ingredient) ([]nutrient.Ingredient, error) {
	byID := make(map[string]nutrient.Ingredient, len(found))
	for _, ing := range found {
		byID[ing.ID] = ing
	}

	out := make([]nutrient.Ingredient, 0, len(ids))
	var missing []string
	for _, id := range ids {
		ing, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		out = append(out, ing)
	}
	if len(missing) > 0 {
		return nil, &MissingIDsError{IDs: missing}
	}
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
