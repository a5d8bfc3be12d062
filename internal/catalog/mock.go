package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// MockCatalog is an in-memory catalog for tests and local runs
type MockCatalog struct {
	mu          sync.RWMutex
	ingredients []nutrient.Ingredient
	profiles    []nutrient.LivestockProfile
	err         error
	log         *slog.Logger
}

// Ensure MockCatalog implements Catalog interface
var _ Catalog = (*MockCatalog)(nil)

// NewMockCatalog creates a mock catalog holding the standard starter data
func NewMockCatalog(logger *slog.Logger) *MockCatalog {
	return &MockCatalog{
		log: logger,
		ingredients: []nutrient.Ingredient{
			{ID: "1", Name: "Jagung", Nutrients: nutrient.Profile{PK: 8.5, ME: 3300, SK: 3, LK: 4, Ca: 0.02, P: 0.28}},
			{ID: "2", Name: "Dedak Padi", Nutrients: nutrient.Profile{PK: 12, ME: 2800, SK: 12, LK: 12, Ca: 0.05, P: 1.2}},
			{ID: "3", Name: "Bungkil Kedelai", Nutrients: nutrient.Profile{PK: 45, ME: 2230, SK: 1, LK: 3, Ca: 0.25, P: 0.65}},
			{ID: "4", Name: "Tepung Ikan", Nutrients: nutrient.Profile{PK: 60, ME: 2850, SK: 8, LK: 8, Ca: 5, P: 3}},
			{ID: "5", Name: "Minyak Sawit", Nutrients: nutrient.Profile{ME: 8800, LK: 99}},
			{ID: "6", Name: "Kalsium Karbonat", Nutrients: nutrient.Profile{Ca: 38}},
			{ID: "7", Name: "Monokalsium Fosfat", Nutrients: nutrient.Profile{Ca: 16, P: 21}},
		},
		profiles: []nutrient.LivestockProfile{
			{ID: "1", Species: "Ayam", Type: "Broiler", Stage: "Starter", Target: &nutrient.Target{PK: 22, ME: 3000, SK: 5, LK: 5, Ca: 1, P: 0.45}},
			{ID: "2", Species: "Ayam", Type: "Broiler", Stage: "Finisher", Target: &nutrient.Target{PK: 19, ME: 3200, SK: 5, LK: 6, Ca: 0.9, P: 0.4}},
			{ID: "3", Species: "Ayam", Type: "Petelur", Stage: "Layer", Target: &nutrient.Target{PK: 17, ME: 2750, SK: 6, LK: 4, Ca: 3.5, P: 0.45}},
			{ID: "4", Species: "Itik", Type: "Pedaging", Stage: "Grower"},
		},
	}
}

// ListIngredients returns ingredients whose name contains filter
func (m *MockCatalog) ListIngredients(ctx context.Context, filter string, limit int) ([]nutrient.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	limit = normalizeLimit(limit)
	var out []nutrient.Ingredient
	for _, ing := range m.ingredients {
		if filter != "" && !contains(ing.Name, filter) {
			continue
		}
		out = append(out, ing)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetIngredients resolves ids in request order
func (m *MockCatalog) GetIngredients(ctx context.Context, ids []string) ([]nutrient.Ingredient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	return orderByIDs(ids, m.ingredients)
}

// ListProfiles returns profiles whose label contains filter
func (m *MockCatalog) ListProfiles(ctx context.Context, filter string, limit int) ([]nutrient.LivestockProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	limit = normalizeLimit(limit)
	var out []nutrient.LivestockProfile
	for _, p := range m.profiles {
		if filter != "" && !contains(p.Label(), filter) {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetProfile returns the profile with id
func (m *MockCatalog) GetProfile(ctx context.Context, id string) (*nutrient.LivestockProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	for _, p := range m.profiles {
		if p.ID == strings.TrimSpace(id) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile %q: %w", id, ErrNotFound)
}

// HealthCheck reports the configured error, if any
func (m *MockCatalog) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Close is a no-op
func (m *MockCatalog) Close() error {
	return nil
}

// SetError makes every subsequent call fail with err
func (m *MockCatalog) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetIngredients replaces the ingredient data
func (m *MockCatalog) SetIngredients(ingredients []nutrient.Ingredient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingredients = ingredients
}

// SetProfiles replaces the profile data
func (m *MockCatalog) SetProfiles(profiles []nutrient.LivestockProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles = profiles
}

// contains checks if s contains substr, case-insensitively
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
