package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// Every column is read as text so blank or malformed cells reach the nutrient
// normalizer instead of failing the scan.
const (
	ingredientColumns = `id, name, pk, me, sk, lk, ca, p`
	ingredientsFrom   = `read_csv_auto(?, header = true, all_varchar = true)`

	profileColumns = `id, species, "type", stage, pk_target, me_target, sk_target, lk_target, ca_target, p_target`
	profilesFrom   = `read_csv_auto(?, header = true, all_varchar = true)`
)

// Store queries the catalog CSV files through an in-process DuckDB
type Store struct {
	db              *sql.DB
	ingredientsPath string
	profilesPath    string
	log             *slog.Logger
}

// Ensure Store implements Catalog interface
var _ Catalog = (*Store)(nil)

// NewStore opens an in-memory DuckDB over the two catalog files
func NewStore(ingredientsPath, profilesPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	return &Store{
		db:              db,
		ingredientsPath: ingredientsPath,
		profilesPath:    profilesPath,
		log:             logger,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ListIngredients returns ingredients whose name contains filter, in file order
func (s *Store) ListIngredients(ctx context.Context, filter string, limit int) ([]nutrient.Ingredient, error) {
	start := time.Now()
	s.log.Debug("ListIngredients starting", "filter", filter, "limit", limit)

	query := `SELECT ` + ingredientColumns + ` FROM ` + ingredientsFrom + ` WHERE 1=1`
	args := []any{s.ingredientsPath}

	if filter = strings.TrimSpace(filter); filter != "" {
		query += ` AND name ILIKE ?`
		args = append(args, "%"+filter+"%")
	}
	query += ` LIMIT ?`
	args = append(args, normalizeLimit(limit))

	out, err := s.queryIngredients(ctx, query, args...)
	if err != nil {
		s.log.Error("ListIngredients failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	s.log.Info("ListIngredients completed", "count", len(out), "duration", time.Since(start))
	return out, nil
}

// GetIngredients resolves ids to ingredients, preserving the requested order
func (s *Store) GetIngredients(ctx context.Context, ids []string) ([]nutrient.Ingredient, error) {
	start := time.Now()
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	query := `SELECT ` + ingredientColumns + ` FROM ` + ingredientsFrom + ` WHERE trim(id) IN (` + placeholders + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, s.ingredientsPath)
	for _, id := range ids {
		args = append(args, id)
	}

	found, err := s.queryIngredients(ctx, query, args...)
	if err != nil {
		s.log.Error("GetIngredients failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	out, err := orderByIDs(ids, found)
	if err != nil {
		s.log.Debug("GetIngredients incomplete", "requested", len(ids), "found", len(found))
		return nil, err
	}

	s.log.Debug("GetIngredients completed", "count", len(out), "duration", time.Since(start))
	return out, nil
}

// ListProfiles returns livestock profiles whose label contains filter
func (s *Store) ListProfiles(ctx context.Context, filter string, limit int) ([]nutrient.LivestockProfile, error) {
	start := time.Now()
	s.log.Debug("ListProfiles starting", "filter", filter, "limit", limit)

	query := `SELECT ` + profileColumns + ` FROM ` + profilesFrom + ` WHERE 1=1`
	args := []any{s.profilesPath}

	if filter = strings.TrimSpace(filter); filter != "" {
		query += ` AND concat_ws(' ', species, "type", stage) ILIKE ?`
		args = append(args, "%"+filter+"%")
	}
	query += ` LIMIT ?`
	args = append(args, normalizeLimit(limit))

	out, err := s.queryProfiles(ctx, query, args...)
	if err != nil {
		s.log.Error("ListProfiles failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	s.log.Info("ListProfiles completed", "count", len(out), "duration", time.Since(start))
	return out, nil
}

// GetProfile returns the profile with id, or ErrNotFound
func (s *Store) GetProfile(ctx context.Context, id string) (*nutrient.LivestockProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM ` + profilesFrom + ` WHERE trim(id) = ? LIMIT 1`

	out, err := s.queryProfiles(ctx, query, s.profilesPath, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("profile %q: %w", id, ErrNotFound)
	}
	return &out[0], nil
}

// HealthCheck verifies both catalog files can be read
func (s *Store) HealthCheck(ctx context.Context) error {
	start := time.Now()
	s.log.Debug("Testing DuckDB connection and catalog files")

	var ingredients, profiles int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+ingredientsFrom, s.ingredientsPath).Scan(&ingredients); err != nil {
		s.log.Error("Ingredients health check failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("ingredients catalog unreadable: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+profilesFrom, s.profilesPath).Scan(&profiles); err != nil {
		s.log.Error("Profiles health check failed", "error", err, "duration", time.Since(start))
		return fmt.Errorf("profiles catalog unreadable: %w", err)
	}

	s.log.Debug("Health check successful", "ingredients", ingredients, "profiles", profiles, "duration", time.Since(start))
	return nil
}

func (s *Store) queryIngredients(ctx context.Context, query string, args ...any) ([]nutrient.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ingredient query failed: %w", err)
	}
	defer rows.Close()

	var out []nutrient.Ingredient
	for rows.Next() {
		var id, name, pk, me, sk, lk, ca, p sql.NullString
		if err := rows.Scan(&id, &name, &pk, &me, &sk, &lk, &ca, &p); err != nil {
			s.log.Error("Row scan failed", "error", err)
			continue
		}

		raw := nutrient.RawIngredient{
			ID:   nullable(id),
			Name: name.String,
			PK:   nullable(pk),
			ME:   nullable(me),
			SK:   nullable(sk),
			LK:   nullable(lk),
			Ca:   nullable(ca),
			P:    nullable(p),
		}
		out = append(out, raw.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *Store) queryProfiles(ctx context.Context, query string, args ...any) ([]nutrient.LivestockProfile, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("profile query failed: %w", err)
	}
	defer rows.Close()

	var out []nutrient.LivestockProfile
	for rows.Next() {
		var id, species, typ, stage, pk, me, sk, lk, ca, p sql.NullString
		if err := rows.Scan(&id, &species, &typ, &stage, &pk, &me, &sk, &lk, &ca, &p); err != nil {
			s.log.Error("Row scan failed", "error", err)
			continue
		}

		profile := nutrient.LivestockProfile{
			ID:      strings.TrimSpace(id.String),
			Species: strings.TrimSpace(species.String),
			Type:    strings.TrimSpace(typ.String),
			Stage:   strings.TrimSpace(stage.String),
		}
		raw := nutrient.RawTarget{
			PK: nullable(pk),
			ME: nullable(me),
			SK: nullable(sk),
			LK: nullable(lk),
			Ca: nullable(ca),
			P:  nullable(p),
		}
		// a profile whose requirement cells are all blank has no target
		if !raw.IsEmpty() {
			target := raw.Normalize()
			profile.Target = &target
		}
		out = append(out, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// nullable maps SQL NULL to nil so the normalizer treats it as missing
func nullable(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	return s.String
}
