package catalog

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

const testIngredientsCSV = `id,name,pk,me,sk,lk,ca,p
1,Jagung,8.5,3300,3.0,4.0,0.02,0.28
2,Dedak Padi,12,2800,12,12,0.05,1.2
3,Bungkil Kedelai,45,2230,1,3,,0.65
4,Tepung Ikan,60,n/a,8,8,5,3
5,Kalsium Karbonat,0,0,0,0,38,-1
`

const testProfilesCSV = `id,species,type,stage,pk_target,me_target,sk_target,lk_target,ca_target,p_target
1,Ayam,Broiler,Starter,22,3000,5,5,1,0.45
2,Ayam,Petelur,Layer,17,2750,6,4,3.5,0.45
3,Itik,Pedaging,Grower,,,,,,
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	ingredients := filepath.Join(dir, "ingredients.csv")
	profiles := filepath.Join(dir, "livestock_profiles.csv")
	require.NoError(t, os.WriteFile(ingredients, []byte(testIngredientsCSV), 0o644))
	require.NoError(t, os.WriteFile(profiles, []byte(testProfilesCSV), 0o644))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store, err := NewStore(ingredients, profiles, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_ListIngredients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	all, err := store.ListIngredients(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, nutrient.Profile{PK: 8.5, ME: 3300, SK: 3, LK: 4, Ca: 0.02, P: 0.28}, all[0].Nutrients)

	// blank, garbage and negative cells are normalized to zero
	assert.Equal(t, 0.0, all[2].Nutrients.Ca)
	assert.Equal(t, 0.0, all[3].Nutrients.ME)
	assert.Equal(t, 0.0, all[4].Nutrients.P)

	filtered, err := store.ListIngredients(ctx, "tepung", 10)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Tepung Ikan", filtered[0].Name)

	limited, err := store.ListIngredients(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_GetIngredients(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetIngredients(ctx, []string{"4", " 1", "4"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].ID)
	assert.Equal(t, "1", got[1].ID)

	_, err = store.GetIngredients(ctx, []string{"1", "99"})
	var missing *MissingIDsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"99"}, missing.IDs)
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := store.GetIngredients(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_Profiles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profiles, err := store.ListProfiles(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "Ayam - Broiler - Starter", profiles[0].Label())
	require.NotNil(t, profiles[0].Target)
	assert.Equal(t, nutrient.Target{PK: 22, ME: 3000, SK: 5, LK: 5, Ca: 1, P: 0.45}, *profiles[0].Target)

	layer, err := store.ListProfiles(ctx, "petelur", 0)
	require.NoError(t, err)
	require.Len(t, layer, 1)
	assert.Equal(t, "2", layer[0].ID)

	duck, err := store.GetProfile(ctx, "3")
	require.NoError(t, err)
	assert.Nil(t, duck.Target, "profile without requirement data has no target")

	_, err = store.GetProfile(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_HealthCheck(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	broken, err := NewStore("/nonexistent/ingredients.csv", "/nonexistent/profiles.csv", logger)
	require.NoError(t, err)
	defer broken.Close()

	assert.Error(t, broken.HealthCheck(context.Background()), "should fail with nonexistent files")
}
