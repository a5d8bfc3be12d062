package nutrient

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	require.Len(t, Keys, 6)

	codes := make([]string, 0, Count)
	for _, k := range Keys {
		codes = append(codes, k.Code())
	}
	assert.Equal(t, []string{"pk", "me", "sk", "lk", "ca", "p"}, codes)
	assert.Equal(t, "kcal/kg", Energy.Unit())
	assert.Equal(t, "%", Calcium.Unit())
	assert.Equal(t, "crude protein", Protein.String())
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(" CA ")
	require.NoError(t, err)
	assert.Equal(t, Calcium, k)

	_, err = ParseKey("zn")
	assert.Error(t, err)
}

func TestProfile_GetSet(t *testing.T) {
	var p Profile
	for i, k := range Keys {
		p.Set(k, float64(i+1))
	}

	assert.Equal(t, Profile{PK: 1, ME: 2, SK: 3, LK: 4, Ca: 5, P: 6}, p)
	for i, k := range Keys {
		assert.Equal(t, float64(i+1), p.Get(k))
	}

	// out of range keys are inert
	p.Set(Key(99), 42)
	assert.Equal(t, 0.0, p.Get(Key(99)))
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "Dedak", Ingredient{ID: "3", Name: "Dedak"}.Label())
	assert.Equal(t, "3", Ingredient{ID: "3", Name: " "}.Label())

	lp := LivestockProfile{Species: "Ayam", Type: "Broiler", Stage: "Starter"}
	assert.Equal(t, "Ayam - Broiler - Starter", lp.Label())
}
