package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatJSON, FormatFromPath("request.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("/tmp/REQUEST.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("request.yaml"))
	assert.Equal(t, FormatYAML, FormatFromPath("request.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("request"))
}

func TestDecodeRequests(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		format      Format
		expectCount int
		expectError bool
	}{
		{
			name:        "json object",
			data:        `{"profile_id": "1", "ingredient_ids": ["1", "3"]}`,
			format:      FormatJSON,
			expectCount: 1,
		},
		{
			name:        "json list",
			data:        `[{"profile_id": "1"}, {"profile_id": "2"}]`,
			format:      FormatJSON,
			expectCount: 2,
		},
		{
			name:        "json empty list",
			data:        `[]`,
			format:      FormatJSON,
			expectError: true,
		},
		{
			name:        "json blank",
			data:        "  \n",
			format:      FormatJSON,
			expectError: true,
		},
		{
			name:        "json malformed",
			data:        `{"profile_id": `,
			format:      FormatJSON,
			expectError: true,
		},
		{
			name:        "yaml mapping",
			data:        "profile_id: \"1\"\ningredient_ids: [\"1\", \"3\"]\n",
			format:      FormatYAML,
			expectCount: 1,
		},
		{
			name:        "yaml sequence",
			data:        "- profile_id: \"1\"\n- profile_id: \"2\"\n- profile_id: \"3\"\n",
			format:      FormatYAML,
			expectCount: 3,
		},
		{
			name:        "yaml empty",
			data:        "",
			format:      FormatYAML,
			expectError: true,
		},
		{
			name:        "yaml scalar",
			data:        "just text",
			format:      FormatYAML,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := DecodeRequests([]byte(tt.data), tt.format)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, reqs, tt.expectCount)
		})
	}
}

func TestDecodeRequests_InlineValues(t *testing.T) {
	yamlDoc := `
ingredients:
  - id: 1
    name: Jagung
    pk: 8.5
    me: "3300"
    sk: ""
    lk: n/a
    ca: -1
    p: 0.28
target:
  pk_target: 22
  me_target: 3000
`
	jsonDoc := `{
  "ingredients": [
    {"id": 1, "name": "Jagung", "pk": 8.5, "me": "3300", "sk": "", "lk": "n/a", "ca": -1, "p": 0.28}
  ],
  "target": {"pk_target": 22, "me_target": 3000}
}`

	expected := nutrient.Ingredient{
		ID:        "1",
		Name:      "Jagung",
		Nutrients: nutrient.Profile{PK: 8.5, ME: 3300, P: 0.28},
	}

	for format, doc := range map[Format]string{FormatYAML: yamlDoc, FormatJSON: jsonDoc} {
		t.Run(string(format), func(t *testing.T) {
			reqs, err := DecodeRequests([]byte(doc), format)
			require.NoError(t, err)
			require.Len(t, reqs, 1)

			resolved, err := reqs[0].Resolve(context.Background(), nil)
			require.NoError(t, err)
			require.Len(t, resolved.Ingredients, 1)
			assert.Equal(t, expected, resolved.Ingredients[0])
			require.NotNil(t, resolved.Target)
			assert.Equal(t, nutrient.Target{PK: 22, ME: 3000}, *resolved.Target)
		})
	}
}
