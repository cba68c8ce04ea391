package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tacklebox/internal/models"
)

func TestCrossProduct_ColorsOuter(t *testing.T) {
	colors := []Color{{Name: "Red"}, {Name: "Blue"}}
	got := CrossProduct(colors, []float64{7, 10})

	require.Len(t, got, 4)
	assert.Equal(t, "Red", got[0].Color.Name)
	assert.Equal(t, models.Weights{7}, got[0].Weight)
	assert.Equal(t, "Red", got[1].Color.Name)
	assert.Equal(t, models.Weights{10}, got[1].Weight)
	assert.Equal(t, "Blue", got[2].Color.Name)
	assert.Equal(t, models.Weights{7}, got[2].Weight)
}

func TestCrossProduct_Degenerate(t *testing.T) {
	got := CrossProduct([]Color{{Name: "Red"}}, nil)
	require.Len(t, got, 1)
	assert.True(t, got[0].Weight.IsZero())

	got = CrossProduct(nil, []float64{5, 7})
	require.Len(t, got, 2)
	assert.Equal(t, "", got[0].Color.Name)

	assert.Len(t, CrossProduct(nil, nil), 1)
}

func TestPerColor(t *testing.T) {
	got := PerColor([]Color{{Name: "A"}, {Name: "B"}}, models.Weights{5, 7})
	require.Len(t, got, 2)
	assert.Equal(t, "5/7", got[1].Weight.Key())
}

func TestUniqueColors(t *testing.T) {
	got := UniqueColors([]Color{{Name: "Red "}, {Name: "Blue"}, {Name: "Red"}})
	require.Len(t, got, 2)
	assert.Equal(t, "Red", got[0].Name)
	assert.Equal(t, "Blue", got[1].Name)
}

func TestDescription(t *testing.T) {
	got := Description("<p>Shallow <strong>jerkbait</strong></p><p>Floating</p>", "https://example.com")
	assert.Contains(t, got, "**jerkbait**")
	assert.Contains(t, got, "Floating")
	assert.Equal(t, "", Description("   ", ""))
}
