package series

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/storage/sqlite"
)

var base = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func rec(name, color string, price int, weights ...float64) *models.RawRecord {
	return &models.RawRecord{
		Name:       name,
		Slug:       "slug-" + name,
		SourceID:   "alpha",
		SourceSlug: "alpha",
		Category:   "minnow",
		Price:      models.IntPtr(price),
		WeightG:    models.Weights(weights),
		ColorName:  color,
		Images:     []string{"https://alpha.example/" + color + ".jpg"},
		SourceURL:  "https://alpha.example/p/" + name,
		CreatedAt:  base,
	}
}

func TestAggregate_GroupsByExactName(t *testing.T) {
	records := []*models.RawRecord{
		rec("Vision 110", "Red", 2420, 14),
		rec("Vision 110 Jr", "Red", 2200, 10),
		rec("Vision 110", "Blue", 2420, 14),
		rec("vision 110", "Blue", 2420, 14),
	}

	out := Aggregate(records)
	require.Len(t, out, 3)

	names := []string{out[0].Name, out[1].Name, out[2].Name}
	assert.ElementsMatch(t, []string{"Vision 110", "Vision 110 Jr", "vision 110"}, names)
}

func TestAggregate_DeduplicatesVariantsKeepingFirst(t *testing.T) {
	first := rec("Vision 110", "Red", 2420, 14)
	first.ColorDescription = "first"
	dup := rec("Vision 110", "Red", 2500, 14)
	dup.ColorDescription = "second"
	otherWeight := rec("Vision 110", "Red", 2420, 7, 10)

	out := Aggregate([]*models.RawRecord{first, dup, otherWeight})
	require.Len(t, out, 1)
	require.Equal(t, 2, out[0].ColorCount())
	assert.Equal(t, "first", out[0].ColorVariants[0].ColorDescription)
	assert.Equal(t, models.Weights{7, 10}, out[0].ColorVariants[1].WeightG)
}

func TestAggregate_Ranges(t *testing.T) {
	var records []*models.RawRecord
	for i, p := range []int{715, 665, 820, 770} {
		r := rec("Dart", string(rune('A'+i)), p, float64(3+i))
		r.LengthMM = models.FloatPtr(float64(40 + i*5))
		records = append(records, r)
	}
	records[3].WeightG = models.Weights{1.5, 12}

	out := Aggregate(records)
	require.Len(t, out, 1)
	s := out[0]

	assert.Equal(t, models.IntRange{Min: 665, Max: 820}, s.PriceRange)
	require.NotNil(t, s.WeightRange)
	assert.Equal(t, models.FloatRange{Min: 1.5, Max: 12}, *s.WeightRange)
	require.NotNil(t, s.LengthRange)
	assert.Equal(t, models.FloatRange{Min: 40, Max: 55}, *s.LengthRange)
}

func TestAggregate_MissingFields(t *testing.T) {
	r := rec("Bare", "Red", 0)
	r.Price = nil
	r.Images = []string{""}
	r2 := rec("Bare", "Blue", 0)
	r2.Price = nil

	out := Aggregate([]*models.RawRecord{r, r2})
	require.Len(t, out, 1)
	s := out[0]

	assert.Equal(t, models.IntRange{}, s.PriceRange)
	assert.Nil(t, s.WeightRange)
	assert.Nil(t, s.LengthRange)
	assert.Equal(t, "https://alpha.example/Blue.jpg", s.Image, "first non-empty image in member order")
}

func TestAggregate_SpeciesUnionAndCreatedAt(t *testing.T) {
	a := rec("Pencil", "Red", 1000, 5)
	a.TargetSpecies = []string{"seabass", "bass"}
	a.CreatedAt = base.Add(2 * time.Hour)
	b := rec("Pencil", "Blue", 1000, 5)
	b.TargetSpecies = []string{"trout", "bass"}
	b.CreatedAt = base

	out := Aggregate([]*models.RawRecord{a, b})
	require.Len(t, out, 1)
	assert.Equal(t, []string{"bass", "seabass", "trout"}, out[0].TargetSpecies)
	assert.True(t, out[0].CreatedAt.Equal(base))
}

func TestAggregate_SortsNewestFirst(t *testing.T) {
	old := rec("Old", "Red", 1000)
	old.CreatedAt = base
	newer := rec("Newer", "Red", 1000)
	newer.CreatedAt = base.Add(time.Hour)
	tieB := rec("B tie", "Red", 1000)
	tieA := rec("A tie", "Red", 1000)

	out := Aggregate([]*models.RawRecord{old, tieB, newer, tieA})
	require.Len(t, out, 4)
	assert.Equal(t, "Newer", out[0].Name)
	assert.Equal(t, "A tie", out[1].Name)
	assert.Equal(t, "B tie", out[2].Name)
	assert.Equal(t, "Old", out[3].Name)
}

func TestAggregate_IsIdempotent(t *testing.T) {
	records := []*models.RawRecord{
		rec("Vision 110", "Red", 2420, 14),
		rec("Vision 110", "Blue", 2530, 14),
		rec("Dart", "Red", 700, 3),
	}

	first := Aggregate(records)
	second := Aggregate(records)
	assert.Equal(t, first, second)
}

func TestLoad_EndToEnd(t *testing.T) {
	logger := arbor.NewLogger()
	db, err := sqlite.NewSQLiteDB(logger, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	store := sqlite.NewCatalogStore(db, logger)
	t.Cleanup(func() { _ = store.Close() })

	// One product with 2 colors × 2 weights
	var records []*models.RawRecord
	prices := []int{665, 715, 770, 820}
	i := 0
	for _, color := range []string{"Red", "Blue"} {
		for _, w := range []float64{7, 10} {
			records = append(records, rec("Vision 110", color, prices[i], w))
			i++
		}
	}
	n, err := store.Upsert(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	out, err := Load(context.Background(), store, 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 4, out[0].ColorCount())
	assert.Equal(t, models.IntRange{Min: 665, Max: 820}, out[0].PriceRange)
	assert.Equal(t, models.FloatRange{Min: 7, Max: 10}, *out[0].WeightRange)

	other, err := LoadSource(context.Background(), store, "beta", 3)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestWrite(t *testing.T) {
	out := Aggregate([]*models.RawRecord{
		rec("Vision 110", "Red", 2420, 14),
		rec("Vision 110", "Blue", 2420, 7, 10),
	})

	var jsonBuf bytes.Buffer
	require.NoError(t, Write(&jsonBuf, out, FormatJSON))
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "Vision 110", decoded[0]["name"])
	assert.EqualValues(t, 2, decoded[0]["color_count"])

	var yamlBuf bytes.Buffer
	require.NoError(t, Write(&yamlBuf, out, FormatYAML))
	var fromYAML []map[string]any
	require.NoError(t, yaml.Unmarshal(yamlBuf.Bytes(), &fromYAML))
	require.Len(t, fromYAML, 1)
	assert.Equal(t, "Vision 110", fromYAML[0]["name"])
	assert.Equal(t, 2, fromYAML[0]["color_count"])

	assert.Error(t, Write(&bytes.Buffer{}, out, "xml"))
}
