// Package storagetest holds behaviour tests shared by every catalog store
// backend.
package storagetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

// Record builds a valid record for one color/weight observation
func Record(sourceSlug, sourceURL, color string, weights ...float64) *models.RawRecord {
	return &models.RawRecord{
		Name:          "Test Minnow 110",
		Slug:          "test-minnow-110",
		SourceID:      sourceSlug,
		SourceSlug:    sourceSlug,
		Manufacturer:  "Test Lures",
		Category:      "minnow",
		TargetSpecies: []string{"seabass"},
		Price:         models.IntPtr(1980),
		LengthMM:      models.FloatPtr(110),
		WeightG:       models.Weights(weights),
		ColorName:     color,
		Images:        []string{sourceURL + "/main.jpg"},
		Description:   "A **test** lure.",
		SourceURL:     sourceURL,
	}
}

// RunCatalogStoreTests exercises a CatalogStore implementation. newStore must
// return an empty store.
func RunCatalogStoreTests(t *testing.T, newStore func(t *testing.T) interfaces.CatalogStore) {
	t.Run("UpsertIsIdempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		records := []*models.RawRecord{
			Record("alpha", "https://alpha.example/p/1", "Red", 7),
			Record("alpha", "https://alpha.example/p/1", "Red", 10),
			Record("alpha", "https://alpha.example/p/1", "Blue", 7),
		}
		n, err := store.Upsert(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		first := loadAll(t, store, "")
		require.Len(t, first, 3)

		time.Sleep(2 * time.Millisecond)
		again := []*models.RawRecord{
			Record("alpha", "https://alpha.example/p/1", "Red", 7),
			Record("alpha", "https://alpha.example/p/1", "Red", 10),
			Record("alpha", "https://alpha.example/p/1", "Blue", 7),
		}
		again[0].Price = models.IntPtr(2200)
		_, err = store.Upsert(ctx, again)
		require.NoError(t, err)

		count, err := store.Count(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, 3, count)

		second := loadAll(t, store, "")
		require.Len(t, second, 3)
		byID := make(map[string]*models.RawRecord)
		for _, r := range first {
			byID[r.ID] = r
		}
		for _, r := range second {
			before, ok := byID[r.ID]
			require.True(t, ok, "id %s changed between upserts", r.ID)
			assert.True(t, before.CreatedAt.Equal(r.CreatedAt), "created_at must survive an update")
			assert.False(t, r.UpdatedAt.Before(before.UpdatedAt))
		}
		assert.Equal(t, 2200, *findRecord(t, second, "Red", "7").Price)
	})

	t.Run("RoundTripsOptionalFields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		full := Record("alpha", "https://alpha.example/p/2", "Chart", 7, 10, 14)
		full.NameKana = "テストミノー"
		full.ColorDescription = "C01"
		bare := Record("alpha", "https://alpha.example/p/3", "")
		bare.Price = nil
		bare.LengthMM = nil
		bare.TargetSpecies = nil

		_, err := store.Upsert(ctx, []*models.RawRecord{full, bare})
		require.NoError(t, err)

		got := loadAll(t, store, "")
		require.Len(t, got, 2)

		f := findRecord(t, got, "Chart", "7/10/14")
		assert.Equal(t, models.Weights{7, 10, 14}, f.WeightG)
		assert.Equal(t, "テストミノー", f.NameKana)
		assert.Equal(t, "C01", f.ColorDescription)
		assert.Equal(t, []string{"seabass"}, f.TargetSpecies)
		assert.Equal(t, []string{"https://alpha.example/p/2/main.jpg"}, f.Images)
		require.NotNil(t, f.LengthMM)
		assert.Equal(t, 110.0, *f.LengthMM)
		assert.Equal(t, full.ID, f.ID)

		b := findRecord(t, got, "", "")
		assert.Nil(t, b.Price)
		assert.Nil(t, b.LengthMM)
		assert.True(t, b.WeightG.IsZero())
		assert.Empty(t, b.TargetSpecies)
	})

	t.Run("ListPageWalksEveryRecordOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var records []*models.RawRecord
		for _, color := range []string{"A", "B", "C", "D", "E"} {
			records = append(records, Record("alpha", "https://alpha.example/p/4", color, 5))
		}
		records = append(records, Record("beta", "https://beta.example/p/1", "A", 5))
		_, err := store.Upsert(ctx, records)
		require.NoError(t, err)

		all, err := pager.All(ctx, 2, 0, func(ctx context.Context, after string, size int) (pager.Page[*models.RawRecord], error) {
			return store.ListPage(ctx, "", after, size)
		})
		require.NoError(t, err)
		require.Len(t, all, 6)
		ids := make([]string, len(all))
		for i, r := range all {
			ids[i] = r.ID
		}
		assert.True(t, sort.StringsAreSorted(ids), "pages are ordered by id")

		alpha := loadAll(t, store, "alpha")
		assert.Len(t, alpha, 5)
		beta, err := store.Count(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, 1, beta)
	})

	t.Run("CountBySourceURLs", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Upsert(ctx, []*models.RawRecord{
			Record("alpha", "https://alpha.example/p/5", "Red", 7),
			Record("alpha", "https://alpha.example/p/5", "Blue", 7),
			Record("alpha", "https://alpha.example/p/6", "Red", 7),
		})
		require.NoError(t, err)

		counts, err := store.CountBySourceURLs(ctx, []string{
			"https://alpha.example/p/5",
			"https://alpha.example/p/6",
			"https://alpha.example/p/missing",
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{
			"https://alpha.example/p/5":       2,
			"https://alpha.example/p/6":       1,
			"https://alpha.example/p/missing": 0,
		}, counts)
	})

	t.Run("ConcurrentDistinctUpserts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 16
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				url := fmt.Sprintf("https://alpha.example/p/c%02d", i)
				_, errs[i] = store.Upsert(ctx, []*models.RawRecord{
					Record("alpha", url, "Red", 7),
					Record("alpha", url, "Blue", 7, 10),
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			assert.NoError(t, err, "writer %d", i)
		}
		n, err := store.Count(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, writers*2, n)
	})

	t.Run("DeleteBySourceURL", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Upsert(ctx, []*models.RawRecord{
			Record("alpha", "https://alpha.example/p/7", "Red", 7),
			Record("alpha", "https://alpha.example/p/8", "Red", 7),
		})
		require.NoError(t, err)

		require.NoError(t, store.DeleteBySourceURL(ctx, "https://alpha.example/p/7"))
		counts, err := store.CountBySourceURLs(ctx, []string{"https://alpha.example/p/7", "https://alpha.example/p/8"})
		require.NoError(t, err)
		assert.Equal(t, 0, counts["https://alpha.example/p/7"])
		assert.Equal(t, 1, counts["https://alpha.example/p/8"])
	})
}

func loadAll(t *testing.T, store interfaces.CatalogStore, sourceSlug string) []*models.RawRecord {
	t.Helper()
	all, err := pager.All(context.Background(), 100, 0, func(ctx context.Context, after string, size int) (pager.Page[*models.RawRecord], error) {
		return store.ListPage(ctx, sourceSlug, after, size)
	})
	require.NoError(t, err)
	return all
}

func findRecord(t *testing.T, records []*models.RawRecord, color, weightKey string) *models.RawRecord {
	t.Helper()
	for _, r := range records {
		if r.ColorName == color && r.WeightG.Key() == weightKey {
			return r
		}
	}
	require.Failf(t, "record not found", "color %q weight %q", color, weightKey)
	return nil
}
