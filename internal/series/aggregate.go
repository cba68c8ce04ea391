// Package series folds raw catalog records into one logical product per name.
// The result is computed on read from the catalog alone.
package series

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

type variantKey struct {
	color  string
	weight string
}

// Aggregate groups records by exact name. Within a series, variants are
// deduplicated by (color, weight) keeping the first seen. Output is sorted
// newest first, ties by name.
func Aggregate(records []*models.RawRecord) []*models.SeriesAggregate {
	var order []string
	groups := make(map[string][]*models.RawRecord)
	for _, r := range records {
		if r == nil {
			continue
		}
		if _, ok := groups[r.Name]; !ok {
			order = append(order, r.Name)
		}
		groups[r.Name] = append(groups[r.Name], r)
	}

	out := make([]*models.SeriesAggregate, 0, len(order))
	for _, name := range order {
		out = append(out, build(name, groups[name]))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func build(name string, members []*models.RawRecord) *models.SeriesAggregate {
	first := members[0]
	s := &models.SeriesAggregate{
		Slug:          first.Slug,
		Name:          name,
		Manufacturer:  first.Manufacturer,
		SourceSlug:    first.SourceSlug,
		Category:      first.Category,
		ColorVariants: []models.ColorVariant{},
		TargetSpecies: []string{},
	}

	var (
		created     time.Time
		priceSet    bool
		price       models.IntRange
		weight      *models.FloatRange
		length      *models.FloatRange
		species     = make(map[string]struct{})
		seenVariant = make(map[variantKey]struct{})
	)

	for _, m := range members {
		if s.NameKana == "" {
			s.NameKana = m.NameKana
		}
		if s.Description == "" {
			s.Description = m.Description
		}
		if (s.Category == "" || s.Category == "other") && m.Category != "" {
			s.Category = m.Category
		}
		if s.Image == "" {
			s.Image = m.MainImage()
		}
		if !m.CreatedAt.IsZero() && (created.IsZero() || m.CreatedAt.Before(created)) {
			created = m.CreatedAt
		}

		if m.Price != nil {
			p := *m.Price
			if !priceSet {
				price = models.IntRange{Min: p, Max: p}
				priceSet = true
			} else {
				price.Min = min(price.Min, p)
				price.Max = max(price.Max, p)
			}
		}
		if lo, ok := m.WeightG.Min(); ok {
			hi, _ := m.WeightG.Max()
			weight = widen(weight, lo, hi)
		}
		if m.LengthMM != nil {
			length = widen(length, *m.LengthMM, *m.LengthMM)
		}
		for _, sp := range m.TargetSpecies {
			if sp = strings.TrimSpace(sp); sp != "" {
				species[sp] = struct{}{}
			}
		}

		key := variantKey{color: m.ColorName, weight: m.WeightG.Key()}
		if _, dup := seenVariant[key]; dup {
			continue
		}
		seenVariant[key] = struct{}{}
		s.ColorVariants = append(s.ColorVariants, models.ColorVariant{
			ColorName:        m.ColorName,
			ColorDescription: m.ColorDescription,
			WeightG:          m.WeightG,
			Price:            m.Price,
			LengthMM:         m.LengthMM,
			Image:            m.MainImage(),
			SourceURL:        m.SourceURL,
		})
	}

	s.PriceRange = price
	s.WeightRange = weight
	s.LengthRange = length
	s.CreatedAt = created
	for sp := range species {
		s.TargetSpecies = append(s.TargetSpecies, sp)
	}
	sort.Strings(s.TargetSpecies)

	return s
}

func widen(r *models.FloatRange, lo, hi float64) *models.FloatRange {
	if r == nil {
		return &models.FloatRange{Min: lo, Max: hi}
	}
	r.Min = min(r.Min, lo)
	r.Max = max(r.Max, hi)
	return r
}

// Load reads the whole catalog page by page and aggregates it
func Load(ctx context.Context, catalog interfaces.CatalogStore, pageSize int) ([]*models.SeriesAggregate, error) {
	return LoadSource(ctx, catalog, "", pageSize)
}

// LoadSource aggregates the records of one source (every source when
// sourceSlug is empty). Members are taken in ingestion order so that
// "first seen" means first ingested.
func LoadSource(ctx context.Context, catalog interfaces.CatalogStore, sourceSlug string, pageSize int) ([]*models.SeriesAggregate, error) {
	records, err := pager.All(ctx, pageSize, 0, func(ctx context.Context, after string, size int) (pager.Page[*models.RawRecord], error) {
		return catalog.ListPage(ctx, sourceSlug, after, size)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	return Aggregate(records), nil
}
