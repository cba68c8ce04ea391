package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const (
	recordColumns = `id, name, name_kana, slug, source_id, source_slug, manufacturer, category,
		target_species, price, length_mm, weight_key, weight_g, color_name, color_description,
		images, description, source_url, created_at, updated_at`

	upsertBatchSize = 200
)

// CatalogStore implements interfaces.CatalogStore on a Postgres table
type CatalogStore struct {
	db     *DB
	logger arbor.ILogger
}

// NewCatalogStore creates a catalog store over a connected pool
func NewCatalogStore(db *DB, logger arbor.ILogger) *CatalogStore {
	return &CatalogStore{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CatalogStore = (*CatalogStore)(nil)

// Upsert queues one statement per record and sends them in batches
func (s *CatalogStore) Upsert(ctx context.Context, records []*models.RawRecord) (int, error) {
	query := `INSERT INTO ` + s.db.table("raw_records") + ` (` + recordColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (source_slug, source_url, color_name, weight_key) DO UPDATE SET
			name = EXCLUDED.name,
			name_kana = EXCLUDED.name_kana,
			slug = EXCLUDED.slug,
			source_id = EXCLUDED.source_id,
			manufacturer = EXCLUDED.manufacturer,
			category = EXCLUDED.category,
			target_species = EXCLUDED.target_species,
			price = EXCLUDED.price,
			length_mm = EXCLUDED.length_mm,
			weight_g = EXCLUDED.weight_g,
			color_description = EXCLUDED.color_description,
			images = EXCLUDED.images,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at`

	total := 0
	now := time.Now().UTC()
	for i := 0; i < len(records); i += upsertBatchSize {
		j := min(i+upsertBatchSize, len(records))

		b := &pgx.Batch{}
		count := 0
		for _, r := range records[i:j] {
			if r == nil {
				continue
			}
			r.EnsureID()
			created := r.CreatedAt
			if created.IsZero() {
				created = now
			}
			var weights []float64
			if !r.WeightG.IsZero() {
				weights = []float64(r.WeightG)
			}

			b.Queue(query,
				r.ID, r.Name, r.NameKana, r.Slug, r.SourceID, r.SourceSlug, r.Manufacturer, r.Category,
				nonNil(r.TargetSpecies), r.Price, r.LengthMM, r.WeightG.Key(), weights, r.ColorName, r.ColorDescription,
				nonNil(r.Images), r.Description, r.SourceURL, created, now,
			)
			r.UpdatedAt = now
			count++
		}

		br := s.db.pool.SendBatch(ctx, b)
		for k := 0; k < count; k++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return total, fmt.Errorf("failed to upsert records: %w", err)
			}
			total++
		}
		if err := br.Close(); err != nil {
			return total, fmt.Errorf("failed to upsert records: %w", err)
		}
	}
	return total, nil
}

func (s *CatalogStore) ListPage(ctx context.Context, sourceSlug, after string, size int) (pager.Page[*models.RawRecord], error) {
	if size <= 0 {
		size = pager.DefaultPageSize
	}

	query := `SELECT ` + recordColumns + ` FROM ` + s.db.table("raw_records") + ` WHERE id > $1`
	args := []any{after}
	if sourceSlug != "" {
		query += ` AND source_slug = $2`
		args = append(args, sourceSlug)
	}
	query += fmt.Sprintf(` ORDER BY id LIMIT %d`, size+1)

	rows, err := s.db.pool.Query(ctx, query, args...)
	if err != nil {
		return pager.Page[*models.RawRecord]{}, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	page := pager.Page[*models.RawRecord]{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return pager.Page[*models.RawRecord]{}, err
		}
		if len(page.Items) == size {
			page.Next = page.Items[size-1].ID
			break
		}
		page.Items = append(page.Items, r)
	}
	if err := rows.Err(); err != nil {
		return pager.Page[*models.RawRecord]{}, fmt.Errorf("failed to read records: %w", err)
	}
	return page, nil
}

func (s *CatalogStore) CountBySourceURLs(ctx context.Context, urls []string) (map[string]int, error) {
	counts := make(map[string]int, len(urls))
	for _, u := range urls {
		counts[u] = 0
	}
	if len(urls) == 0 {
		return counts, nil
	}

	rows, err := s.db.pool.Query(ctx,
		`SELECT source_url, COUNT(*) FROM `+s.db.table("raw_records")+` WHERE source_url = ANY($1) GROUP BY source_url`, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by url: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		var n int64
		if err := rows.Scan(&u, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[u] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read counts: %w", err)
	}
	return counts, nil
}

func (s *CatalogStore) Count(ctx context.Context, sourceSlug string) (int, error) {
	query := `SELECT COUNT(*) FROM ` + s.db.table("raw_records")
	var args []any
	if sourceSlug != "" {
		query += ` WHERE source_slug = $1`
		args = append(args, sourceSlug)
	}

	var n int64
	if err := s.db.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

func (s *CatalogStore) DeleteBySourceURL(ctx context.Context, sourceURL string) error {
	if _, err := s.db.pool.Exec(ctx, `DELETE FROM `+s.db.table("raw_records")+` WHERE source_url = $1`, sourceURL); err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", sourceURL, err)
	}
	return nil
}

func (s *CatalogStore) Close() error {
	return s.db.Close()
}

func scanRecord(rows pgx.Rows) (*models.RawRecord, error) {
	var (
		r         models.RawRecord
		weightKey string
		weights   []float64
	)
	err := rows.Scan(&r.ID, &r.Name, &r.NameKana, &r.Slug, &r.SourceID, &r.SourceSlug, &r.Manufacturer, &r.Category,
		&r.TargetSpecies, &r.Price, &r.LengthMM, &weightKey, &weights, &r.ColorName, &r.ColorDescription,
		&r.Images, &r.Description, &r.SourceURL, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	if len(weights) > 0 {
		r.WeightG = weights
	} else if r.WeightG, err = models.ParseWeightsKey(weightKey); err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
