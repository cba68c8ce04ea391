package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

const recordColumns = `id, name, name_kana, slug, source_id, source_slug, manufacturer, category,
	target_species, price, length_mm, weight_key, color_name, color_description, images,
	description, source_url, created_at, updated_at`

// Placeholders bound per statement in CountBySourceURLs
const countChunkSize = 200

// CatalogStore implements interfaces.CatalogStore on the raw_records table
type CatalogStore struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCatalogStore creates a catalog store over an open database
func NewCatalogStore(db *SQLiteDB, logger arbor.ILogger) *CatalogStore {
	return &CatalogStore{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CatalogStore = (*CatalogStore)(nil)

// Upsert writes all records in one transaction. Rows are matched on the
// dedup key; created_at of an existing row is kept.
func (s *CatalogStore) Upsert(ctx context.Context, records []*models.RawRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO raw_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_slug, source_url, color_name, weight_key) DO UPDATE SET
			name = excluded.name,
			name_kana = excluded.name_kana,
			slug = excluded.slug,
			source_id = excluded.source_id,
			manufacturer = excluded.manufacturer,
			category = excluded.category,
			target_species = excluded.target_species,
			price = excluded.price,
			length_mm = excluded.length_mm,
			images = excluded.images,
			description = excluded.description,
			color_description = excluded.color_description,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	written := 0
	for _, r := range records {
		if r == nil {
			continue
		}
		r.EnsureID()
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}

		species, err := json.Marshal(nonNil(r.TargetSpecies))
		if err != nil {
			return written, fmt.Errorf("failed to encode species: %w", err)
		}
		images, err := json.Marshal(nonNil(r.Images))
		if err != nil {
			return written, fmt.Errorf("failed to encode images: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			r.ID, r.Name, r.NameKana, r.Slug, r.SourceID, r.SourceSlug, r.Manufacturer, r.Category,
			string(species), nullInt(r.Price), nullFloat(r.LengthMM), r.WeightG.Key(), r.ColorName, r.ColorDescription, string(images),
			r.Description, r.SourceURL, created.UnixNano(), now.UnixNano())
		if err != nil {
			return written, fmt.Errorf("failed to upsert %s: %w", r.SourceURL, err)
		}
		r.UpdatedAt = now
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit upsert: %w", err)
	}
	return written, nil
}

func (s *CatalogStore) ListPage(ctx context.Context, sourceSlug, after string, size int) (pager.Page[*models.RawRecord], error) {
	if size <= 0 {
		size = pager.DefaultPageSize
	}

	query := `SELECT ` + recordColumns + ` FROM raw_records WHERE id > ?`
	args := []any{after}
	if sourceSlug != "" {
		query += ` AND source_slug = ?`
		args = append(args, sourceSlug)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, size+1)

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
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

	for start := 0; start < len(urls); start += countChunkSize {
		chunk := urls[start:min(start+countChunkSize, len(urls))]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, u := range chunk {
			args[i] = u
		}

		rows, err := s.db.DB().QueryContext(ctx,
			`SELECT source_url, COUNT(*) FROM raw_records WHERE source_url IN (`+placeholders+`) GROUP BY source_url`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to count records by url: %w", err)
		}
		for rows.Next() {
			var u string
			var n int
			if err := rows.Scan(&u, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan count: %w", err)
			}
			counts[u] = n
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read counts: %w", err)
		}
	}
	return counts, nil
}

func (s *CatalogStore) Count(ctx context.Context, sourceSlug string) (int, error) {
	query := `SELECT COUNT(*) FROM raw_records`
	var args []any
	if sourceSlug != "" {
		query += ` WHERE source_slug = ?`
		args = append(args, sourceSlug)
	}

	var n int
	if err := s.db.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (s *CatalogStore) DeleteBySourceURL(ctx context.Context, sourceURL string) error {
	if _, err := s.db.DB().ExecContext(ctx, `DELETE FROM raw_records WHERE source_url = ?`, sourceURL); err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", sourceURL, err)
	}
	return nil
}

func (s *CatalogStore) Close() error {
	return s.db.Close()
}

func scanRecord(rows *sql.Rows) (*models.RawRecord, error) {
	var (
		r                models.RawRecord
		species, images  string
		weightKey        string
		price            sql.NullInt64
		length           sql.NullFloat64
		created, updated int64
	)
	err := rows.Scan(&r.ID, &r.Name, &r.NameKana, &r.Slug, &r.SourceID, &r.SourceSlug, &r.Manufacturer, &r.Category,
		&species, &price, &length, &weightKey, &r.ColorName, &r.ColorDescription, &images,
		&r.Description, &r.SourceURL, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}

	if err := json.Unmarshal([]byte(species), &r.TargetSpecies); err != nil {
		return nil, fmt.Errorf("record %s: bad target_species: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
		return nil, fmt.Errorf("record %s: bad images: %w", r.ID, err)
	}
	if r.WeightG, err = models.ParseWeightsKey(weightKey); err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	if price.Valid {
		v := int(price.Int64)
		r.Price = &v
	}
	if length.Valid {
		v := length.Float64
		r.LengthMM = &v
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return &r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
