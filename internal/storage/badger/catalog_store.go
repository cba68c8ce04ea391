package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

// CatalogStore keeps raw records in their own Badger directory, keyed by the
// record ID derived from the dedup key. Records have no secondary indexes, so
// upserts of distinct records never conflict; source and URL filters scan.
type CatalogStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCatalogStore creates a catalog store over an open database
func NewCatalogStore(db *BadgerDB, logger arbor.ILogger) *CatalogStore {
	return &CatalogStore{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.CatalogStore = (*CatalogStore)(nil)

// Upsert writes records keyed by dedup key; CreatedAt survives updates
func (s *CatalogStore) Upsert(ctx context.Context, records []*models.RawRecord) (int, error) {
	written := 0
	for start := 0; start < len(records); start += writeBatchSize {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		end := min(start+writeBatchSize, len(records))

		batch := 0
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			batch = 0
			now := time.Now().UTC()
			for _, r := range records[start:end] {
				if r == nil {
					continue
				}
				rec := *r
				rec.EnsureID()
				rec.UpdatedAt = now

				var existing models.RawRecord
				err := s.db.Store().TxGet(txn, rec.ID, &existing)
				switch {
				case err == nil:
					rec.CreatedAt = existing.CreatedAt
				case errors.Is(err, badgerhold.ErrNotFound):
					if rec.CreatedAt.IsZero() {
						rec.CreatedAt = now
					}
				default:
					return err
				}

				if err := s.db.Store().TxUpsert(txn, rec.ID, rec); err != nil {
					return err
				}
				r.ID, r.CreatedAt, r.UpdatedAt = rec.ID, rec.CreatedAt, rec.UpdatedAt
				batch++
			}
			return nil
		})
		if err != nil {
			return written, fmt.Errorf("failed to upsert records: %w", err)
		}
		written += batch
	}
	return written, nil
}

func (s *CatalogStore) ListPage(ctx context.Context, sourceSlug, after string, size int) (pager.Page[*models.RawRecord], error) {
	if size <= 0 {
		size = pager.DefaultPageSize
	}

	query := badgerhold.Where("ID").Gt(after)
	if sourceSlug != "" {
		query = query.And("SourceSlug").Eq(sourceSlug)
	}
	query = query.SortBy("ID").Limit(size + 1)

	var found []models.RawRecord
	if err := s.db.Store().Find(&found, query); err != nil {
		return pager.Page[*models.RawRecord]{}, fmt.Errorf("failed to list records: %w", err)
	}

	page := pager.Page[*models.RawRecord]{}
	for i := range found {
		if i == size {
			page.Next = found[size-1].ID
			break
		}
		page.Items = append(page.Items, &found[i])
	}
	return page, nil
}

func (s *CatalogStore) CountBySourceURLs(ctx context.Context, urls []string) (map[string]int, error) {
	counts := make(map[string]int, len(urls))
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.db.Store().Count(&models.RawRecord{}, badgerhold.Where("SourceURL").Eq(u))
		if err != nil {
			return nil, fmt.Errorf("failed to count records for %s: %w", u, err)
		}
		counts[u] = int(n)
	}
	return counts, nil
}

func (s *CatalogStore) Count(ctx context.Context, sourceSlug string) (int, error) {
	var query *badgerhold.Query
	if sourceSlug != "" {
		query = badgerhold.Where("SourceSlug").Eq(sourceSlug)
	}
	n, err := s.db.Store().Count(&models.RawRecord{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

// DeleteBySourceURL removes every record scraped from one page
func (s *CatalogStore) DeleteBySourceURL(ctx context.Context, sourceURL string) error {
	if err := s.db.Store().DeleteMatching(&models.RawRecord{}, badgerhold.Where("SourceURL").Eq(sourceURL)); err != nil {
		return fmt.Errorf("failed to delete records for %s: %w", sourceURL, err)
	}
	return nil
}

func (s *CatalogStore) Close() error {
	return s.db.Close()
}
