package interfaces

import (
	"context"

	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

// CatalogStore persists raw records, one row per dedup key
type CatalogStore interface {
	// Upsert inserts or replaces records by dedup key, preserving CreatedAt of
	// existing rows. Returns the number of records written.
	Upsert(ctx context.Context, records []*models.RawRecord) (int, error)

	// ListPage returns records ordered by id starting after the given id.
	// An empty sourceSlug lists every source.
	ListPage(ctx context.Context, sourceSlug, after string, size int) (pager.Page[*models.RawRecord], error)

	// CountBySourceURLs returns the number of rows per source URL; URLs with
	// no rows map to 0
	CountBySourceURLs(ctx context.Context, urls []string) (map[string]int, error)

	// Count returns the number of rows (all sources when sourceSlug is empty)
	Count(ctx context.Context, sourceSlug string) (int, error)

	// DeleteBySourceURL removes every row scraped from one page
	DeleteBySourceURL(ctx context.Context, sourceURL string) error

	Close() error
}

// ImageStore mirrors product images and returns their public URL
type ImageStore interface {
	Put(ctx context.Context, data []byte, path string) (string, error)
}
