package interfaces

import (
	"context"

	"github.com/ternarybob/tacklebox/internal/models"
)

// Adapter turns one manufacturer's pages into canonical records
type Adapter interface {
	// Source identifies the manufacturer and the base URL the adapter owns
	Source() models.Source

	// Owns reports whether rawURL belongs to this source
	Owns(rawURL string) bool

	// Extract returns every color × weight record found on the page.
	// Errors are *models.FetchError or *models.ParseError.
	Extract(ctx context.Context, rawURL string) ([]*models.RawRecord, error)

	// ListProducts returns the product URLs the source currently lists
	ListProducts(ctx context.Context) ([]string, error)
}

// AdapterRegistry resolves adapters by id or URL
type AdapterRegistry interface {
	Lookup(id string) (Adapter, bool)
	ForURL(rawURL string) (Adapter, bool)
	IDs() []string
}
