package interfaces

import (
	"context"

	"github.com/ternarybob/tacklebox/internal/models"
)

// PageFetcher retrieves a page over plain HTTP.
// Failures are returned as *models.FetchError.
type PageFetcher interface {
	Get(ctx context.Context, rawURL string) (*models.Page, error)
}

// PageRenderer loads a page in a headless browser and returns the rendered DOM
type PageRenderer interface {
	Render(ctx context.Context, rawURL string) (*models.Page, error)
	Enabled() bool
}
