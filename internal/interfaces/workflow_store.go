package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

// ErrNotClaimable is returned by Claim when the entry is missing, not pending,
// or was claimed concurrently
var ErrNotClaimable = errors.New("workflow entry not claimable")

// ErrEntryNotFound is returned when a transition targets an unknown URL
var ErrEntryNotFound = errors.New("workflow entry not found")

// WorkflowStore tracks the processing state of every known source URL
type WorkflowStore interface {
	// Enqueue inserts new pending entries; URLs already present are left untouched.
	// Returns the number inserted.
	Enqueue(ctx context.Context, entries []*models.WorkflowEntry) (int, error)

	// ListPage returns entries ordered by URL starting after the given URL
	ListPage(ctx context.Context, filter models.WorkflowFilter, after string, size int) (pager.Page[*models.WorkflowEntry], error)

	// ListPending returns up to limit pending entries (0 = all), optionally for one source
	ListPending(ctx context.Context, sourceID string, limit int) ([]*models.WorkflowEntry, error)

	// Claim moves a pending entry to in_progress atomically
	Claim(ctx context.Context, url string) (*models.WorkflowEntry, error)

	Complete(ctx context.Context, url string) error
	Fail(ctx context.Context, url, note string) error

	// Release returns an in_progress entry to pending (cancelled run)
	Release(ctx context.Context, url string) error

	// Reset moves done or error entries back to pending with a note.
	// Returns the number of entries changed.
	Reset(ctx context.Context, urls []string, note string) (int, error)

	// ReleaseStale returns claims older than olderThan to pending
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error)

	// Counts returns the number of entries per status (all sources when sourceID is empty)
	Counts(ctx context.Context, sourceID string) (map[models.WorkflowStatus]int, error)

	Close() error
}
