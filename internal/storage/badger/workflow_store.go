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

const (
	// Entries written per transaction by Enqueue and Upsert
	writeBatchSize = 500

	noteClaimExpired = "claim expired"
)

// WorkflowStore implements interfaces.WorkflowStore on Badger. Entries are
// keyed by URL and every transaction touches only the keys of the entries it
// changes, so writers working on distinct URLs never conflict. A conflict on
// the same URL is retried and the loser then sees the winner's status.
type WorkflowStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkflowStore creates a workflow store over an open database
func NewWorkflowStore(db *BadgerDB, logger arbor.ILogger) *WorkflowStore {
	return &WorkflowStore{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.WorkflowStore = (*WorkflowStore)(nil)

func (s *WorkflowStore) Enqueue(ctx context.Context, entries []*models.WorkflowEntry) (int, error) {
	inserted := 0
	for start := 0; start < len(entries); start += writeBatchSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}
		end := min(start+writeBatchSize, len(entries))

		batchInserted := 0
		err := s.db.Update(func(txn *badgerdb.Txn) error {
			batchInserted = 0
			for _, e := range entries[start:end] {
				if e == nil || e.URL == "" {
					continue
				}
				var existing models.WorkflowEntry
				err := s.db.Store().TxGet(txn, e.URL, &existing)
				if err == nil {
					continue
				}
				if !errors.Is(err, badgerhold.ErrNotFound) {
					return err
				}

				now := time.Now()
				entry := *e
				entry.Status = models.WorkflowPending
				entry.ClaimedAt = nil
				if entry.CreatedAt.IsZero() {
					entry.CreatedAt = now
				}
				entry.UpdatedAt = now
				if err := s.db.Store().TxInsert(txn, entry.URL, entry); err != nil {
					if errors.Is(err, badgerhold.ErrKeyExists) {
						continue
					}
					return err
				}
				batchInserted++
			}
			return nil
		})
		if err != nil {
			return inserted, fmt.Errorf("failed to enqueue entries: %w", err)
		}
		inserted += batchInserted
	}

	s.logger.Debug().
		Int("submitted", len(entries)).
		Int("inserted", inserted).
		Msg("Enqueued workflow entries")
	return inserted, nil
}

func (s *WorkflowStore) ListPage(ctx context.Context, filter models.WorkflowFilter, after string, size int) (pager.Page[*models.WorkflowEntry], error) {
	if size <= 0 {
		size = pager.DefaultPageSize
	}

	query := badgerhold.Where("URL").Gt(after)
	if filter.SourceID != "" {
		query = query.And("SourceID").Eq(filter.SourceID)
	}
	if filter.Status != "" {
		query = query.And("Status").Eq(filter.Status)
	}
	query = query.SortBy("URL").Limit(size + 1)

	var found []models.WorkflowEntry
	if err := s.db.Store().Find(&found, query); err != nil {
		return pager.Page[*models.WorkflowEntry]{}, fmt.Errorf("failed to list workflow entries: %w", err)
	}

	page := pager.Page[*models.WorkflowEntry]{}
	for i := range found {
		if i == size {
			page.Next = found[size-1].URL
			break
		}
		page.Items = append(page.Items, &found[i])
	}
	return page, nil
}

func (s *WorkflowStore) ListPending(ctx context.Context, sourceID string, limit int) ([]*models.WorkflowEntry, error) {
	query := badgerhold.Where("Status").Eq(models.WorkflowPending)
	if sourceID != "" {
		query = query.And("SourceID").Eq(sourceID)
	}
	query = query.SortBy("CreatedAt", "URL")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var found []models.WorkflowEntry
	if err := s.db.Store().Find(&found, query); err != nil {
		return nil, fmt.Errorf("failed to list pending entries: %w", err)
	}

	out := make([]*models.WorkflowEntry, len(found))
	for i := range found {
		out[i] = &found[i]
	}
	return out, nil
}

// Claim moves a pending entry to in_progress. A missing entry or one that is
// no longer pending (including one just claimed by a concurrent caller)
// returns ErrNotClaimable.
func (s *WorkflowStore) Claim(ctx context.Context, url string) (*models.WorkflowEntry, error) {
	var claimed models.WorkflowEntry
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		var entry models.WorkflowEntry
		if err := s.db.Store().TxGet(txn, url, &entry); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return interfaces.ErrNotClaimable
			}
			return err
		}
		if entry.Status != models.WorkflowPending {
			return interfaces.ErrNotClaimable
		}

		now := time.Now()
		entry.Status = models.WorkflowInProgress
		entry.ClaimedAt = &now
		entry.Attempts++
		entry.UpdatedAt = now
		claimed = entry
		return s.db.Store().TxUpdate(txn, url, entry)
	})

	switch {
	case err == nil:
		return &claimed, nil
	case errors.Is(err, interfaces.ErrNotClaimable):
		return nil, interfaces.ErrNotClaimable
	default:
		return nil, fmt.Errorf("failed to claim %s: %w", url, err)
	}
}

func (s *WorkflowStore) Complete(ctx context.Context, url string) error {
	_, err := s.transition(url, func(e *models.WorkflowEntry) bool {
		e.Status = models.WorkflowDone
		e.Note = ""
		e.ClaimedAt = nil
		return true
	})
	return err
}

func (s *WorkflowStore) Fail(ctx context.Context, url, note string) error {
	_, err := s.transition(url, func(e *models.WorkflowEntry) bool {
		e.Status = models.WorkflowError
		e.Note = note
		e.ClaimedAt = nil
		return true
	})
	return err
}

// Release puts an in_progress entry back to pending; other states are left alone
func (s *WorkflowStore) Release(ctx context.Context, url string) error {
	_, err := s.transition(url, func(e *models.WorkflowEntry) bool {
		if e.Status != models.WorkflowInProgress {
			return false
		}
		e.Status = models.WorkflowPending
		e.ClaimedAt = nil
		return true
	})
	return err
}

func (s *WorkflowStore) Reset(ctx context.Context, urls []string, note string) (int, error) {
	changed := 0
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		ok, err := s.transition(url, func(e *models.WorkflowEntry) bool {
			if e.Status != models.WorkflowDone && e.Status != models.WorkflowError {
				return false
			}
			e.Status = models.WorkflowPending
			e.Note = note
			e.ClaimedAt = nil
			return true
		})
		if errors.Is(err, interfaces.ErrEntryNotFound) {
			s.logger.Debug().Str("url", url).Msg("Reset skipped unknown URL")
			continue
		}
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

func (s *WorkflowStore) ReleaseStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}

	var inProgress []models.WorkflowEntry
	if err := s.db.Store().Find(&inProgress, badgerhold.Where("Status").Eq(models.WorkflowInProgress)); err != nil {
		return 0, fmt.Errorf("failed to find claimed entries: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	released := 0
	for _, e := range inProgress {
		if e.ClaimedAt != nil && e.ClaimedAt.After(cutoff) {
			continue
		}
		ok, err := s.transition(e.URL, func(cur *models.WorkflowEntry) bool {
			if cur.Status != models.WorkflowInProgress || (cur.ClaimedAt != nil && cur.ClaimedAt.After(cutoff)) {
				return false
			}
			cur.Status = models.WorkflowPending
			cur.Note = noteClaimExpired
			cur.ClaimedAt = nil
			return true
		})
		if err != nil && !errors.Is(err, interfaces.ErrEntryNotFound) {
			return released, err
		}
		if ok {
			released++
		}
	}

	if released > 0 {
		s.logger.Info().Int("released", released).Dur("older_than", olderThan).Msg("Released stale workflow claims")
	}
	return released, nil
}

func (s *WorkflowStore) Counts(ctx context.Context, sourceID string) (map[models.WorkflowStatus]int, error) {
	counts := make(map[models.WorkflowStatus]int, len(models.WorkflowStatuses))
	for _, status := range models.WorkflowStatuses {
		query := badgerhold.Where("Status").Eq(status)
		if sourceID != "" {
			query = query.And("SourceID").Eq(sourceID)
		}
		n, err := s.db.Store().Count(&models.WorkflowEntry{}, query)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s entries: %w", status, err)
		}
		counts[status] = int(n)
	}
	return counts, nil
}

// Get returns one entry by URL
func (s *WorkflowStore) Get(ctx context.Context, url string) (*models.WorkflowEntry, error) {
	var entry models.WorkflowEntry
	if err := s.db.Store().Get(url, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", url, err)
	}
	return &entry, nil
}

func (s *WorkflowStore) Close() error {
	return s.db.Close()
}

// transition applies fn to the stored entry in one transaction, retrying on
// write conflicts. fn returns false to leave the entry unchanged.
func (s *WorkflowStore) transition(url string, fn func(e *models.WorkflowEntry) bool) (bool, error) {
	changed := false
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		changed = false
		var entry models.WorkflowEntry
		if err := s.db.Store().TxGet(txn, url, &entry); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return interfaces.ErrEntryNotFound
			}
			return err
		}
		if !fn(&entry) {
			return nil
		}
		entry.UpdatedAt = time.Now()
		changed = true
		return s.db.Store().TxUpdate(txn, url, entry)
	})
	if errors.Is(err, interfaces.ErrEntryNotFound) {
		return false, fmt.Errorf("%s: %w", url, err)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update %s: %w", url, err)
	}
	return changed, nil
}
