package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/images"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/sources/sourcestest"
	"github.com/ternarybob/tacklebox/internal/storage"
)

type harness struct {
	config   *common.Config
	workflow interfaces.WorkflowStore
	catalog  interfaces.CatalogStore
	adapter  *sourcestest.Adapter
	service  *Service
}

func newHarness(t *testing.T, configure func(c *common.Config)) *harness {
	t.Helper()
	logger := arbor.NewLogger()
	dir := t.TempDir()

	config := common.NewDefaultConfig()
	config.Workflow.Path = filepath.Join(dir, "workflow")
	config.Workflow.ClaimTTL = 0
	config.Catalog.SQLite.Path = filepath.Join(dir, "catalog.db")
	config.Pipeline.Workers = 4
	config.Pipeline.PerSourceConcurrency = 2
	config.Pipeline.RequestDelay = 0
	config.Pipeline.RandomDelay = 0
	config.Pipeline.ExtractTimeout = 5 * time.Second
	if configure != nil {
		configure(config)
	}

	workflow, err := storage.NewWorkflowStore(logger, config.Workflow)
	require.NoError(t, err)
	t.Cleanup(func() { _ = workflow.Close() })

	catalog, err := storage.NewCatalogStore(context.Background(), logger, config.Catalog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	adapter := sourcestest.NewAdapter("alpha")
	registry := sourcestest.NewRegistry(adapter)

	return &harness{
		config:   config,
		workflow: workflow,
		catalog:  catalog,
		adapter:  adapter,
		service:  NewService(config, workflow, catalog, registry, nil, logger),
	}
}

func (h *harness) enqueue(t *testing.T, sourceID string, urls ...string) {
	t.Helper()
	entries := make([]*models.WorkflowEntry, len(urls))
	for i, u := range urls {
		entries[i] = models.NewPendingEntry(u, sourceID)
	}
	_, err := h.workflow.Enqueue(context.Background(), entries)
	require.NoError(t, err)
}

func (h *harness) status(t *testing.T, url string) *models.WorkflowEntry {
	t.Helper()
	page, err := h.workflow.ListPage(context.Background(), models.WorkflowFilter{}, "", 1000)
	require.NoError(t, err)
	for _, e := range page.Items {
		if e.URL == url {
			return e
		}
	}
	t.Fatalf("no workflow entry for %s", url)
	return nil
}

func TestRun_ProcessesPendingEntries(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter

	ok := a.Src.BaseURL + "/p/ok"
	a.Pages[ok] = []*models.RawRecord{
		a.Record("/p/ok", "Vision 110", "Red", 14),
		a.Record("/p/ok", "Vision 110", "Blue", 14),
	}
	gone := a.Src.BaseURL + "/p/gone"
	broken := a.Src.BaseURL + "/p/broken"
	a.Errors[broken] = &models.ParseError{URL: broken, Field: "name", Reason: "selector matched nothing"}

	h.enqueue(t, "alpha", ok, gone, broken)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, 2, report.RecordsUpserted)
	assert.Len(t, report.Failures, 2)

	assert.Equal(t, models.WorkflowDone, h.status(t, ok).Status)

	goneEntry := h.status(t, gone)
	assert.Equal(t, models.WorkflowError, goneEntry.Status)
	assert.Contains(t, goneEntry.Note, "HTTP 404")

	brokenEntry := h.status(t, broken)
	assert.Equal(t, models.WorkflowError, brokenEntry.Status)
	assert.Contains(t, brokenEntry.Note, `field "name"`)

	n, err := h.catalog.Count(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_RescrapeIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter
	url := a.Src.BaseURL + "/p/1"
	a.Pages[url] = []*models.RawRecord{a.Record("/p/1", "Vision 110", "Red", 7, 10)}
	h.enqueue(t, "alpha", url)

	_, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)

	_, err = h.workflow.Reset(context.Background(), []string{url}, "rescrape")
	require.NoError(t, err)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done)

	n, err := h.catalog.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRun_ValidationFailureIsParseError(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter
	url := a.Src.BaseURL + "/p/noimage"
	rec := a.Record("/p/noimage", "Vision 110", "Red", 14)
	rec.Images = nil
	a.Pages[url] = []*models.RawRecord{rec}
	h.enqueue(t, "alpha", url)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	entry := h.status(t, url)
	assert.Equal(t, models.WorkflowError, entry.Status)
	assert.Contains(t, entry.Note, "Images")

	n, err := h.catalog.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_UnknownSourceFails(t *testing.T) {
	h := newHarness(t, nil)
	url := "https://nowhere.example/p/1"
	h.enqueue(t, "nowhere", url)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)

	entry := h.status(t, url)
	assert.Equal(t, models.WorkflowError, entry.Status)
	assert.Contains(t, entry.Note, "unknown source")
}

func TestRun_TruncatesNotes(t *testing.T) {
	h := newHarness(t, func(c *common.Config) { c.Pipeline.NoteMaxLength = 20 })
	a := h.adapter
	url := a.Src.BaseURL + "/p/long"
	a.Errors[url] = errors.New(strings.Repeat("エラー", 50))
	h.enqueue(t, "alpha", url)

	_, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)

	entry := h.status(t, url)
	assert.Equal(t, 20, utf8.RuneCountInString(entry.Note))
	assert.True(t, utf8.ValidString(entry.Note))
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter
	ok := a.Src.BaseURL + "/p/ok"
	a.Pages[ok] = []*models.RawRecord{a.Record("/p/ok", "Vision 110", "Red", 14)}
	bad := a.Src.BaseURL + "/p/bad"
	h.enqueue(t, "alpha", ok, bad)

	report, err := h.service.Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 1, report.RecordsExtracted)
	assert.Zero(t, report.RecordsUpserted)

	assert.Equal(t, models.WorkflowPending, h.status(t, ok).Status)
	assert.Equal(t, models.WorkflowPending, h.status(t, bad).Status)

	n, err := h.catalog.Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRun_LimitAndSourceFilter(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter
	var urls []string
	for _, p := range []string{"/p/1", "/p/2", "/p/3", "/p/4"} {
		a.Pages[a.Src.BaseURL+p] = []*models.RawRecord{a.Record(p, "Vision "+p, "Red", 14)}
		urls = append(urls, a.Src.BaseURL+p)
	}
	h.enqueue(t, "alpha", urls...)
	h.enqueue(t, "beta", "https://beta.example/p/1")

	report, err := h.service.Run(context.Background(), Options{SourceID: "alpha", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 2, report.Done)

	counts, err := h.workflow.Counts(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.WorkflowDone])
	assert.Equal(t, 3, counts[models.WorkflowPending])
}

func TestRun_CancellationReleasesClaims(t *testing.T) {
	h := newHarness(t, func(c *common.Config) { c.Pipeline.Workers = 1 })
	a := h.adapter

	started := make(chan struct{}, 1)
	a.OnExtract = func(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, &models.FetchError{URL: rawURL, Err: ctx.Err()}
	}
	first := a.Src.BaseURL + "/p/1"
	second := a.Src.BaseURL + "/p/2"
	h.enqueue(t, "alpha", first)
	h.enqueue(t, "alpha", second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Report, 1)
	go func() {
		report, err := h.service.Run(ctx, Options{})
		assert.NoError(t, err)
		done <- report
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("extraction never started")
	}
	cancel()

	var report *Report
	select {
	case report = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	assert.True(t, report.Cancelled)
	assert.Equal(t, 1, report.Released)
	assert.Zero(t, report.Errors)

	counts, err := h.workflow.Counts(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.WorkflowPending])
	assert.Zero(t, counts[models.WorkflowInProgress])
}

func TestRun_ReleasesStaleClaimsFirst(t *testing.T) {
	h := newHarness(t, func(c *common.Config) { c.Workflow.ClaimTTL = time.Millisecond })
	a := h.adapter
	url := a.Src.BaseURL + "/p/1"
	a.Pages[url] = []*models.RawRecord{a.Record("/p/1", "Vision 110", "Red", 14)}
	h.enqueue(t, "alpha", url)

	_, err := h.workflow.Claim(context.Background(), url)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleReleased)
	assert.Equal(t, 1, report.Done)
}

func TestRun_PanicInAdapterFailsEntry(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter
	url := a.Src.BaseURL + "/p/panic"
	a.OnExtract = func(ctx context.Context, rawURL string) ([]*models.RawRecord, error) {
		panic("selector exploded")
	}
	h.enqueue(t, "alpha", url)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Contains(t, h.status(t, url).Note, "selector exploded")
}

type countingMirror struct {
	records   int
	throttled int
}

func (m *countingMirror) Records(ctx context.Context, records []*models.RawRecord, throttle images.Throttle) images.MirrorResult {
	m.records += len(records)
	if throttle != nil {
		release, err := throttle(ctx)
		if err == nil {
			m.throttled++
			release()
		}
	}
	return images.MirrorResult{Stored: len(records)}
}

func TestRun_MirrorsImagesAfterUpsert(t *testing.T) {
	h := newHarness(t, func(c *common.Config) { c.Pipeline.Workers = 1 })
	mirror := &countingMirror{}
	h.service.mirror = mirror

	a := h.adapter
	url := a.Src.BaseURL + "/p/1"
	a.Pages[url] = []*models.RawRecord{a.Record("/p/1", "Vision 110", "Red", 14)}
	h.enqueue(t, "alpha", url)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, mirror.records)
	assert.Equal(t, 1, mirror.throttled, "image downloads wait on the source gate")
	assert.Equal(t, 1, report.ImagesStored)
}

func TestRun_ManyWorkersProcessEveryEntry(t *testing.T) {
	h := newHarness(t, func(c *common.Config) {
		c.Pipeline.Workers = 8
		c.Pipeline.PerSourceConcurrency = 1
	})
	a := h.adapter

	const total = 40
	urls := make([]string, total)
	for i := range urls {
		path := fmt.Sprintf("/p/%02d", i)
		urls[i] = a.Src.BaseURL + path
		a.Pages[urls[i]] = []*models.RawRecord{
			a.Record(path, "Vision 110", "Red", 14),
			a.Record(path, "Vision 110", "Blue", 14),
		}
	}
	h.enqueue(t, "alpha", urls...)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, total, report.Processed)
	assert.Equal(t, total, report.Done)
	assert.Zero(t, report.Skipped)
	assert.Zero(t, report.Errors)
	assert.Zero(t, report.StoreErrors)
	assert.Equal(t, total*2, report.RecordsUpserted)

	counts, err := h.workflow.Counts(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, total, counts[models.WorkflowDone])
	assert.Zero(t, counts[models.WorkflowPending])
	assert.Zero(t, counts[models.WorkflowInProgress])
}

func TestRun_OneFailingEntryDoesNotAffectTheOthers(t *testing.T) {
	h := newHarness(t, nil)
	a := h.adapter

	urls := make([]string, 5)
	for i := range urls {
		path := fmt.Sprintf("/p/%d", i+1)
		urls[i] = a.Src.BaseURL + path
		a.Pages[urls[i]] = []*models.RawRecord{a.Record(path, "Vision 110", "Red", 14)}
	}
	a.Errors[urls[2]] = &models.ParseError{URL: urls[2], Field: "name", Reason: "selector matched nothing"}
	h.enqueue(t, "alpha", urls...)

	report, err := h.service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Done)
	assert.Equal(t, 1, report.Errors)

	for i, url := range urls {
		want := models.WorkflowDone
		if i == 2 {
			want = models.WorkflowError
		}
		assert.Equal(t, want, h.status(t, url).Status, url)
	}
}

// completeFailingStore fails Complete for one URL
type completeFailingStore struct {
	interfaces.WorkflowStore
	url string
}

func (s *completeFailingStore) Complete(ctx context.Context, url string) error {
	if url == s.url {
		return errors.New("disk full")
	}
	return s.WorkflowStore.Complete(ctx, url)
}

func TestRun_CompleteFailureReleasesEntryAndContinues(t *testing.T) {
	h := newHarness(t, func(c *common.Config) { c.Pipeline.Workers = 2 })
	a := h.adapter

	urls := make([]string, 4)
	for i := range urls {
		path := fmt.Sprintf("/p/%d", i+1)
		urls[i] = a.Src.BaseURL + path
		a.Pages[urls[i]] = []*models.RawRecord{a.Record(path, "Vision 110", "Red", 14)}
	}
	h.enqueue(t, "alpha", urls...)

	store := &completeFailingStore{WorkflowStore: h.workflow, url: urls[1]}
	service := NewService(h.config, store, h.catalog, sourcestest.NewRegistry(a), nil, arbor.NewLogger())

	report, err := service.Run(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Done)
	assert.Equal(t, 1, report.StoreErrors)
	assert.Equal(t, 1, report.Released)

	assert.Equal(t, models.WorkflowPending, h.status(t, urls[1]).Status, "entry is retried by the next run")
	for _, url := range []string{urls[0], urls[2], urls[3]} {
		assert.Equal(t, models.WorkflowDone, h.status(t, url).Status)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"truncate me", 8, "truncate"},
		{"ルアーのエラー", 3, "ルアー"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, truncateRunes(tt.in, tt.n))
	}
}
