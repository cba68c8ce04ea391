package gaps

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/sources/sourcestest"
	"github.com/ternarybob/tacklebox/internal/storage"
)

type harness struct {
	workflow interfaces.WorkflowStore
	catalog  interfaces.CatalogStore
	alpha    *sourcestest.Adapter
	beta     *sourcestest.Adapter
	detector *Detector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := arbor.NewLogger()
	dir := t.TempDir()

	config := common.NewDefaultConfig()
	config.Workflow.Path = filepath.Join(dir, "workflow")
	config.Workflow.PageSize = 2
	config.Catalog.SQLite.Path = filepath.Join(dir, "catalog.db")
	config.Gaps.Concurrency = 2

	workflow, err := storage.NewWorkflowStore(logger, config.Workflow)
	require.NoError(t, err)
	t.Cleanup(func() { _ = workflow.Close() })

	catalog, err := storage.NewCatalogStore(context.Background(), logger, config.Catalog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })

	alpha := sourcestest.NewAdapter("alpha")
	beta := sourcestest.NewAdapter("beta")

	return &harness{
		workflow: workflow,
		catalog:  catalog,
		alpha:    alpha,
		beta:     beta,
		detector: NewDetector(config, workflow, catalog, sourcestest.NewRegistry(alpha, beta), logger),
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

func sourceReport(t *testing.T, r *Report, id string) *SourceReport {
	t.Helper()
	for _, s := range r.Sources {
		if s.SourceID == id {
			return s
		}
	}
	t.Fatalf("no report for source %s", id)
	return nil
}

func TestRun_EnqueuesOnlyUnknownProducts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := h.alpha.Src.BaseURL+"/p/a", h.alpha.Src.BaseURL+"/p/b", h.alpha.Src.BaseURL+"/p/c"
	h.alpha.Products = []string{a, b, c, c}
	h.enqueue(t, "alpha", a, b)
	require.NoError(t, h.workflow.Fail(ctx, b, "HTTP 500"))

	report, err := h.detector.Run(ctx, Options{SourceID: "alpha"})
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)

	sr := report.Sources[0]
	assert.NoError(t, sr.Err)
	assert.Equal(t, 4, sr.Candidates)
	assert.Equal(t, []string{c}, sr.NewURLs)
	assert.Equal(t, 1, sr.Enqueued)

	counts, err := h.workflow.Counts(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.WorkflowPending])
	assert.Equal(t, 1, counts[models.WorkflowError], "error entries are left for manual reset")
}

func TestRun_ResetsDoneEntriesWithoutCatalogRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	kept := h.alpha.Src.BaseURL + "/p/kept"
	lost := h.alpha.Src.BaseURL + "/p/lost"
	h.alpha.Products = []string{kept, lost}
	h.enqueue(t, "alpha", kept, lost)
	require.NoError(t, h.workflow.Complete(ctx, kept))
	require.NoError(t, h.workflow.Complete(ctx, lost))

	_, err := h.catalog.Upsert(ctx, []*models.RawRecord{h.alpha.Record("/p/kept", "Vision 110", "Red", 14)})
	require.NoError(t, err)

	report, err := h.detector.Run(ctx, Options{})
	require.NoError(t, err)

	sr := sourceReport(t, report, "alpha")
	assert.Empty(t, sr.NewURLs)
	assert.Equal(t, []string{lost}, sr.MissingURLs)
	assert.Equal(t, 1, sr.Reset)

	page, err := h.workflow.ListPage(ctx, models.WorkflowFilter{Status: models.WorkflowPending}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, lost, page.Items[0].URL)
	assert.Equal(t, NoteCatalogRowsMissing, page.Items[0].Note)
}

func TestRun_SourceFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.alpha.ListErr = &models.FetchError{URL: h.alpha.Src.BaseURL, StatusCode: 503}
	h.beta.Products = []string{h.beta.Src.BaseURL + "/p/1"}

	report, err := h.detector.Run(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, report.Sources, 2)
	assert.Equal(t, "alpha", report.Sources[0].SourceID)

	alpha := sourceReport(t, report, "alpha")
	require.Error(t, alpha.Err)
	var fe *models.FetchError
	assert.True(t, errors.As(alpha.Err, &fe))
	assert.Len(t, report.Failed(), 1)

	beta := sourceReport(t, report, "beta")
	assert.NoError(t, beta.Err)
	assert.Equal(t, 1, beta.Enqueued)
}

func TestRun_ListingFailureStillRepairsMissingRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	done := h.alpha.Src.BaseURL + "/p/done"
	h.enqueue(t, "alpha", done)
	require.NoError(t, h.workflow.Complete(ctx, done))
	h.alpha.ListErr = &models.FetchError{URL: h.alpha.Src.BaseURL, StatusCode: 503}

	report, err := h.detector.Run(ctx, Options{SourceID: "alpha"})
	require.NoError(t, err)

	sr := sourceReport(t, report, "alpha")
	require.Error(t, sr.Err)
	assert.Contains(t, sr.Error, "list products")
	assert.Equal(t, []string{done}, sr.MissingURLs)
	assert.Equal(t, 1, sr.Reset)

	entry, err := h.workflow.ListPage(ctx, models.WorkflowFilter{Status: models.WorkflowPending}, "", 10)
	require.NoError(t, err)
	require.Len(t, entry.Items, 1)
	assert.Equal(t, NoteCatalogRowsMissing, entry.Items[0].Note)
}

func TestRun_DryRunDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	done := h.alpha.Src.BaseURL + "/p/done"
	fresh := h.alpha.Src.BaseURL + "/p/new"
	h.alpha.Products = []string{done, fresh}
	h.enqueue(t, "alpha", done)
	require.NoError(t, h.workflow.Complete(ctx, done))

	report, err := h.detector.Run(ctx, Options{SourceID: "alpha", DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)

	sr := report.Sources[0]
	assert.Equal(t, []string{fresh}, sr.NewURLs)
	assert.Equal(t, []string{done}, sr.MissingURLs)
	assert.Zero(t, sr.Enqueued)
	assert.Zero(t, sr.Reset)

	counts, err := h.workflow.Counts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.WorkflowDone])
	assert.Zero(t, counts[models.WorkflowPending])
}

func TestRun_URLKnownUnderAnotherSourceIsNotNew(t *testing.T) {
	h := newHarness(t)
	shared := h.alpha.Src.BaseURL + "/p/shared"
	h.beta.Products = []string{shared}
	h.enqueue(t, "alpha", shared)

	report, err := h.detector.Run(context.Background(), Options{SourceID: "beta"})
	require.NoError(t, err)
	assert.Empty(t, report.Sources[0].NewURLs)
}

func TestRun_UnknownSource(t *testing.T) {
	h := newHarness(t)
	_, err := h.detector.Run(context.Background(), Options{SourceID: "gamma"})
	assert.Error(t, err)
}
