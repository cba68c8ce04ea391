// -----------------------------------------------------------------------
// Gap Detector
// Finds products a source lists that the workflow has never seen, and
// processed pages whose catalog rows have gone missing
// -----------------------------------------------------------------------

package gaps

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
	"github.com/ternarybob/tacklebox/internal/pager"
)

// NoteCatalogRowsMissing is written on entries reset by data-loss repair
const NoteCatalogRowsMissing = "catalog rows missing"

// Options narrows one run
type Options struct {
	SourceID string // Only this source (empty = every registered source)
	DryRun   bool   // Detect and report without writing
}

// SourceReport is the outcome for one source
type SourceReport struct {
	SourceID    string   `json:"source_id"`
	Candidates  int      `json:"candidates"`
	NewURLs     []string `json:"new_urls"`
	MissingURLs []string `json:"missing_urls"`
	Enqueued    int      `json:"enqueued"`
	Reset       int      `json:"reset"`
	Err         error    `json:"-"`
	Error       string   `json:"error,omitempty"`
}

// Report collects every SourceReport of a run, ordered by source id
type Report struct {
	RunID    string          `json:"run_id"`
	DryRun   bool            `json:"dry_run"`
	Sources  []*SourceReport `json:"sources"`
	Duration time.Duration   `json:"duration"`
}

// Failed returns the sources that could not be checked
func (r *Report) Failed() []*SourceReport {
	var failed []*SourceReport
	for _, s := range r.Sources {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

// Detector compares live sources against the workflow and catalog stores
type Detector struct {
	workflow interfaces.WorkflowStore
	catalog  interfaces.CatalogStore
	registry interfaces.AdapterRegistry
	config   *common.Config
	logger   arbor.ILogger
}

// NewDetector wires a detector
func NewDetector(config *common.Config, workflow interfaces.WorkflowStore, catalog interfaces.CatalogStore, registry interfaces.AdapterRegistry, logger arbor.ILogger) *Detector {
	return &Detector{
		workflow: workflow,
		catalog:  catalog,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// Run checks every selected source. A failing source is reported in its
// SourceReport and does not affect the others; the returned error is
// reserved for invalid options.
func (d *Detector) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: common.NewRunID(), DryRun: opts.DryRun}
	logger := d.logger.WithCorrelationId(report.RunID)

	ids := d.registry.IDs()
	if opts.SourceID != "" {
		if _, ok := d.registry.Lookup(opts.SourceID); !ok {
			return nil, fmt.Errorf("unknown source %q", opts.SourceID)
		}
		ids = []string{opts.SourceID}
	}

	// Workflow URLs are unique across sources, so membership is checked
	// against the whole store
	all, err := pager.All(ctx, d.pageSize(), 0, func(ctx context.Context, after string, size int) (pager.Page[*models.WorkflowEntry], error) {
		return d.workflow.ListPage(ctx, models.WorkflowFilter{}, after, size)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow entries: %w", err)
	}
	known := make(map[string]struct{}, len(all))
	bySource := make(map[string][]*models.WorkflowEntry)
	for _, e := range all {
		known[e.URL] = struct{}{}
		bySource[e.SourceID] = append(bySource[e.SourceID], e)
	}

	concurrency := d.config.Gaps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, id := range ids {
		adapter, _ := d.registry.Lookup(id)
		g.Go(func() error {
			sr := d.checkSource(ctx, logger, adapter, known, bySource[id], opts.DryRun)
			mu.Lock()
			report.Sources = append(report.Sources, sr)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Sources, func(i, j int) bool {
		return report.Sources[i].SourceID < report.Sources[j].SourceID
	})
	report.Duration = time.Since(start)

	logger.Info().
		Int("sources", len(report.Sources)).
		Int("failed", len(report.Failed())).
		Bool("dry_run", opts.DryRun).
		Dur("duration", report.Duration).
		Msg("Gap detection finished")

	return report, nil
}

func (d *Detector) checkSource(ctx context.Context, logger arbor.ILogger, adapter interfaces.Adapter, known map[string]struct{}, entries []*models.WorkflowEntry, dryRun bool) (sr *SourceReport) {
	id := adapter.Source().ID
	sr = &SourceReport{SourceID: id, NewURLs: []string{}, MissingURLs: []string{}}

	var err error
	defer func() {
		if err != nil {
			sr.Err = err
			sr.Error = err.Error()
			logger.Warn().Err(err).Str("source", id).Msg("Gap detection failed for source")
		}
	}()
	defer common.GuardPanic(logger, "gaps "+id, &err)

	// The checks are independent: a failed listing must not block the
	// repair of entries whose catalog rows were lost
	newErr := d.detectNew(ctx, adapter, known, sr, dryRun)
	missingErr := d.detectMissing(ctx, entries, sr, dryRun)
	if err = errors.Join(newErr, missingErr); err != nil {
		return sr
	}

	logger.Info().
		Str("source", id).
		Int("candidates", sr.Candidates).
		Int("new", len(sr.NewURLs)).
		Int("missing", len(sr.MissingURLs)).
		Int("enqueued", sr.Enqueued).
		Int("reset", sr.Reset).
		Msg("Source checked")

	return sr
}

// detectNew enqueues listed products the workflow has never seen
func (d *Detector) detectNew(ctx context.Context, adapter interfaces.Adapter, known map[string]struct{}, sr *SourceReport, dryRun bool) error {
	candidates, err := adapter.ListProducts(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	sr.Candidates = len(candidates)

	seen := make(map[string]struct{}, len(candidates))
	for _, u := range candidates {
		if _, ok := known[u]; ok {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		sr.NewURLs = append(sr.NewURLs, u)
	}
	sort.Strings(sr.NewURLs)

	if dryRun || len(sr.NewURLs) == 0 {
		return nil
	}

	pending := make([]*models.WorkflowEntry, len(sr.NewURLs))
	for i, u := range sr.NewURLs {
		pending[i] = models.NewPendingEntry(u, sr.SourceID)
	}
	n, err := d.workflow.Enqueue(ctx, pending)
	if err != nil {
		return fmt.Errorf("enqueue new products: %w", err)
	}
	sr.Enqueued = n
	return nil
}

// detectMissing resets done entries that have no catalog rows
func (d *Detector) detectMissing(ctx context.Context, entries []*models.WorkflowEntry, sr *SourceReport, dryRun bool) error {
	var done []string
	for _, e := range entries {
		if e.Status == models.WorkflowDone {
			done = append(done, e.URL)
		}
	}
	if len(done) == 0 {
		return nil
	}

	counts, err := d.catalog.CountBySourceURLs(ctx, done)
	if err != nil {
		return fmt.Errorf("count catalog rows: %w", err)
	}
	for _, u := range done {
		if counts[u] == 0 {
			sr.MissingURLs = append(sr.MissingURLs, u)
		}
	}
	sort.Strings(sr.MissingURLs)

	if dryRun || len(sr.MissingURLs) == 0 {
		return nil
	}

	n, err := d.workflow.Reset(ctx, sr.MissingURLs, NoteCatalogRowsMissing)
	if err != nil {
		return fmt.Errorf("reset entries with missing rows: %w", err)
	}
	sr.Reset = n
	return nil
}

func (d *Detector) pageSize() int {
	if d.config.Workflow.PageSize > 0 {
		return d.config.Workflow.PageSize
	}
	return pager.DefaultPageSize
}
