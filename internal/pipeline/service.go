// -----------------------------------------------------------------------
// Ingestion Pipeline
// Claims pending workflow entries, extracts them and upserts catalog rows
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/tacklebox/internal/common"
	"github.com/ternarybob/tacklebox/internal/images"
	"github.com/ternarybob/tacklebox/internal/interfaces"
	"github.com/ternarybob/tacklebox/internal/models"
)

const releaseTimeout = 10 * time.Second

// Options narrows one run
type Options struct {
	SourceID string // Only entries of this source (empty = all)
	Limit    int    // Maximum entries to process (0 = all pending)
	DryRun   bool   // Extract and count without writing to either store
}

// ImageMirror is the optional image side channel
type ImageMirror interface {
	Records(ctx context.Context, records []*models.RawRecord, throttle images.Throttle) images.MirrorResult
}

// Service runs the ingestion pipeline
type Service struct {
	workflow interfaces.WorkflowStore
	catalog  interfaces.CatalogStore
	registry interfaces.AdapterRegistry
	mirror   ImageMirror
	config   *common.Config
	validate *validator.Validate
	gates    *gates
	logger   arbor.ILogger
}

// NewService wires the pipeline. mirror may be nil.
func NewService(
	config *common.Config,
	workflow interfaces.WorkflowStore,
	catalog interfaces.CatalogStore,
	registry interfaces.AdapterRegistry,
	mirror ImageMirror,
	logger arbor.ILogger,
) *Service {
	s := &Service{
		workflow: workflow,
		catalog:  catalog,
		registry: registry,
		mirror:   mirror,
		config:   config,
		validate: validator.New(),
		logger:   logger,
	}
	s.gates = &gates{
		byID: make(map[string]*sourceGate),
		factory: func(sourceID string) *sourceGate {
			delay := config.Pipeline.RequestDelay
			if override := config.Source(sourceID).RequestDelay; override > 0 {
				delay = override
			}
			return newSourceGate(config.Pipeline.PerSourceConcurrency, delay, config.Pipeline.RandomDelay)
		},
	}
	return s
}

// Run processes pending entries until none are left, the limit is reached, or
// ctx is cancelled. Adapter failures are recorded on the entry and in the
// report. A store failure on a single entry puts that entry back to pending
// and the batch continues; only listing the batch can abort the run.
func (s *Service) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: common.NewRunID(), DryRun: opts.DryRun}
	logger := s.logger.WithCorrelationId(report.RunID)

	logger.Info().
		Str("source", opts.SourceID).
		Int("limit", opts.Limit).
		Bool("dry_run", opts.DryRun).
		Msg("Ingestion run started")

	if !opts.DryRun && s.config.Workflow.ClaimTTL > 0 {
		n, err := s.workflow.ReleaseStale(ctx, s.config.Workflow.ClaimTTL)
		if err != nil {
			return report, fmt.Errorf("failed to release stale claims: %w", err)
		}
		report.StaleReleased = n
		if n > 0 {
			logger.Warn().Int("released", n).Msg("Released stale in_progress claims")
		}
	}

	entries, err := s.workflow.ListPending(ctx, opts.SourceID, opts.Limit)
	if err != nil {
		return report, fmt.Errorf("failed to list pending entries: %w", err)
	}

	workers := s.config.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() (err error) {
			defer common.GuardPanic(logger, "pipeline-worker", &err)
			return s.process(gctx, logger, entry, opts, report)
		})
	}

	runErr := g.Wait()
	report.Duration = time.Since(start)
	report.Cancelled = ctx.Err() != nil

	logger.Info().
		Int("processed", report.Processed).
		Int("done", report.Done).
		Int("errors", report.Errors).
		Int("skipped", report.Skipped).
		Int("released", report.Released).
		Int("store_errors", report.StoreErrors).
		Int("records", report.RecordsUpserted).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Duration).
		Msg("Ingestion run finished")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return report, runErr
	}
	return report, nil
}

// process handles one entry. Failures are settled on the entry itself, so
// the only error returned is a panic recovered by the caller.
func (s *Service) process(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry, opts Options, report *Report) error {
	if ctx.Err() != nil {
		return nil
	}

	if opts.DryRun {
		return s.dryRun(ctx, logger, entry, report)
	}

	claimed, err := s.workflow.Claim(ctx, entry.URL)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotClaimable) {
			report.update(func(r *Report) { r.Skipped++ })
			logger.Debug().Str("url", entry.URL).Msg("Entry claimed elsewhere, skipping")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		report.update(func(r *Report) { r.StoreErrors++ })
		logger.Error().Err(err).Str("url", entry.URL).Msg("Failed to claim entry, leaving it pending")
		return nil
	}
	report.update(func(r *Report) { r.Processed++ })

	records, err := s.extract(ctx, logger, claimed)
	if err != nil {
		if ctx.Err() != nil {
			return s.release(ctx, logger, claimed, report)
		}
		return s.fail(ctx, logger, claimed, err, report)
	}

	n, err := s.catalog.Upsert(ctx, records)
	if err != nil {
		if ctx.Err() != nil {
			return s.release(ctx, logger, claimed, report)
		}
		return s.fail(ctx, logger, claimed, fmt.Errorf("catalog upsert: %w", err), report)
	}

	stored := 0
	if s.mirror != nil {
		gate := s.gates.get(records[0].SourceID)
		result := s.mirror.Records(ctx, records, gate.acquire)
		stored = result.Stored
		if result.Failed > 0 {
			logger.Debug().
				Str("url", claimed.URL).
				Int("failed", result.Failed).
				Msg("Some images could not be mirrored")
		}
	}

	if err := s.workflow.Complete(context.WithoutCancel(ctx), claimed.URL); err != nil {
		return s.storeError(ctx, logger, claimed, "complete", err, report)
	}

	report.update(func(r *Report) {
		r.Done++
		r.RecordsExtracted += len(records)
		r.RecordsUpserted += n
		r.ImagesStored += stored
	})

	logger.Debug().
		Str("url", claimed.URL).
		Str("source", claimed.SourceID).
		Int("records", n).
		Msg("Entry done")

	return nil
}

func (s *Service) dryRun(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry, report *Report) error {
	report.update(func(r *Report) { r.Processed++ })

	records, err := s.extract(ctx, logger, entry)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		note := s.note(err)
		report.update(func(r *Report) {
			r.Errors++
			r.Failures = append(r.Failures, Failure{URL: entry.URL, SourceID: entry.SourceID, Note: note})
		})
		logger.Warn().Str("url", entry.URL).Str("note", note).Msg("Dry run extraction failed")
		return nil
	}

	report.update(func(r *Report) {
		r.Done++
		r.RecordsExtracted += len(records)
	})
	return nil
}

// extract resolves the adapter, waits for the source gate and runs Extract
// with the per-entry timeout, then validates every record
func (s *Service) extract(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry) (records []*models.RawRecord, err error) {
	adapter, ok := s.registry.Lookup(entry.SourceID)
	if !ok {
		adapter, ok = s.registry.ForURL(entry.URL)
	}
	if !ok {
		return nil, fmt.Errorf("unknown source %q", entry.SourceID)
	}

	release, err := s.gates.get(adapter.Source().ID).acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	timeout := s.config.Pipeline.ExtractTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer common.GuardPanic(logger, "extract "+entry.URL, &err)

	records, err = adapter.Extract(extractCtx, entry.URL)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &models.ParseError{URL: entry.URL, Field: "records", Reason: "no records extracted"}
	}

	for _, rec := range records {
		if err := s.validate.Struct(rec); err != nil {
			return nil, validationToParseError(entry.URL, err)
		}
		rec.EnsureID()
	}

	return records, nil
}

func (s *Service) fail(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry, cause error, report *Report) error {
	note := s.note(cause)

	if err := s.workflow.Fail(context.WithoutCancel(ctx), entry.URL, note); err != nil {
		return s.storeError(ctx, logger, entry, "fail", err, report)
	}

	report.update(func(r *Report) {
		r.Errors++
		r.Failures = append(r.Failures, Failure{URL: entry.URL, SourceID: entry.SourceID, Note: note})
	})

	var fe *models.FetchError
	if errors.As(cause, &fe) {
		logger.Warn().
			Str("url", entry.URL).
			Str("source", entry.SourceID).
			Int("status", fe.StatusCode).
			Bool("temporary", fe.Temporary()).
			Str("note", note).
			Msg("Entry failed to fetch")
		return nil
	}
	logger.Warn().
		Str("url", entry.URL).
		Str("source", entry.SourceID).
		Str("note", note).
		Msg("Entry failed")

	return nil
}

// storeError handles a workflow write that failed after the entry was
// claimed. The claim is released so the entry is retried by a later run.
func (s *Service) storeError(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry, op string, err error, report *Report) error {
	report.update(func(r *Report) { r.StoreErrors++ })
	logger.Error().
		Err(err).
		Str("url", entry.URL).
		Str("op", op).
		Msg("Workflow store write failed, releasing claim")
	return s.release(ctx, logger, entry, report)
}

// release puts an interrupted claim back to pending using a context that
// survives the run's cancellation
func (s *Service) release(ctx context.Context, logger arbor.ILogger, entry *models.WorkflowEntry, report *Report) error {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := s.workflow.Release(releaseCtx, entry.URL); err != nil {
		logger.Error().Err(err).Str("url", entry.URL).Msg("Failed to release claim")
		return nil
	}

	report.update(func(r *Report) { r.Released++ })
	logger.Debug().Str("url", entry.URL).Msg("Claim released")
	return nil
}

func (s *Service) note(err error) string {
	limit := s.config.Pipeline.NoteMaxLength
	if limit <= 0 {
		limit = 500
	}
	return truncateRunes(err.Error(), limit)
}

// truncateRunes keeps at most n runes of s
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func validationToParseError(url string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &models.ParseError{
			URL:    url,
			Field:  fe.Namespace(),
			Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
		}
	}
	return &models.ParseError{URL: url, Field: "record", Reason: err.Error()}
}
