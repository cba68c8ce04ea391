package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tacklebox/internal/common"
)

// Handler is the work of one scheduled job
type Handler func(ctx context.Context) error

// JobStatus is a snapshot of one registered job
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	IsRunning bool       `json:"is_running"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int        `json:"runs"`
}

type jobEntry struct {
	name      string
	schedule  string
	handler   Handler
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
	runs      int
}

// Service runs registered jobs on cron schedules (with a seconds field).
// Jobs never overlap: a tick that arrives while any job is running waits.
type Service struct {
	cron     *cron.Cron
	logger   arbor.ILogger
	jobMu    sync.Mutex // Protects jobs
	globalMu sync.Mutex // Serializes job execution
	jobs     map[string]*jobEntry
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a stopped scheduler
func NewService(logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		jobs:   make(map[string]*jobEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ValidateSchedule parses a six-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule, err)
	}
	return nil
}

// RegisterJob adds a job. An empty schedule leaves the job unregistered.
func (s *Service) RegisterJob(name, schedule string, handler Handler) error {
	if schedule == "" {
		s.logger.Info().Str("job_name", name).Msg("Job has no schedule, not registered")
		return nil
	}
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{name: name, schedule: schedule, handler: handler}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")

	return nil
}

// Start begins firing registered jobs
func (s *Service) Start() error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs registered")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return
func (s *Service) Stop() {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return
	}
	s.running = false
	s.jobMu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// TriggerJob runs a job immediately, outside its schedule
func (s *Service) TriggerJob(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}
	s.executeJob(name)
	return nil
}

// Statuses returns a snapshot of every job, ordered by name
func (s *Service) Statuses() []JobStatus {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		status := JobStatus{
			Name:      e.name,
			Schedule:  e.schedule,
			IsRunning: e.isRunning,
			LastRun:   e.lastRun,
			LastError: e.lastError,
			Runs:      e.runs,
		}
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			status.NextRun = &next
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Service) executeJob(name string) {
	common.SafeRun(s.logger, name, func() {
		s.globalMu.Lock()
		defer s.globalMu.Unlock()

		if s.ctx.Err() != nil {
			return
		}

		s.jobMu.Lock()
		entry, exists := s.jobs[name]
		if !exists {
			s.jobMu.Unlock()
			s.logger.Warn().Str("job_name", name).Msg("Job not found")
			return
		}
		entry.isRunning = true
		handler := entry.handler
		s.jobMu.Unlock()

		// Cleared even when the handler panics
		defer func() {
			s.jobMu.Lock()
			entry.isRunning = false
			s.jobMu.Unlock()
		}()

		start := time.Now()
		s.logger.Info().Str("job_name", name).Msg("Job execution started")

		err := handler(s.ctx)

		finished := time.Now()
		s.jobMu.Lock()
		entry.lastRun = &finished
		entry.runs++
		if err != nil {
			entry.lastError = err.Error()
		} else {
			entry.lastError = ""
		}
		s.jobMu.Unlock()

		if err != nil {
			s.logger.Error().
				Str("job_name", name).
				Err(err).
				Dur("duration", finished.Sub(start)).
				Msg("Job execution failed")
			return
		}
		s.logger.Info().
			Str("job_name", name).
			Dur("duration", finished.Sub(start)).
			Msg("Job execution completed")
	})
}
