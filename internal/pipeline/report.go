package pipeline

import (
	"sync"
	"time"
)

// Failure is one entry that ended in error during a run
type Failure struct {
	URL      string `json:"url"`
	SourceID string `json:"source_id"`
	Note     string `json:"note"`
}

// Report summarizes one pipeline run
type Report struct {
	RunID            string        `json:"run_id"`
	DryRun           bool          `json:"dry_run"`
	Processed        int           `json:"processed"`
	Done             int           `json:"done"`
	Errors           int           `json:"errors"`
	Skipped          int           `json:"skipped"`
	Released         int           `json:"released"`
	StaleReleased    int           `json:"stale_released"`
	StoreErrors      int           `json:"store_errors"`
	RecordsExtracted int           `json:"records_extracted"`
	RecordsUpserted  int           `json:"records_upserted"`
	ImagesStored     int           `json:"images_stored"`
	Cancelled        bool          `json:"cancelled"`
	Failures         []Failure     `json:"failures,omitempty"`
	Duration         time.Duration `json:"duration"`

	mu sync.Mutex
}

func (r *Report) update(fn func(r *Report)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}
