// Package progress exposes the read-only view pollers see while a job
// runs: a pure projection of the job's counters, plus a Redis-backed
// tracker that carries live snapshots between counter flushes.
package progress

import (
	"time"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// Snapshot is the externally visible progress of one import job.
type Snapshot struct {
	JobID        string           `json:"job_id"`
	Status       domain.JobStatus `json:"status"`
	Total        int64            `json:"total_records"`
	Processed    int64            `json:"processed_records"`
	Failed       int64            `json:"failed_records"`
	Percent      float64          `json:"percent"`
	StartedAt    *time.Time       `json:"started_at,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	DurationMS   *int64           `json:"duration_ms,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Project derives a snapshot from the job's current state. It reads,
// never writes; callers may project the same job concurrently with the
// worker mutating it through the repository.
func Project(job *domain.Job) Snapshot {
	s := Snapshot{
		JobID:       job.ID,
		Status:      job.Status,
		Total:       job.TotalRecords,
		Processed:   job.ProcessedRecords,
		Failed:      job.FailedRecords,
		Percent:     percent(job.ProcessedRecords, job.TotalRecords),
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	if job.ErrorMessage != nil {
		s.ErrorMessage = *job.ErrorMessage
	}
	if d := job.Duration(); d != nil {
		ms := d.Milliseconds()
		s.DurationMS = &ms
	}
	return s
}

func percent(processed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) * 100 / float64(total)
}
