package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus enumerates the lifecycle states of an import job.
type JobStatus string

const (
	JobPending             JobStatus = "Pending"
	JobProcessing          JobStatus = "Processing"
	JobCompleted           JobStatus = "Completed"
	JobCompletedWithErrors JobStatus = "CompletedWithErrors"
	JobFailed              JobStatus = "Failed"
)

// ErrInvalidTransition is returned when a status change violates the job
// lifecycle. Callers get the attempted edge wrapped around it.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job represents one file import: the uploaded file's identity plus the
// processing state and row counters that advance while the pipeline runs.
type Job struct {
	ID               string    `json:"id" db:"id"`
	FileName         string    `json:"file_name" db:"file_name"`
	FileType         string    `json:"file_type" db:"file_type"`
	FileSize         int64     `json:"file_size" db:"file_size"`
	Status           JobStatus `json:"status" db:"status"`
	TotalRecords     int64     `json:"total_records" db:"total_records"`
	ProcessedRecords int64     `json:"processed_records" db:"processed_records"`
	FailedRecords    int64     `json:"failed_records" db:"failed_records"`
	ErrorMessage     *string   `json:"error_message,omitempty" db:"error_message"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Start moves the job from Pending to Processing and stamps StartedAt.
func (j *Job) Start() error {
	if j.Status != JobPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobProcessing)
	}
	now := time.Now().UTC()
	j.Status = JobProcessing
	j.StartedAt = &now
	return nil
}

// Complete moves the job from Processing to its success terminal state:
// Completed when every yielded row landed, CompletedWithErrors when some
// rows were rejected along the way. CompletedAt is stamped either way.
func (j *Job) Complete() error {
	if j.Status != JobProcessing {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobCompleted)
	}
	now := time.Now().UTC()
	if j.FailedRecords > 0 {
		j.Status = JobCompletedWithErrors
	} else {
		j.Status = JobCompleted
	}
	j.CompletedAt = &now
	return nil
}

// Fail moves the job to Failed from any non-terminal state and records the
// reason. Terminal jobs never change again.
func (j *Job) Fail(reason string) error {
	if j.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobFailed)
	}
	now := time.Now().UTC()
	j.Status = JobFailed
	j.ErrorMessage = &reason
	j.CompletedAt = &now
	return nil
}

// IsTerminal returns true if the job is in a final state.
func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobCompletedWithErrors || j.Status == JobFailed
}

// Duration returns wall time from start to completion, or nil until both
// stamps exist.
func (j *Job) Duration() *time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return nil
	}
	d := j.CompletedAt.Sub(*j.StartedAt)
	return &d
}
