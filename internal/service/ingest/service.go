package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/metrics"
	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/progress"
	"github.com/ignite/tabular-ingest/internal/queue"
	"github.com/ignite/tabular-ingest/internal/repository"
)

const (
	// waitPollInterval is how often synchronous submissions re-read the job
	// while waiting for a terminal state.
	waitPollInterval = 200 * time.Millisecond

	// archiveTimeout bounds the background copy of a raw upload.
	archiveTimeout = 2 * time.Minute
)

// Archiver stores a copy of the raw upload. Implementations must be safe
// for concurrent use; archival is best-effort and never fails a job.
type Archiver interface {
	Store(ctx context.Context, jobID, filename string, payload []byte) error
}

// Service coordinates submissions, the queue, and the repositories. All
// public methods are safe for concurrent use.
type Service struct {
	store    repository.Store
	queue    *queue.Queue
	registry *parser.Registry
	tracker  *progress.Tracker
	archive  Archiver
}

// NewService wires the service. tracker and archive may be nil: a nil
// tracker disables live snapshots, a nil archive disables upload copies.
func NewService(store repository.Store, q *queue.Queue, registry *parser.Registry, tracker *progress.Tracker, archive Archiver) *Service {
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Service{
		store:    store,
		queue:    q,
		registry: registry,
		tracker:  tracker,
		archive:  archive,
	}
}

// SubmitInput is one uploaded file plus its parse options.
type SubmitInput struct {
	FileName string
	Payload  []byte
	Options  parser.Options
}

// Submit validates the upload, creates a Pending job and enqueues it for
// the worker pool. Validation happens before the job row exists, so a
// rejected upload leaves no trace. Enqueueing blocks while the queue is
// full, pushing backpressure onto the submitter.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*domain.Job, error) {
	if len(in.Payload) == 0 {
		return nil, ErrEmptyInput
	}
	if _, err := s.registry.Resolve(in.FileName); err != nil {
		return nil, err
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(in.FileName)), ".")
	job := &domain.Job{
		FileName: in.FileName,
		FileType: ext,
		FileSize: int64(len(in.Payload)),
		Status:   domain.JobPending,
	}
	if err := s.store.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if s.archive != nil {
		// Best effort, off the request path. The import does not wait for
		// the copy and never fails because of it.
		go func(jobID, name string, payload []byte) {
			actx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
			defer cancel()
			if err := s.archive.Store(actx, jobID, name, payload); err != nil {
				log.Printf("[Ingest] job %s: archive upload: %v", jobID, err)
			}
		}(job.ID, job.FileName, in.Payload)
	}

	task := queue.Task{
		JobID:    job.ID,
		FileName: in.FileName,
		Payload:  in.Payload,
		Options:  in.Options,
	}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		s.failUnstarted(job, fmt.Sprintf("enqueue: %v", err))
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	metrics.JobsSubmitted.WithLabelValues("." + ext).Inc()
	metrics.QueueDepth.Set(float64(s.queue.PendingCount()))
	log.Printf("[Ingest] job %s: queued %s (%d bytes)", job.ID, job.FileName, job.FileSize)
	return job, nil
}

// failUnstarted lands a job that never reached a worker in Failed. Uses a
// fresh context: the submitter's may already be gone.
func (s *Service) failUnstarted(job *domain.Job, reason string) {
	if err := job.Fail(reason); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Jobs.Update(ctx, job); err != nil {
		log.Printf("[Ingest] job %s: persist failure: %v", job.ID, err)
	}
}

// Wait blocks until the job reaches a terminal state and returns its final
// form. Synchronous submissions sit here.
func (s *Service) Wait(ctx context.Context, jobID string) (*domain.Job, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		job, err := s.store.Jobs.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PreviewInput is an upload to inspect without creating a job.
type PreviewInput struct {
	FileName string
	Payload  []byte
	Options  parser.Options
	Rows     int
}

// Preview is the detected shape of a file plus its first rows, typed the
// same way a real import would type them.
type Preview struct {
	FileName string                    `json:"file_name"`
	Columns  []domain.ColumnDefinition `json:"columns"`
	Rows     []domain.ParsedRow        `json:"rows"`
	Total    int64                     `json:"total_rows"`
}

// Preview runs schema detection and returns the first rows without
// touching the queue or the database.
func (s *Service) Preview(ctx context.Context, in PreviewInput) (*Preview, error) {
	if len(in.Payload) == 0 {
		return nil, ErrEmptyInput
	}
	opts := in.Options.Normalize()
	src := bytes.NewReader(in.Payload)
	det, p, err := parser.DetectSchema(ctx, s.registry, in.FileName, src, opts)
	if err != nil {
		return nil, err
	}
	rows, err := p.Preview(ctx, src, opts, in.Rows)
	if err != nil {
		return nil, fmt.Errorf("preview rows: %w", err)
	}
	for i := range rows {
		if rows[i].OK {
			rows[i].Data = parser.CoerceRow(rows[i].Data, det.Columns)
		}
	}
	return &Preview{
		FileName: in.FileName,
		Columns:  det.Columns,
		Rows:     rows,
		Total:    det.EstimatedRowCount,
	}, nil
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.Jobs.Get(ctx, jobID)
}

// List returns one page of jobs, newest first, plus the overall total.
func (s *Service) List(ctx context.Context, page, size int) ([]domain.Job, int, error) {
	return s.store.Jobs.List(ctx, page, size)
}

// Progress returns the freshest view of a job's counters: the live
// snapshot when it is at least as new as the job row, the projected row
// otherwise. A snapshot left behind by an interrupted run never shadows
// the swept job.
func (s *Service) Progress(ctx context.Context, jobID string) (progress.Snapshot, error) {
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return progress.Snapshot{}, err
	}

	snap, err := s.tracker.Fetch(ctx, jobID)
	if err != nil {
		if !errors.Is(err, progress.ErrNoSnapshot) {
			log.Printf("[Ingest] job %s: fetch snapshot: %v", jobID, err)
		}
		return progress.Project(job), nil
	}
	if snap.UpdatedAt.Before(job.UpdatedAt) {
		return progress.Project(job), nil
	}
	return snap, nil
}

// Schema returns the detected schema of a job.
func (s *Service) Schema(ctx context.Context, jobID string) (*domain.Schema, error) {
	if _, err := s.store.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.Schemas.GetByJob(ctx, jobID)
}

// Records returns one page of a job's rows in row order, plus the total
// row count.
func (s *Service) Records(ctx context.Context, jobID string, page, size int) ([]domain.Record, int64, error) {
	if _, err := s.store.Jobs.Get(ctx, jobID); err != nil {
		return nil, 0, err
	}
	records, err := s.store.Records.ListByJob(ctx, jobID, page, size)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.store.Records.CountByJob(ctx, jobID)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// SearchRecords returns the job's rows where any single value contains
// term, capped at repository.SearchLimit.
func (s *Service) SearchRecords(ctx context.Context, jobID, term string) ([]domain.Record, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}
	if _, err := s.store.Jobs.Get(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.Records.Search(ctx, jobID, term)
}

// Delete removes a job and everything hanging off it: records, schema,
// live snapshot, then the job itself. Jobs being processed are refused;
// deleting a Pending job orphans its queued task, which the pool drops
// when the job row comes up missing.
func (s *Service) Delete(ctx context.Context, jobID string) error {
	job, err := s.store.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == domain.JobProcessing {
		return ErrJobRunning
	}

	if err := s.store.Records.DeleteByJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete records: %w", err)
	}
	if err := s.store.Schemas.DeleteByJob(ctx, jobID); err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	if err := s.tracker.Drop(ctx, jobID); err != nil {
		log.Printf("[Ingest] job %s: drop snapshot: %v", jobID, err)
	}
	if err := s.store.Jobs.Delete(ctx, jobID); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	log.Printf("[Ingest] job %s: deleted", jobID)
	return nil
}

// Formats describes what uploads the engine accepts.
type Formats struct {
	Extensions []string       `json:"extensions"`
	Defaults   FormatDefaults `json:"defaults"`
}

// FormatDefaults are the option values used when a submission leaves them
// unset.
type FormatDefaults struct {
	Delimiter   string `json:"delimiter"`
	BatchSize   int    `json:"batch_size"`
	PreviewRows int    `json:"preview_rows"`
}

// SupportedFormats lists the accepted extensions and option defaults.
func (s *Service) SupportedFormats() Formats {
	return Formats{
		Extensions: s.registry.Extensions(),
		Defaults: FormatDefaults{
			Delimiter:   string(parser.DefaultDelimiter),
			BatchSize:   parser.DefaultBatchSize,
			PreviewRows: parser.DefaultPreviewRows,
		},
	}
}
