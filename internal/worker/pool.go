// Package worker executes queued imports. A permit-bounded pool pulls
// tasks off the queue and runs each file through schema detection and a
// producer/consumer streaming pipeline into the record store.
package worker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/metrics"
	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/progress"
	"github.com/ignite/tabular-ingest/internal/queue"
	"github.com/ignite/tabular-ingest/internal/repository"
)

const (
	// DefaultWorkers bounds how many jobs execute at once.
	DefaultWorkers = 3

	// DefaultBufferCapacity is the row buffer between the pipeline's
	// producer and consumer.
	DefaultBufferCapacity = 10000

	// loopBackoff is the pause after a transient main-loop failure.
	loopBackoff = time.Second
)

// Config sizes the pool; zero values fall back to the defaults.
type Config struct {
	Workers        int
	BufferCapacity int
}

// Pool runs import jobs from the queue, at most Workers at a time.
type Pool struct {
	queue    *queue.Queue
	store    repository.Store
	registry *parser.Registry
	tracker  *progress.Tracker

	workers   int64
	bufferCap int
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewPool wires the pool to its queue, store, parser registry and live
// progress tracker. A nil tracker disables live snapshots.
func NewPool(q *queue.Queue, store repository.Store, registry *parser.Registry, tracker *progress.Tracker, cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	bufferCap := cfg.BufferCapacity
	if bufferCap <= 0 {
		bufferCap = DefaultBufferCapacity
	}
	if tracker == nil {
		tracker = progress.NewTracker(nil)
	}
	return &Pool{
		queue:     q,
		store:     store,
		registry:  registry,
		tracker:   tracker,
		workers:   int64(workers),
		bufferCap: bufferCap,
		sem:       semaphore.NewWeighted(int64(workers)),
	}
}

// Run pulls tasks until ctx is cancelled, then waits for in-flight jobs to
// finish. Jobs interrupted mid-flight stay Processing; the startup sweep
// fails them on the next boot.
func (p *Pool) Run(ctx context.Context) {
	log.Printf("[Worker] pool started with %d permits", p.workers)
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			break
		}
		task, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			// A dequeue failure outside shutdown must not kill the pool.
			log.Printf("[Worker] dequeue failed: %v", err)
			time.Sleep(loopBackoff)
			continue
		}
		metrics.QueueDepth.Set(float64(p.queue.PendingCount()))

		p.wg.Add(1)
		go func(task queue.Task) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.executeJob(ctx, task)
		}(task)
	}

	p.wg.Wait()
	log.Printf("[Worker] pool drained")
}

// executeJob runs one import end to end. Every failure lands the job in a
// terminal state; only a missing job row returns early.
func (p *Pool) executeJob(ctx context.Context, task queue.Task) {
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()

	job, err := p.store.Jobs.Get(ctx, task.JobID)
	if err != nil {
		log.Printf("[Worker] job %s: load failed: %v", task.JobID, err)
		return
	}
	log.Printf("[Worker] job %s: processing %s (%d bytes)", job.ID, job.FileName, job.FileSize)

	opts := task.Options.Normalize()
	src := bytes.NewReader(task.Payload)

	detection, prs, err := parser.DetectSchema(ctx, p.registry, task.FileName, src, opts)
	if err != nil {
		p.failJob(ctx, job, err)
		return
	}
	schema := &domain.Schema{
		JobID:    job.ID,
		FileName: job.FileName,
		Columns:  detection.Columns,
	}
	if err := p.store.Schemas.Create(ctx, schema); err != nil {
		p.failJob(ctx, job, fmt.Errorf("persist schema: %w", err))
		return
	}

	job.TotalRecords = detection.EstimatedRowCount
	if err := job.Start(); err != nil {
		p.failJob(ctx, job, err)
		return
	}
	if err := p.store.Jobs.Update(ctx, job); err != nil {
		p.failJob(ctx, job, fmt.Errorf("persist job: %w", err))
		return
	}
	p.publishSnapshot(ctx, job)

	it, err := prs.ParseStream(ctx, src, opts)
	if err != nil {
		p.failJob(ctx, job, fmt.Errorf("open stream: %w", err))
		return
	}
	result, pipeErr := p.runPipeline(ctx, job, it, detection.Columns, opts.BatchSize)
	if err := it.Close(); err != nil {
		log.Printf("[Worker] job %s: close iterator: %v", job.ID, err)
	}

	job.TotalRecords = result.total
	job.ProcessedRecords = result.processed
	job.FailedRecords = result.failed

	if pipeErr != nil {
		p.failJob(ctx, job, pipeErr)
		return
	}

	if err := job.Complete(); err != nil {
		p.failJob(ctx, job, err)
		return
	}
	if err := p.store.Jobs.Update(ctx, job); err != nil {
		log.Printf("[Worker] job %s: persist final state: %v", job.ID, err)
	}
	p.publishSnapshot(ctx, job)
	p.observeFinished(job)

	log.Printf("[Worker] job %s: %s (%d/%d rows, %d failed)",
		job.ID, job.Status, job.ProcessedRecords, job.TotalRecords, job.FailedRecords)
}

// failJob lands the job in Failed and records why. During shutdown the job
// is left as-is for the startup sweep; cancellation is not an outcome.
func (p *Pool) failJob(ctx context.Context, job *domain.Job, cause error) {
	if ctx.Err() != nil {
		log.Printf("[Worker] job %s: interrupted: %v", job.ID, cause)
		return
	}
	log.Printf("[Worker] job %s: failed: %v", job.ID, cause)

	if err := job.Fail(cause.Error()); err != nil {
		log.Printf("[Worker] job %s: %v", job.ID, err)
		return
	}
	if err := p.store.Jobs.Update(ctx, job); err != nil {
		log.Printf("[Worker] job %s: persist failure: %v", job.ID, err)
	}
	p.publishSnapshot(ctx, job)
	p.observeFinished(job)
}

func (p *Pool) publishSnapshot(ctx context.Context, job *domain.Job) {
	if err := p.tracker.Publish(ctx, progress.Project(job)); err != nil {
		log.Printf("[Worker] job %s: publish progress: %v", job.ID, err)
	}
}

func (p *Pool) observeFinished(job *domain.Job) {
	metrics.JobsFinished.WithLabelValues(string(job.Status)).Inc()
	if d := job.Duration(); d != nil {
		metrics.JobDuration.Observe(d.Seconds())
	}
}
