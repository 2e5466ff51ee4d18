package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/metrics"
	"github.com/ignite/tabular-ingest/internal/parser"
)

// pipelineResult carries the final counters of one streamed parse.
type pipelineResult struct {
	total     int64
	processed int64
	failed    int64
}

// runPipeline streams rows from it into batched bulk writes. One producer
// walks the iterator while one consumer drains the buffer, so parsing and
// persistence overlap; a full buffer blocks the producer.
//
// The counters are atomics: the producer owns total and failed, the
// consumer owns processed, and each reads the others' when it reports
// progress.
func (p *Pool) runPipeline(ctx context.Context, job *domain.Job, it parser.RowIterator, columns []domain.ColumnDefinition, batchSize int) (pipelineResult, error) {
	if batchSize <= 0 {
		batchSize = parser.DefaultBatchSize
	}

	var total, processed, failed int64
	buffer := make(chan domain.Record, p.bufferCap)

	g, ctx := errgroup.WithContext(ctx)

	// Producer: every yielded row counts toward total; good rows are typed
	// against the detected columns and forwarded, bad rows count as failed.
	g.Go(func() error {
		defer close(buffer)
		for {
			row, ok := it.Next()
			if !ok {
				break
			}
			atomic.AddInt64(&total, 1)
			metrics.RowsParsed.Inc()

			if !row.OK {
				atomic.AddInt64(&failed, 1)
				metrics.RowsRejected.Inc()
				continue
			}
			rec := domain.Record{
				JobID:     job.ID,
				RowNumber: row.RowNumber,
				Data:      parser.CoerceRow(row.Data, columns),
			}
			select {
			case buffer <- rec:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := it.Err(); err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		return nil
	})

	// Consumer: accumulate batchSize records per bulk write and push the
	// counters onto the job row after each one.
	g.Go(func() error {
		batch := make([]domain.Record, 0, batchSize)

		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := p.store.Records.BulkInsert(ctx, batch); err != nil {
				return fmt.Errorf("bulk insert: %w", err)
			}
			n := int64(len(batch))
			metrics.RowsCommitted.Add(float64(n))
			batch = batch[:0]

			done := atomic.AddInt64(&processed, n)
			bad := atomic.LoadInt64(&failed)
			if err := p.store.Jobs.UpdateProgress(ctx, job.ID, done, bad); err != nil {
				return fmt.Errorf("update progress: %w", err)
			}
			job.ProcessedRecords = done
			job.FailedRecords = bad
			p.publishSnapshot(ctx, job)
			return nil
		}

		for rec := range buffer {
			batch = append(batch, rec)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		// Residual rows after the producer closed the buffer.
		return flush()
	})

	err := g.Wait()
	return pipelineResult{
		total:     atomic.LoadInt64(&total),
		processed: atomic.LoadInt64(&processed),
		failed:    atomic.LoadInt64(&failed),
	}, err
}
