package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/parser"
	"github.com/ignite/tabular-ingest/internal/queue"
)

func newTestPool(ms *memStore, bufferCap int) *Pool {
	return NewPool(queue.New(10), ms.store(), parser.DefaultRegistry(), nil, Config{
		BufferCapacity: bufferCap,
	})
}

func seedJob(t *testing.T, ms *memStore) *domain.Job {
	t.Helper()
	job := &domain.Job{
		FileName: "data.csv",
		FileType: "csv",
		FileSize: 1,
		Status:   domain.JobProcessing,
	}
	require.NoError(t, ms.jobs.Create(context.Background(), job))
	return job
}

func TestPipelineBatchesBulkInserts(t *testing.T) {
	ms := newMemStore()
	job := seedJob(t, ms)
	pool := newTestPool(ms, 0)

	it := &stubIterator{rows: okRows(10001)}
	res, err := pool.runPipeline(context.Background(), job, it, nil, 1000)
	require.NoError(t, err)

	assert.Equal(t, int64(10001), res.total)
	assert.Equal(t, int64(10001), res.processed)
	assert.Equal(t, int64(0), res.failed)

	// Ten full batches plus the residual row.
	assert.Equal(t, 11, ms.records.calls())

	rows := ms.records.all()
	require.Len(t, rows, 10001)
	for i := range rows {
		if rows[i].RowNumber != int64(i+1) {
			t.Fatalf("row at position %d has rowNumber %d", i, rows[i].RowNumber)
		}
	}
}

func TestPipelineCountsRejectedRows(t *testing.T) {
	ms := newMemStore()
	job := seedJob(t, ms)
	pool := newTestPool(ms, 0)

	// Ten yielded rows, three of them malformed. Row numbers stay gapless
	// across the good ones.
	var rows []domain.ParsedRow
	var num int64
	for i := 0; i < 10; i++ {
		if i == 2 || i == 5 || i == 9 {
			rows = append(rows, domain.ParsedRow{OK: false, ErrorMessage: "wrong field count"})
			continue
		}
		num++
		rows = append(rows, domain.ParsedRow{
			OK:        true,
			RowNumber: num,
			Data:      map[string]domain.Scalar{"n": domain.IntScalar(num)},
		})
	}

	res, err := pool.runPipeline(context.Background(), job, &stubIterator{rows: rows}, nil, 4)
	require.NoError(t, err)

	assert.Equal(t, int64(10), res.total)
	assert.Equal(t, int64(7), res.processed)
	assert.Equal(t, int64(3), res.failed)

	stored := ms.records.all()
	require.Len(t, stored, 7)
	for i := range stored {
		assert.Equal(t, int64(i+1), stored[i].RowNumber)
	}

	// Counters were pushed onto the job row.
	got, err := ms.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ProcessedRecords)
	assert.Equal(t, int64(3), got.FailedRecords)
}

func TestPipelineStopsOnBulkInsertFailure(t *testing.T) {
	ms := newMemStore()
	ms.records.failOn = 2
	job := seedJob(t, ms)
	pool := newTestPool(ms, 0)

	it := &stubIterator{rows: okRows(2500)}
	res, err := pool.runPipeline(context.Background(), job, it, nil, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk insert")

	// The first batch landed before the store went away.
	assert.Equal(t, int64(1000), res.processed)
	assert.Len(t, ms.records.all(), 1000)
}

func TestPipelineSurfacesIteratorError(t *testing.T) {
	ms := newMemStore()
	job := seedJob(t, ms)
	pool := newTestPool(ms, 0)

	it := &stubIterator{rows: okRows(5), err: errors.New("stream truncated")}
	res, err := pool.runPipeline(context.Background(), job, it, nil, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read rows")
	assert.Equal(t, int64(5), res.total)
}

func TestPipelineBackpressureBlocksProducer(t *testing.T) {
	ms := newMemStore()
	gate := make(chan struct{})
	ms.records.gate = gate
	job := seedJob(t, ms)
	pool := newTestPool(ms, 4)

	it := &stubIterator{rows: okRows(100)}
	done := make(chan pipelineResult, 1)
	go func() {
		res, _ := pool.runPipeline(context.Background(), job, it, nil, 2)
		done <- res
	}()

	// With the consumer parked in its first bulk write, the producer can
	// run ahead by at most the 2 batched rows, the 4 buffered rows, and
	// the 1 row in its hand blocked on the full buffer.
	require.Eventually(t, func() bool { return it.pulled() == 7 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 7, it.pulled())

	close(gate)
	res := <-done
	assert.Equal(t, int64(100), res.total)
	assert.Equal(t, int64(100), res.processed)
	assert.Equal(t, 50, ms.records.calls())
}

func TestPipelineStopsOnCancellation(t *testing.T) {
	ms := newMemStore()
	gate := make(chan struct{})
	ms.records.gate = gate
	job := seedJob(t, ms)
	pool := newTestPool(ms, 4)

	ctx, cancel := context.WithCancel(context.Background())
	it := &stubIterator{rows: okRows(1000)}
	done := make(chan error, 1)
	go func() {
		_, err := pool.runPipeline(ctx, job, it, nil, 2)
		done <- err
	}()

	// Wedge the pipeline against the gate, then pull the plug.
	require.Eventually(t, func() bool { return it.pulled() >= 7 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
}
