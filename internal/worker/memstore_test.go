package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// memStore is an in-memory repository.Store for pool and pipeline tests.
type memStore struct {
	jobs    *memJobs
	schemas *memSchemas
	records *memRecords
}

func newMemStore() *memStore {
	return &memStore{
		jobs:    &memJobs{byID: map[string]*domain.Job{}},
		schemas: &memSchemas{byJob: map[string]*domain.Schema{}},
		records: &memRecords{},
	}
}

func (s *memStore) store() repository.Store {
	return repository.Store{Jobs: s.jobs, Schemas: s.schemas, Records: s.records}
}

type memJobs struct {
	mu            sync.Mutex
	byID          map[string]*domain.Job
	progressCalls int
}

func (m *memJobs) Create(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	cp := *job
	m.byID[job.ID] = &cp
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.byID[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *memJobs) Update(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[job.ID]; !ok {
		return repository.ErrJobNotFound
	}
	cp := *job
	m.byID[job.ID] = &cp
	return nil
}

func (m *memJobs) UpdateProgress(_ context.Context, id string, processed, failed int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.byID[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	m.progressCalls++
	job.ProcessedRecords = processed
	job.FailedRecords = failed
	return nil
}

func (m *memJobs) List(_ context.Context, page, size int) ([]domain.Job, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, job := range m.byID {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (m *memJobs) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return repository.ErrJobNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memJobs) FailStaleProcessing(_ context.Context, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	swept := 0
	for _, job := range m.byID {
		if job.Status != domain.JobProcessing {
			continue
		}
		msg := reason
		job.Status = domain.JobFailed
		job.ErrorMessage = &msg
		swept++
	}
	return swept, nil
}

type memSchemas struct {
	mu    sync.Mutex
	byJob map[string]*domain.Schema
}

func (m *memSchemas) Create(_ context.Context, schema *domain.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if schema.ID == "" {
		schema.ID = uuid.New().String()
	}
	cp := *schema
	m.byJob[schema.JobID] = &cp
	return nil
}

func (m *memSchemas) GetByJob(_ context.Context, jobID string) (*domain.Schema, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, ok := m.byJob[jobID]
	if !ok {
		return nil, repository.ErrSchemaNotFound
	}
	cp := *schema
	return &cp, nil
}

func (m *memSchemas) DeleteByJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byJob, jobID)
	return nil
}

// memRecords records bulk calls and can park or fail them: when gate is
// set every insert waits for a token (or a closed channel), and failOn
// makes the Nth call error.
type memRecords struct {
	mu        sync.Mutex
	rows      []domain.Record
	bulkCalls int
	gate      chan struct{}
	failOn    int

	inFlight    int32
	maxInFlight int32
}

func (m *memRecords) BulkInsert(ctx context.Context, records []domain.Record) error {
	cur := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&m.maxInFlight)
		if cur <= peak || atomic.CompareAndSwapInt32(&m.maxInFlight, peak, cur) {
			break
		}
	}

	m.mu.Lock()
	m.bulkCalls++
	call := m.bulkCalls
	gate := m.gate
	failOn := m.failOn
	m.mu.Unlock()

	if failOn != 0 && call == failOn {
		return errors.New("records store unavailable")
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.rows = append(m.rows, records...)
	m.mu.Unlock()
	return nil
}

func (m *memRecords) ListByJob(_ context.Context, jobID string, page, size int) ([]domain.Record, error) {
	var out []domain.Record
	for _, rec := range m.all() {
		if rec.JobID == jobID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memRecords) CountByJob(_ context.Context, jobID string) (int64, error) {
	var n int64
	for _, rec := range m.all() {
		if rec.JobID == jobID {
			n++
		}
	}
	return n, nil
}

func (m *memRecords) DeleteByJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	for _, rec := range m.rows {
		if rec.JobID != jobID {
			kept = append(kept, rec)
		}
	}
	m.rows = kept
	return nil
}

func (m *memRecords) Search(_ context.Context, jobID, term string) ([]domain.Record, error) {
	return nil, errors.New("not implemented")
}

func (m *memRecords) all() []domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Record, len(m.rows))
	copy(out, m.rows)
	return out
}

func (m *memRecords) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bulkCalls
}

func (m *memRecords) concurrent() int {
	return int(atomic.LoadInt32(&m.inFlight))
}

func (m *memRecords) maxConcurrent() int {
	return int(atomic.LoadInt32(&m.maxInFlight))
}

// stubIterator yields a fixed row slice and can surface a trailing error.
type stubIterator struct {
	rows   []domain.ParsedRow
	err    error
	pos    int64
	closed bool
}

func (it *stubIterator) Next() (domain.ParsedRow, bool) {
	i := atomic.LoadInt64(&it.pos)
	if i >= int64(len(it.rows)) {
		return domain.ParsedRow{}, false
	}
	atomic.AddInt64(&it.pos, 1)
	return it.rows[i], true
}

func (it *stubIterator) Err() error   { return it.err }
func (it *stubIterator) Close() error { it.closed = true; return nil }

// pulled reports how many rows the producer has consumed so far.
func (it *stubIterator) pulled() int { return int(atomic.LoadInt64(&it.pos)) }

// okRows builds n well-formed rows numbered 1..n.
func okRows(n int) []domain.ParsedRow {
	rows := make([]domain.ParsedRow, n)
	for i := range rows {
		num := int64(i + 1)
		rows[i] = domain.ParsedRow{
			OK:        true,
			RowNumber: num,
			Data:      map[string]domain.Scalar{"n": domain.IntScalar(num)},
		}
	}
	return rows
}
