// Package repository defines the persistence contract the ingestion
// engine runs against. Two backings implement it, PostgreSQL and
// DynamoDB, and the engine must not know which one is live: everything
// it needs lives behind these three interfaces.
package repository

import (
	"context"
	"errors"

	"github.com/ignite/tabular-ingest/internal/domain"
)

var (
	// ErrJobNotFound is returned when a job id resolves to nothing.
	ErrJobNotFound = errors.New("job not found")

	// ErrSchemaNotFound is returned when a job has no stored schema.
	ErrSchemaNotFound = errors.New("schema not found")
)

// SearchLimit caps how many records a search returns.
const SearchLimit = 100

// DefaultPageSize is used when a listing call passes size <= 0.
const DefaultPageSize = 50

// Jobs is CRUD plus listing over import jobs. Update writes every
// mutable field; UpdateProgress touches only the row counters and is
// what the pipeline calls after each batch.
type Jobs interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, id string) (*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	UpdateProgress(ctx context.Context, id string, processed, failed int64) error
	List(ctx context.Context, page, size int) ([]domain.Job, int, error)
	Delete(ctx context.Context, id string) error

	// FailStaleProcessing force-fails jobs left in Processing by an
	// earlier run and returns how many were swept.
	FailStaleProcessing(ctx context.Context, reason string) (int, error)
}

// Schemas stores the one detected schema per job.
type Schemas interface {
	Create(ctx context.Context, schema *domain.Schema) error
	GetByJob(ctx context.Context, jobID string) (*domain.Schema, error)
	DeleteByJob(ctx context.Context, jobID string) error
}

// Records is append-only bulk persistence of parsed rows. BulkInsert
// must ride the backing store's native batch path; read-back order is
// ascending rowNumber.
type Records interface {
	BulkInsert(ctx context.Context, records []domain.Record) error
	ListByJob(ctx context.Context, jobID string, page, size int) ([]domain.Record, error)
	CountByJob(ctx context.Context, jobID string) (int64, error)
	DeleteByJob(ctx context.Context, jobID string) error

	// Search matches term as a case-insensitive substring of any single
	// value, capped at SearchLimit results in rowNumber order.
	Search(ctx context.Context, jobID, term string) ([]domain.Record, error)
}

// Store groups the three repositories of one backing.
type Store struct {
	Jobs    Jobs
	Schemas Schemas
	Records Records
}
