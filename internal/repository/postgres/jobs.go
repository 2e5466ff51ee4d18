// Package postgres implements the repository contract against
// PostgreSQL. Bulk record inserts ride the COPY protocol; everything
// else is plain parameterized SQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// JobRepo implements repository.Jobs against PostgreSQL.
type JobRepo struct{ db *sql.DB }

// NewJobRepo creates a Postgres-backed job repository.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

func (r *JobRepo) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ingest_jobs
			(id, file_name, file_type, file_size, status,
			 total_records, processed_records, failed_records,
			 error_message, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, job.ID, job.FileName, job.FileType, job.FileSize, job.Status,
		job.TotalRecords, job.ProcessedRecords, job.FailedRecords,
		job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	j := &domain.Job{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, file_name, file_type, file_size, status,
		       total_records, processed_records, failed_records,
		       error_message, started_at, completed_at, created_at, updated_at
		FROM ingest_jobs
		WHERE id = $1
	`, id).Scan(
		&j.ID, &j.FileName, &j.FileType, &j.FileSize, &j.Status,
		&j.TotalRecords, &j.ProcessedRecords, &j.FailedRecords,
		&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (r *JobRepo) Update(ctx context.Context, job *domain.Job) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs
		SET file_name = $2, file_type = $3, file_size = $4, status = $5,
		    total_records = $6, processed_records = $7, failed_records = $8,
		    error_message = $9, started_at = $10, completed_at = $11,
		    updated_at = NOW()
		WHERE id = $1
	`, job.ID, job.FileName, job.FileType, job.FileSize, job.Status,
		job.TotalRecords, job.ProcessedRecords, job.FailedRecords,
		job.ErrorMessage, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) UpdateProgress(ctx context.Context, id string, processed, failed int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs
		SET processed_records = $2, failed_records = $3, updated_at = NOW()
		WHERE id = $1
	`, id, processed, failed)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) List(ctx context.Context, page, size int) ([]domain.Job, int, error) {
	if size <= 0 {
		size = repository.DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingest_jobs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, file_name, file_type, file_size, status,
		       total_records, processed_records, failed_records,
		       error_message, started_at, completed_at, created_at, updated_at
		FROM ingest_jobs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(
			&j.ID, &j.FileName, &j.FileType, &j.FileSize, &j.Status,
			&j.TotalRecords, &j.ProcessedRecords, &j.FailedRecords,
			&j.ErrorMessage, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return out, total, nil
}

func (r *JobRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (r *JobRepo) FailStaleProcessing(ctx context.Context, reason string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE ingest_jobs
		SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE status = $3
	`, domain.JobFailed, reason, domain.JobProcessing)
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
