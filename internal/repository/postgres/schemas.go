package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

// SchemaRepo implements repository.Schemas against PostgreSQL. Columns
// are stored as a JSONB array; the job_id column carries a unique index
// so the 1:1 job/schema relationship is enforced by the database.
type SchemaRepo struct{ db *sql.DB }

// NewSchemaRepo creates a Postgres-backed schema repository.
func NewSchemaRepo(db *sql.DB) *SchemaRepo { return &SchemaRepo{db: db} }

func (r *SchemaRepo) Create(ctx context.Context, schema *domain.Schema) error {
	if schema.ID == "" {
		schema.ID = uuid.New().String()
	}
	cols, err := json.Marshal(schema.Columns)
	if err != nil {
		return fmt.Errorf("marshal columns: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO ingest_schemas (id, job_id, file_name, columns, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`, schema.ID, schema.JobID, schema.FileName, cols)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (r *SchemaRepo) GetByJob(ctx context.Context, jobID string) (*domain.Schema, error) {
	s := &domain.Schema{}
	var cols []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, job_id, file_name, columns, created_at
		FROM ingest_schemas
		WHERE job_id = $1
	`, jobID).Scan(&s.ID, &s.JobID, &s.FileName, &cols, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrSchemaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	if err := json.Unmarshal(cols, &s.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	return s, nil
}

func (r *SchemaRepo) DeleteByJob(ctx context.Context, jobID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ingest_schemas WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete schema: %w", err)
	}
	return nil
}
