package postgres

import (
	"database/sql"

	"github.com/ignite/tabular-ingest/internal/repository"
)

// NewStore wires the three Postgres repositories over one connection
// pool.
func NewStore(db *sql.DB) repository.Store {
	return repository.Store{
		Jobs:    NewJobRepo(db),
		Schemas: NewSchemaRepo(db),
		Records: NewRecordRepo(db),
	}
}
