package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/tabular-ingest/internal/domain"
	"github.com/ignite/tabular-ingest/internal/repository"
)

func setupMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func jobColumns() []string {
	return []string{
		"id", "file_name", "file_type", "file_size", "status",
		"total_records", "processed_records", "failed_records",
		"error_message", "started_at", "completed_at", "created_at", "updated_at",
	}
}

func TestJobRepoCreate(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO ingest_jobs").
		WithArgs("job-1", "data.csv", ".csv", int64(42), string(domain.JobPending),
			int64(0), int64(0), int64(0), nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepo(db)
	job := &domain.Job{
		ID:       "job-1",
		FileName: "data.csv",
		FileType: ".csv",
		FileSize: 42,
		Status:   domain.JobPending,
	}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJobRepoCreate_AssignsID(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO ingest_jobs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepo(db)
	job := &domain.Job{FileName: "data.csv", FileType: ".csv", Status: domain.JobPending}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if job.ID == "" {
		t.Error("Create() should assign an id when none is set")
	}
}

func TestJobRepoGet(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobColumns()).
		AddRow("job-1", "data.csv", ".csv", int64(42), "Processing",
			int64(10), int64(4), int64(1), nil, &now, nil, now, now)
	mock.ExpectQuery("SELECT (.+) FROM ingest_jobs").
		WithArgs("job-1").
		WillReturnRows(rows)

	repo := NewJobRepo(db)
	job, err := repo.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if job.Status != domain.JobProcessing {
		t.Errorf("Status = %s, want Processing", job.Status)
	}
	if job.ProcessedRecords != 4 || job.FailedRecords != 1 {
		t.Errorf("counters = %d/%d, want 4/1", job.ProcessedRecords, job.FailedRecords)
	}
}

func TestJobRepoGet_NotFound(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM ingest_jobs").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewJobRepo(db)
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrJobNotFound) {
		t.Errorf("Get() err = %v, want ErrJobNotFound", err)
	}
}

func TestJobRepoUpdateProgress(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE ingest_jobs").
		WithArgs("job-1", int64(500), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewJobRepo(db)
	if err := repo.UpdateProgress(context.Background(), "job-1", 500, 3); err != nil {
		t.Fatalf("UpdateProgress() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestJobRepoFailStaleProcessing(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec("UPDATE ingest_jobs").
		WithArgs(string(domain.JobFailed), "interrupted by shutdown", string(domain.JobProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	repo := NewJobRepo(db)
	n, err := repo.FailStaleProcessing(context.Background(), "interrupted by shutdown")
	if err != nil {
		t.Fatalf("FailStaleProcessing() error: %v", err)
	}
	if n != 2 {
		t.Errorf("swept = %d, want 2", n)
	}
}

func TestRecordRepoBulkInsert_UsesCopy(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin()
	stmt := mock.ExpectPrepare(`COPY "ingest_records"`)
	stmt.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1)) // row 1
	stmt.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1)) // row 2
	stmt.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0)) // flush
	mock.ExpectCommit()

	repo := NewRecordRepo(db)
	records := []domain.Record{
		{JobID: "job-1", RowNumber: 1, Data: map[string]domain.Scalar{"a": domain.IntScalar(1)}},
		{JobID: "job-1", RowNumber: 2, Data: map[string]domain.Scalar{"a": domain.IntScalar(2)}},
	}
	if err := repo.BulkInsert(context.Background(), records); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}
	if records[0].ID == "" || records[1].ID == "" {
		t.Error("BulkInsert() should assign record ids")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRecordRepoBulkInsert_Empty(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	repo := NewRecordRepo(db)
	if err := repo.BulkInsert(context.Background(), nil); err != nil {
		t.Fatalf("BulkInsert(nil) error: %v", err)
	}
	// No SQL should have run at all.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected SQL: %v", err)
	}
}

func TestRecordRepoListByJob(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"id", "job_id", "row_number", "data", "created_at"}).
		AddRow("r-1", "job-1", int64(1), []byte(`{"a":1,"b":"x"}`), now).
		AddRow("r-2", "job-1", int64(2), []byte(`{"a":2,"b":null}`), now)
	mock.ExpectQuery("SELECT (.+) FROM ingest_records").
		WithArgs("job-1", 50, 0).
		WillReturnRows(rows)

	repo := NewRecordRepo(db)
	out, err := repo.ListByJob(context.Background(), "job-1", 1, 50)
	if err != nil {
		t.Fatalf("ListByJob() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].RowNumber != 1 || out[1].RowNumber != 2 {
		t.Errorf("row numbers = %d,%d, want 1,2", out[0].RowNumber, out[1].RowNumber)
	}
	if out[0].Data["a"].Int != 1 {
		t.Errorf("data.a = %+v, want Int 1", out[0].Data["a"])
	}
	if !out[1].Data["b"].IsNull() {
		t.Errorf("data.b = %+v, want null", out[1].Data["b"])
	}
}

func TestRecordRepoSearch_EscapesTerm(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "job_id", "row_number", "data", "created_at"})
	mock.ExpectQuery("SELECT (.+) FROM ingest_records").
		WithArgs("job-1", `50\%`, repository.SearchLimit).
		WillReturnRows(rows)

	repo := NewRecordRepo(db)
	if _, err := repo.Search(context.Background(), "job-1", "50%"); err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSchemaRepoRoundTrip(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO ingest_schemas").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now().UTC()
	colJSON := []byte(`[{"name":"a","index":0,"detected_type":"integer","display_name":"a","is_ignored":false}]`)
	mock.ExpectQuery("SELECT (.+) FROM ingest_schemas").
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "file_name", "columns", "created_at"}).
			AddRow("s-1", "job-1", "data.csv", colJSON, now))

	repo := NewSchemaRepo(db)
	schema := &domain.Schema{
		JobID:    "job-1",
		FileName: "data.csv",
		Columns: []domain.ColumnDefinition{
			{Name: "a", Index: 0, DetectedType: domain.TypeInteger, DisplayName: "a"},
		},
	}
	if err := repo.Create(context.Background(), schema); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByJob() error: %v", err)
	}
	if len(got.Columns) != 1 || got.Columns[0].DetectedType != domain.TypeInteger {
		t.Errorf("columns = %+v, want one integer column", got.Columns)
	}
}

func TestSchemaRepoGetByJob_NotFound(t *testing.T) {
	db, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM ingest_schemas").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewSchemaRepo(db)
	if _, err := repo.GetByJob(context.Background(), "missing"); !errors.Is(err, repository.ErrSchemaNotFound) {
		t.Errorf("GetByJob() err = %v, want ErrSchemaNotFound", err)
	}
}
