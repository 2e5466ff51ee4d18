package ingest

import "errors"

// Sentinel errors for the ingest service layer.
var (
	// ErrEmptyInput rejects zero-byte uploads before any job is created.
	ErrEmptyInput = errors.New("uploaded file is empty")

	// ErrEmptyTerm rejects record searches without a search term.
	ErrEmptyTerm = errors.New("search term is empty")

	// ErrJobRunning refuses deleting a job that is currently processing.
	ErrJobRunning = errors.New("job is currently processing")
)
