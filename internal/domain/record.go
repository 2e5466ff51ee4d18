package domain

import "time"

// Record is one persisted data row of an import job. Data maps column name
// to the typed cell value; RowNumber is the 1-based position among the rows
// the parser yielded for the file.
type Record struct {
	ID        string            `json:"id" db:"id"`
	JobID     string            `json:"job_id" db:"job_id"`
	RowNumber int64             `json:"row_number" db:"row_number"`
	Data      map[string]Scalar `json:"data" db:"data"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// ParsedRow is one row as produced by a parser: either a typed data map
// (OK) or the reason the row was rejected. Malformed rows are reported,
// never swallowed and never fatal.
type ParsedRow struct {
	Data         map[string]Scalar `json:"data,omitempty"`
	RowNumber    int64             `json:"row_number"`
	OK           bool              `json:"ok"`
	ErrorMessage string            `json:"error_message,omitempty"`
}
