package domain

import "time"

// ColumnType enumerates the value types the inference engine can assign to
// a column.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeInteger  ColumnType = "integer"
	TypeDecimal  ColumnType = "decimal"
	TypeBoolean  ColumnType = "boolean"
	TypeDatetime ColumnType = "datetime"
	TypeDate     ColumnType = "date"
	TypeUnknown  ColumnType = "unknown"
)

// ColumnDefinition describes a single column detected in an uploaded file.
type ColumnDefinition struct {
	Name         string     `json:"name" db:"name"`
	Index        int        `json:"index" db:"index"`
	DetectedType ColumnType `json:"detected_type" db:"detected_type"`
	DisplayName  string     `json:"display_name" db:"display_name"`
	IsIgnored    bool       `json:"is_ignored" db:"is_ignored"`
}

// Schema is the detected shape of one imported file, bound 1:1 to its job.
type Schema struct {
	ID        string             `json:"id" db:"id"`
	JobID     string             `json:"job_id" db:"job_id"`
	FileName  string             `json:"file_name" db:"file_name"`
	Columns   []ColumnDefinition `json:"columns" db:"columns"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Column returns the definition with the given name, or nil.
func (s *Schema) Column(name string) *ColumnDefinition {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}
