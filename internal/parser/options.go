package parser

const (
	// DefaultDelimiter separates fields in delimited text unless the
	// submission says otherwise.
	DefaultDelimiter = ';'

	// DefaultBatchSize is the number of records per bulk insert.
	DefaultBatchSize = 1000

	// DefaultPreviewRows is how many rows a preview returns.
	DefaultPreviewRows = 10

	// maxTypeSamples caps how many non-empty values feed type inference
	// per column.
	maxTypeSamples = 100
)

// Options carries the per-submission knobs shared by every parser. The
// zero value is usable: Normalize fills defaults.
type Options struct {
	Delimiter   rune   `json:"delimiter"`
	HasHeader   bool   `json:"has_header"`
	SkipRows    int    `json:"skip_rows"`
	BatchSize   int    `json:"batch_size"`
	SheetName   string `json:"sheet_name,omitempty"`
	PreviewRows int    `json:"preview_rows"`
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		Delimiter:   DefaultDelimiter,
		BatchSize:   DefaultBatchSize,
		PreviewRows: DefaultPreviewRows,
	}
}

// Normalize fills zero values with defaults and clamps negatives.
func (o Options) Normalize() Options {
	if o.Delimiter == 0 {
		o.Delimiter = DefaultDelimiter
	}
	if o.SkipRows < 0 {
		o.SkipRows = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.PreviewRows <= 0 {
		o.PreviewRows = DefaultPreviewRows
	}
	return o
}
