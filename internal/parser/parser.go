// Package parser turns uploaded tabular files into lazy sequences of typed
// rows. Concrete parsers register by file extension; the engine resolves
// them through the Registry and never knows which format it is reading.
package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// ErrUnsupportedFormat is returned when no parser claims a filename's
// extension. The wrapped message names the accepted extensions.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Detection is the result of a schema-detection pass: the ordered column
// set and the number of data rows the streaming parse will yield. The
// count is exact because detection exhausts the (seekable) source.
type Detection struct {
	Columns           []domain.ColumnDefinition
	EstimatedRowCount int64
}

// RowIterator is a lazy sequence of parsed rows. Next returns false when
// the stream is exhausted or a non-row-level error occurred; Err reports
// that error. Close releases underlying resources and is safe to call
// more than once.
type RowIterator interface {
	Next() (domain.ParsedRow, bool)
	Err() error
	Close() error
}

// Parser is the capability set every file format implements. Sources are
// seekable: DetectSchema and Preview rewind the source to the start before
// returning so ParseStream can re-consume it from byte zero.
//
// Malformed rows never abort a parse. They surface as ParsedRow entries
// with OK=false and are counted by the pipeline, not propagated.
type Parser interface {
	Extensions() []string
	CanHandle(filename string) bool
	DetectSchema(ctx context.Context, src io.ReadSeeker, opts Options) (*Detection, error)
	Preview(ctx context.Context, src io.ReadSeeker, opts Options, n int) ([]domain.ParsedRow, error)
	ParseStream(ctx context.Context, src io.ReadSeeker, opts Options) (RowIterator, error)
}

// columnName fabricates a 1-based placeholder name for a blank or missing
// header cell.
func columnName(index int) string {
	return fmt.Sprintf("Column%d", index+1)
}

// headerNames trims raw header cells and fills blanks with fabricated
// names. Duplicates get a numeric suffix so the row map stays lossless.
func headerNames(raw []string) []string {
	names := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = columnName(i)
		}
		if n, dup := seen[h]; dup {
			seen[h] = n + 1
			h = fmt.Sprintf("%s_%d", h, n+1)
		} else {
			seen[h] = 1
		}
		names[i] = h
	}
	return names
}

// generatedNames fabricates Column1..ColumnN for headerless sources.
func generatedNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = columnName(i)
	}
	return names
}

// rewind puts a seekable source back at byte zero.
func rewind(src io.Seeker) error {
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind source: %w", err)
	}
	return nil
}
