package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// DelimitedParser streams rows out of separator-delimited text files
// (.csv, .tsv, .txt). The delimiter comes from the submission options;
// every cell is emitted as a raw string and typed later against the
// detected schema.
type DelimitedParser struct{}

func NewDelimitedParser() *DelimitedParser { return &DelimitedParser{} }

func (p *DelimitedParser) Extensions() []string {
	return []string{".csv", ".tsv", ".txt"}
}

func (p *DelimitedParser) CanHandle(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range p.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// DetectSchema names the columns, infers a type per column from up to 100
// sampled rows, and exhausts the stream so the row count is exact. The
// source is left rewound to byte zero.
func (p *DelimitedParser) DetectSchema(ctx context.Context, src io.ReadSeeker, opts Options) (*Detection, error) {
	opts = opts.Normalize()
	it, err := p.open(ctx, src, opts)
	if err != nil {
		return nil, err
	}

	var tallies []*typeTally
	var total int64
	sampledRows := 0
	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		total++
		if !row.OK || sampledRows >= maxTypeSamples {
			continue
		}
		sampledRows++
		if tallies == nil {
			tallies = make([]*typeTally, len(it.names))
			for i := range tallies {
				tallies[i] = newTypeTally()
			}
		}
		for i, name := range it.names {
			v := strings.TrimSpace(row.Data[name].Str)
			if v == "" || tallies[i].full() {
				continue
			}
			tallies[i].add(Classify(v))
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("sample rows: %w", err)
	}

	columns := make([]domain.ColumnDefinition, len(it.names))
	for i, name := range it.names {
		detected := domain.TypeString
		if i < len(tallies) {
			detected = tallies[i].resolve()
		}
		columns[i] = domain.ColumnDefinition{
			Name:         name,
			Index:        i,
			DetectedType: detected,
			DisplayName:  name,
		}
	}

	if err := rewind(src); err != nil {
		return nil, err
	}
	return &Detection{Columns: columns, EstimatedRowCount: total}, nil
}

// Preview returns the first n yielded rows and rewinds the source.
func (p *DelimitedParser) Preview(ctx context.Context, src io.ReadSeeker, opts Options, n int) ([]domain.ParsedRow, error) {
	opts = opts.Normalize()
	if n <= 0 {
		n = opts.PreviewRows
	}
	it, err := p.open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.ParsedRow, 0, n)
	for len(rows) < n {
		row, ok := it.Next()
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("preview rows: %w", err)
	}
	if err := rewind(src); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *DelimitedParser) ParseStream(ctx context.Context, src io.ReadSeeker, opts Options) (RowIterator, error) {
	return p.open(ctx, src, opts.Normalize())
}

// open rewinds the source, skips the configured preamble rows, consumes
// the header when there is one, and hands back a lazy iterator over the
// data rows.
func (p *DelimitedParser) open(ctx context.Context, src io.ReadSeeker, opts Options) (*delimitedIterator, error) {
	if err := rewind(src); err != nil {
		return nil, err
	}

	r := csv.NewReader(src)
	r.Comma = opts.Delimiter
	// Preamble rows may have any shape; the header or first data row
	// anchors the expected field count afterwards.
	r.FieldsPerRecord = -1
	for i := 0; i < opts.SkipRows; i++ {
		if _, err := r.Read(); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("skip rows: %w", err)
		}
	}
	r.FieldsPerRecord = 0

	it := &delimitedIterator{ctx: ctx, reader: r}
	if opts.HasHeader {
		header, err := r.Read()
		if err != nil {
			if err == io.EOF {
				it.done = true
				return it, nil
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		it.names = headerNames(header)
	}
	return it, nil
}

// delimitedIterator walks csv records one at a time. A record with the
// wrong field count or a quoting problem is yielded as a failed row and
// iteration continues; only I/O-level errors stop the stream.
type delimitedIterator struct {
	ctx    context.Context
	reader *csv.Reader
	names  []string
	rowNum int64
	err    error
	done   bool
}

func (it *delimitedIterator) Next() (domain.ParsedRow, bool) {
	if it.done {
		return domain.ParsedRow{}, false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		it.done = true
		return domain.ParsedRow{}, false
	}

	rec, err := it.reader.Read()
	if err != nil {
		if err == io.EOF {
			it.done = true
			return domain.ParsedRow{}, false
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return domain.ParsedRow{OK: false, ErrorMessage: err.Error()}, true
		}
		it.err = err
		it.done = true
		return domain.ParsedRow{}, false
	}

	if it.names == nil {
		it.names = generatedNames(len(rec))
	}

	it.rowNum++
	return domain.ParsedRow{Data: it.rowData(rec), RowNumber: it.rowNum, OK: true}, true
}

func (it *delimitedIterator) rowData(rec []string) map[string]domain.Scalar {
	data := make(map[string]domain.Scalar, len(rec))
	for i, cell := range rec {
		name := columnName(i)
		if i < len(it.names) {
			name = it.names[i]
		}
		data[name] = domain.StringScalar(cell)
	}
	// Columns the record did not reach are present as nulls.
	for i := len(rec); i < len(it.names); i++ {
		data[it.names[i]] = domain.NullScalar()
	}
	return data
}

func (it *delimitedIterator) Err() error { return it.err }

func (it *delimitedIterator) Close() error { return nil }
