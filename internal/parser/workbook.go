package parser

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// WorkbookParser reads spreadsheet workbooks (.xlsx, .xls) row by row
// through excelize's streaming iterator. Native cell types survive the
// parse: booleans stay booleans, numbers come out as floating-point,
// recognizable timestamps become timestamps, empty cells become nulls,
// and everything else is a trimmed string.
type WorkbookParser struct{}

func NewWorkbookParser() *WorkbookParser { return &WorkbookParser{} }

func (p *WorkbookParser) Extensions() []string {
	return []string{".xlsx", ".xls"}
}

func (p *WorkbookParser) CanHandle(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, e := range p.Extensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// DetectSchema samples up to 100 rows of the selected sheet, classifies
// columns by native cell kind, and exhausts the sheet for an exact row
// count. The source is left rewound to byte zero.
func (p *WorkbookParser) DetectSchema(ctx context.Context, src io.ReadSeeker, opts Options) (*Detection, error) {
	opts = opts.Normalize()
	it, err := p.open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var tallies []*typeTally
	var total int64
	sampledRows := 0
	width := len(it.names)
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
		if w := len(row.Data); w > width {
			width = w
		}
		for len(tallies) < width {
			tallies = append(tallies, newTypeTally())
		}
		for i := 0; i < width; i++ {
			name := columnName(i)
			if i < len(it.names) {
				name = it.names[i]
			}
			cell, present := row.Data[name]
			if !present || cell.IsNull() || tallies[i].full() {
				continue
			}
			tallies[i].add(classifyScalar(cell))
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("sample rows: %w", err)
	}

	names := it.names
	for len(names) < width {
		names = append(names, columnName(len(names)))
	}
	columns := make([]domain.ColumnDefinition, len(names))
	for i, name := range names {
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
func (p *WorkbookParser) Preview(ctx context.Context, src io.ReadSeeker, opts Options, n int) ([]domain.ParsedRow, error) {
	opts = opts.Normalize()
	if n <= 0 {
		n = opts.PreviewRows
	}
	it, err := p.open(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	defer it.Close()

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

func (p *WorkbookParser) ParseStream(ctx context.Context, src io.ReadSeeker, opts Options) (RowIterator, error) {
	return p.open(ctx, src, opts.Normalize())
}

// open loads the workbook, resolves the sheet, skips preamble rows, and
// consumes the header when there is one.
func (p *WorkbookParser) open(ctx context.Context, src io.ReadSeeker, opts Options) (*workbookIterator, error) {
	if err := rewind(src); err != nil {
		return nil, err
	}

	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}

	sheet := opts.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx == -1 {
		f.Close()
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	it := &workbookIterator{ctx: ctx, file: f, rows: rows}
	for i := 0; i < opts.SkipRows; i++ {
		if !rows.Next() {
			break
		}
	}
	if opts.HasHeader && rows.Next() {
		header, err := rows.Columns()
		if err != nil {
			it.Close()
			return nil, fmt.Errorf("read header: %w", err)
		}
		it.names = headerNames(header)
	}
	return it, nil
}

// workbookIterator walks sheet rows. Fully empty rows inside the used
// range are skipped; a row whose cells cannot be read is yielded as a
// failed row and iteration continues.
type workbookIterator struct {
	ctx    context.Context
	file   *excelize.File
	rows   *excelize.Rows
	names  []string
	rowNum int64
	err    error
	done   bool
	closed bool
}

func (it *workbookIterator) Next() (domain.ParsedRow, bool) {
	if it.done || it.closed {
		return domain.ParsedRow{}, false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		it.done = true
		return domain.ParsedRow{}, false
	}

	for {
		if !it.rows.Next() {
			if err := it.rows.Error(); err != nil {
				it.err = fmt.Errorf("read rows: %w", err)
			}
			it.done = true
			return domain.ParsedRow{}, false
		}

		cells, err := it.rows.Columns()
		if err != nil {
			return domain.ParsedRow{OK: false, ErrorMessage: fmt.Sprintf("read row cells: %v", err)}, true
		}
		if emptyCells(cells) {
			continue
		}

		if it.names == nil {
			it.names = generatedNames(len(cells))
		}

		it.rowNum++
		return domain.ParsedRow{Data: it.rowData(cells), RowNumber: it.rowNum, OK: true}, true
	}
}

func (it *workbookIterator) rowData(cells []string) map[string]domain.Scalar {
	width := len(cells)
	if len(it.names) > width {
		width = len(it.names)
	}
	data := make(map[string]domain.Scalar, width)
	for i := 0; i < width; i++ {
		name := columnName(i)
		if i < len(it.names) {
			name = it.names[i]
		}
		raw := ""
		if i < len(cells) {
			raw = cells[i]
		}
		data[name] = cellScalar(raw)
	}
	return data
}

func (it *workbookIterator) Err() error { return it.err }

func (it *workbookIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	var errs []error
	if err := it.rows.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := it.file.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close workbook: %v", errs)
	}
	return nil
}

// cellScalar converts one formatted cell into its native-typed scalar.
func cellScalar(raw string) domain.Scalar {
	v := strings.TrimSpace(raw)
	if v == "" {
		return domain.NullScalar()
	}
	switch strings.ToLower(v) {
	case "true":
		return domain.BoolScalar(true)
	case "false":
		return domain.BoolScalar(false)
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return domain.FloatScalar(f)
	}
	if ts, ok := parseDatetime(v); ok {
		return domain.TimeScalar(ts)
	}
	if ts, ok := parseDate(v); ok {
		return domain.TimeScalar(ts)
	}
	return domain.StringScalar(v)
}

func emptyCells(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
