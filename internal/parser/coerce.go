package parser

import (
	"strconv"
	"strings"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// CoerceRow converts the raw values of one parsed row to the types the
// schema detected for their columns. Cells already carrying a native type
// (workbook booleans, numbers, timestamps) pass through untouched; string
// cells are parsed into the column's type. A string that does not fit its
// column stays a string rather than failing the row. Cells in columns the
// schema never saw are kept as-is.
func CoerceRow(data map[string]domain.Scalar, columns []domain.ColumnDefinition) map[string]domain.Scalar {
	if len(data) == 0 || len(columns) == 0 {
		return data
	}
	out := make(map[string]domain.Scalar, len(data))
	types := make(map[string]domain.ColumnType, len(columns))
	for _, col := range columns {
		types[col.Name] = col.DetectedType
	}
	for name, v := range data {
		ct, known := types[name]
		if !known || v.Kind != domain.KindString {
			out[name] = v
			continue
		}
		out[name] = coerceString(v.Str, ct)
	}
	return out
}

// coerceString parses one raw cell into the column's detected type.
func coerceString(raw string, ct domain.ColumnType) domain.Scalar {
	if ct == domain.TypeString || ct == domain.TypeUnknown {
		return domain.StringScalar(raw)
	}
	v := strings.TrimSpace(raw)
	if v == "" {
		return domain.NullScalar()
	}
	switch ct {
	case domain.TypeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return domain.IntScalar(n)
		}
	case domain.TypeDecimal:
		if isDecimal(v) || isInteger(v) {
			return domain.DecimalScalar(v)
		}
	case domain.TypeBoolean:
		if isBoolean(v) {
			return domain.BoolScalar(strings.EqualFold(v, "true"))
		}
	case domain.TypeDatetime:
		if ts, ok := parseDatetime(v); ok {
			return domain.TimeScalar(ts)
		}
	case domain.TypeDate:
		if ts, ok := parseDate(v); ok {
			return domain.TimeScalar(ts)
		}
	}
	return domain.StringScalar(raw)
}
