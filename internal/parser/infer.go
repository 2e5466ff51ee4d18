package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/tabular-ingest/internal/domain"
)

// Datetime shapes accepted by classification. Each regexp gates the layout
// attempts so we don't run time.Parse on obviously non-temporal text.
var datetimePatterns = []struct {
	pattern *regexp.Regexp
	layouts []string
}{
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})$`),
		[]string{time.RFC3339, time.RFC3339Nano},
	},
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02T15:04:05", "2006-01-02T15:04:05.000"},
	},
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(\.\d+)?$`),
		[]string{"2006-01-02 15:04:05", "2006-01-02 15:04:05.000"},
	},
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{1,2}:\d{2}$`),
		[]string{"2006-01-02 15:04"},
	},
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4} \d{1,2}:\d{2}(:\d{2})?( (AM|PM))?$`),
		[]string{"1/2/2006 15:04:05", "1/2/2006 15:04", "1/2/2006 3:04:05 PM", "01/02/2006 15:04:05"},
	},
}

// Date-only shapes, tried after datetime fails.
var datePatterns = []struct {
	pattern *regexp.Regexp
	layouts []string
}{
	{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		[]string{"2006-01-02"},
	},
	{
		regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`),
		[]string{"2006/01/02"},
	},
	{
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
		[]string{"1/2/2006", "01/02/2006"},
	},
	{
		regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`),
		[]string{"2.1.2006", "02.01.2006"},
	},
}

// Classify assigns a column type to a single raw sample. Whitespace is
// trimmed first; empty samples carry no evidence and classify as string.
// The attempt order is integer, decimal, boolean, datetime, date; the
// first match wins and anything unmatched is string.
func Classify(sample string) domain.ColumnType {
	v := strings.TrimSpace(sample)
	if v == "" {
		return domain.TypeString
	}
	if isInteger(v) {
		return domain.TypeInteger
	}
	if isDecimal(v) {
		return domain.TypeDecimal
	}
	if isBoolean(v) {
		return domain.TypeBoolean
	}
	if _, ok := parseDatetime(v); ok {
		return domain.TypeDatetime
	}
	if _, ok := parseDate(v); ok {
		return domain.TypeDate
	}
	return domain.TypeString
}

// classifyScalar maps an already-typed cell (from a workbook) onto the
// column type set. Native numbers read as decimal because spreadsheet
// numerics are floating-point; string cells fall back to Classify.
func classifyScalar(s domain.Scalar) domain.ColumnType {
	switch s.Kind {
	case domain.KindBool:
		return domain.TypeBoolean
	case domain.KindInt, domain.KindFloat, domain.KindDecimal:
		return domain.TypeDecimal
	case domain.KindTime:
		return domain.TypeDatetime
	case domain.KindString:
		return Classify(s.Str)
	default:
		return domain.TypeString
	}
}

// typeTally accumulates classifications for one column and resolves the
// modal type under the 80% acceptance rule.
type typeTally struct {
	counts  map[domain.ColumnType]int
	samples int
}

func newTypeTally() *typeTally {
	return &typeTally{counts: make(map[domain.ColumnType]int)}
}

func (t *typeTally) add(ct domain.ColumnType) {
	t.counts[ct]++
	t.samples++
}

func (t *typeTally) full() bool { return t.samples >= maxTypeSamples }

// resolve picks the modal type when it covers at least 80% of the
// non-empty samples, otherwise string. Ties break in classification
// order. No samples at all means string.
func (t *typeTally) resolve() domain.ColumnType {
	if t.samples == 0 {
		return domain.TypeString
	}
	order := []domain.ColumnType{
		domain.TypeInteger,
		domain.TypeDecimal,
		domain.TypeBoolean,
		domain.TypeDatetime,
		domain.TypeDate,
		domain.TypeString,
	}
	best := domain.TypeString
	bestCount := 0
	for _, ct := range order {
		if t.counts[ct] > bestCount {
			best = ct
			bestCount = t.counts[ct]
		}
	}
	if bestCount*100 >= t.samples*80 {
		return best
	}
	return domain.TypeString
}

// InferColumnType runs Classify over the non-empty samples of one column
// and applies the modal acceptance rule.
func InferColumnType(samples []string) domain.ColumnType {
	tally := newTypeTally()
	for _, s := range samples {
		v := strings.TrimSpace(s)
		if v == "" {
			continue
		}
		if tally.full() {
			break
		}
		tally.add(Classify(v))
	}
	return tally.resolve()
}

func isInteger(v string) bool {
	_, err := strconv.ParseInt(v, 10, 64)
	return err == nil
}

// isDecimal accepts fixed-point literals only: one dot, no exponent.
func isDecimal(v string) bool {
	if strings.Count(v, ".") != 1 || strings.ContainsAny(v, "eE") {
		return false
	}
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

func isBoolean(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	}
	return false
}

func parseDatetime(v string) (time.Time, bool) {
	for _, dp := range datetimePatterns {
		if !dp.pattern.MatchString(v) {
			continue
		}
		for _, layout := range dp.layouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

func parseDate(v string) (time.Time, bool) {
	for _, dp := range datePatterns {
		if !dp.pattern.MatchString(v) {
			continue
		}
		for _, layout := range dp.layouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}
