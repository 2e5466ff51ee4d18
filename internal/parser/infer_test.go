package parser

import (
	"testing"
	"time"

	"github.com/ignite/tabular-ingest/internal/domain"
)

func mustTime(t *testing.T, v string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		t.Fatalf("parse time %q: %v", v, err)
	}
	return ts
}

func TestClassify(t *testing.T) {
	tests := []struct {
		input    string
		expected domain.ColumnType
	}{
		{"42", domain.TypeInteger},
		{"-17", domain.TypeInteger},
		{"+5", domain.TypeInteger},
		{"3.14", domain.TypeDecimal},
		{"-0.5", domain.TypeDecimal},
		{"19.9900", domain.TypeDecimal},
		{"true", domain.TypeBoolean},
		{"FALSE", domain.TypeBoolean},
		{"2024-03-15T10:30:00Z", domain.TypeDatetime},
		{"2024-03-15 10:30:00", domain.TypeDatetime},
		{"2024-03-15", domain.TypeDate},
		{"03/15/2024", domain.TypeDate},
		{"hello", domain.TypeString},
		{"", domain.TypeString},
		{"   ", domain.TypeString},
		{"1e5", domain.TypeString},
		{"12abc", domain.TypeString},
		{"9223372036854775808", domain.TypeString}, // overflows int64, no dot
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Classify(tt.input); got != tt.expected {
				t.Errorf("Classify(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestClassify_TrimsWhitespace(t *testing.T) {
	if got := Classify("  42  "); got != domain.TypeInteger {
		t.Errorf("Classify with padding = %s, want integer", got)
	}
}

func TestInferColumnType_Modal(t *testing.T) {
	tests := []struct {
		name     string
		samples  []string
		expected domain.ColumnType
	}{
		{
			name:     "all integers",
			samples:  []string{"1", "2", "3"},
			expected: domain.TypeInteger,
		},
		{
			name:     "two thirds integer is below threshold",
			samples:  []string{"1", "two", "3"},
			expected: domain.TypeString,
		},
		{
			name:     "exactly 80 percent accepted",
			samples:  []string{"1", "2", "3", "4", "x"},
			expected: domain.TypeInteger,
		},
		{
			name:     "just under 80 percent rejected",
			samples:  []string{"1", "2", "3", "x", "y"},
			expected: domain.TypeString,
		},
		{
			name:     "empty samples carry no evidence",
			samples:  []string{"", "  ", ""},
			expected: domain.TypeString,
		},
		{
			name:     "no samples",
			samples:  nil,
			expected: domain.TypeString,
		},
		{
			name:     "booleans",
			samples:  []string{"true", "false", "TRUE", "False", "true"},
			expected: domain.TypeBoolean,
		},
		{
			name:     "decimals",
			samples:  []string{"1.5", "2.25", "3.0"},
			expected: domain.TypeDecimal,
		},
		{
			name:     "dates",
			samples:  []string{"2024-01-01", "2024-02-15", "2024-12-31"},
			expected: domain.TypeDate,
		},
		{
			name:     "empties excluded from the denominator",
			samples:  []string{"1", "", "2", "  ", "3"},
			expected: domain.TypeInteger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferColumnType(tt.samples); got != tt.expected {
				t.Errorf("InferColumnType() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestInferColumnType_SampleCap(t *testing.T) {
	// 100 integers then strings: the cap stops sampling at 100, so the
	// column stays integer no matter what follows.
	samples := make([]string, 0, 150)
	for i := 0; i < 100; i++ {
		samples = append(samples, "7")
	}
	for i := 0; i < 50; i++ {
		samples = append(samples, "text")
	}

	if got := InferColumnType(samples); got != domain.TypeInteger {
		t.Errorf("InferColumnType() = %s, want integer after sample cap", got)
	}
}

func TestClassifyScalar(t *testing.T) {
	tests := []struct {
		name     string
		in       domain.Scalar
		expected domain.ColumnType
	}{
		{"bool", domain.BoolScalar(true), domain.TypeBoolean},
		{"float", domain.FloatScalar(3.14), domain.TypeDecimal},
		{"integral float", domain.FloatScalar(42), domain.TypeDecimal},
		{"time", domain.TimeScalar(mustTime(t, "2024-03-15T10:30:00Z")), domain.TypeDatetime},
		{"numeric string", domain.StringScalar("42"), domain.TypeInteger},
		{"plain string", domain.StringScalar("abc"), domain.TypeString},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyScalar(tt.in); got != tt.expected {
				t.Errorf("classifyScalar() = %s, want %s", got, tt.expected)
			}
		})
	}
}
