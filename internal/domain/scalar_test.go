package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestScalarZeroValueIsNull(t *testing.T) {
	var s Scalar
	if !s.IsNull() {
		t.Error("zero value Scalar should be null")
	}
	if s.String() != "" {
		t.Errorf("null String() = %q, want empty", s.String())
	}
}

func TestScalarDecimalKeepsDigits(t *testing.T) {
	// 19.9900 must survive a JSON round trip without float rounding.
	row := map[string]Scalar{"price": DecimalScalar("19.9900")}

	raw, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(raw) != `{"price":19.9900}` {
		t.Errorf("Marshal() = %s, want {\"price\":19.9900}", raw)
	}

	var back map[string]Scalar
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	got := back["price"]
	if got.Kind != KindDecimal || got.Decimal != "19.9900" {
		t.Errorf("round trip = kind %d %q, want decimal 19.9900", got.Kind, got.Decimal)
	}
}

func TestScalarIntegerRoundTrip(t *testing.T) {
	raw, err := json.Marshal(IntScalar(42))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var back Scalar
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if back.Kind != KindInt || back.Int != 42 {
		t.Errorf("round trip = kind %d %d, want integer 42", back.Kind, back.Int)
	}
}

func TestScalarTimestampRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

	raw, err := json.Marshal(TimeScalar(ts))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if string(raw) != `"2024-03-15T10:30:00Z"` {
		t.Errorf("Marshal() = %s, want RFC3339 string", raw)
	}

	var back Scalar
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if back.Kind != KindTime || !back.Time.Equal(ts) {
		t.Errorf("round trip = kind %d %v, want timestamp %v", back.Kind, back.Time, ts)
	}
}

func TestScalarString(t *testing.T) {
	tests := []struct {
		name string
		in   Scalar
		want string
	}{
		{"bool", BoolScalar(true), "true"},
		{"int", IntScalar(-7), "-7"},
		{"float", FloatScalar(2.5), "2.5"},
		{"decimal", DecimalScalar("0.001"), "0.001"},
		{"string", StringScalar("hello"), "hello"},
		{"null", NullScalar(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScalarFromNative(t *testing.T) {
	if got := ScalarFromNative(nil); !got.IsNull() {
		t.Error("nil should map to null scalar")
	}
	if got := ScalarFromNative(float64(10)); got.Kind != KindInt || got.Int != 10 {
		t.Errorf("integral float64 = kind %d, want integer 10", got.Kind)
	}
	if got := ScalarFromNative("2024-03-15T10:30:00Z"); got.Kind != KindTime {
		t.Errorf("RFC3339 string = kind %d, want timestamp", got.Kind)
	}
	if got := ScalarFromNative("plain"); got.Kind != KindString || got.Str != "plain" {
		t.Errorf("plain string = kind %d %q, want string", got.Kind, got.Str)
	}
}
