package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ScalarKind tags the concrete type held by a Scalar.
type ScalarKind uint8

const (
	KindNull ScalarKind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindTime
)

// Scalar is a typed cell value. Exactly one value field is meaningful,
// selected by Kind; the zero value is the null scalar. Decimal keeps the
// lexical digits of fixed-point numbers so nothing is rounded crossing the
// persistence boundary.
type Scalar struct {
	Kind    ScalarKind
	Bool    bool
	Int     int64
	Float   float64
	Decimal string
	Str     string
	Time    time.Time
}

func NullScalar() Scalar               { return Scalar{Kind: KindNull} }
func BoolScalar(v bool) Scalar         { return Scalar{Kind: KindBool, Bool: v} }
func IntScalar(v int64) Scalar         { return Scalar{Kind: KindInt, Int: v} }
func FloatScalar(v float64) Scalar     { return Scalar{Kind: KindFloat, Float: v} }
func DecimalScalar(lex string) Scalar  { return Scalar{Kind: KindDecimal, Decimal: lex} }
func StringScalar(v string) Scalar     { return Scalar{Kind: KindString, Str: v} }
func TimeScalar(v time.Time) Scalar    { return Scalar{Kind: KindTime, Time: v.UTC()} }

// IsNull reports whether the scalar holds no value.
func (s Scalar) IsNull() bool { return s.Kind == KindNull }

// String renders the value the way it is displayed and searched. Null
// renders as the empty string.
func (s Scalar) String() string {
	switch s.Kind {
	case KindBool:
		return strconv.FormatBool(s.Bool)
	case KindInt:
		return strconv.FormatInt(s.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(s.Float, 'g', -1, 64)
	case KindDecimal:
		return s.Decimal
	case KindString:
		return s.Str
	case KindTime:
		return s.Time.Format(time.RFC3339)
	default:
		return ""
	}
}

// Native returns the untyped Go value for serialization boundaries that
// want plain JSON-shaped data (nil, bool, int64, float64, string).
func (s Scalar) Native() any {
	switch s.Kind {
	case KindBool:
		return s.Bool
	case KindInt:
		return s.Int
	case KindFloat:
		return s.Float
	case KindDecimal:
		return json.Number(s.Decimal)
	case KindString:
		return s.Str
	case KindTime:
		return s.Time.Format(time.RFC3339)
	default:
		return nil
	}
}

// MarshalJSON writes the natural JSON form of the value: null, boolean,
// number, or string. Timestamps serialize as RFC3339 strings.
func (s Scalar) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, s.Bool), nil
	case KindInt:
		return strconv.AppendInt(nil, s.Int, 10), nil
	case KindFloat:
		return strconv.AppendFloat(nil, s.Float, 'g', -1, 64), nil
	case KindDecimal:
		if !validNumber(s.Decimal) {
			return nil, fmt.Errorf("marshal scalar: %q is not a number", s.Decimal)
		}
		return []byte(s.Decimal), nil
	case KindString:
		return json.Marshal(s.Str)
	case KindTime:
		return json.Marshal(s.Time.Format(time.RFC3339))
	default:
		return nil, fmt.Errorf("marshal scalar: unknown kind %d", s.Kind)
	}
}

// UnmarshalJSON rebuilds a scalar from its JSON form. Integral numbers come
// back as Int; fractional and exponent forms come back as Decimal with the
// exact digits preserved. RFC3339 strings come back as Time.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	t := strings.TrimSpace(string(b))
	switch t {
	case "null":
		*s = NullScalar()
		return nil
	case "true":
		*s = BoolScalar(true)
		return nil
	case "false":
		*s = BoolScalar(false)
		return nil
	}
	if t != "" && (t[0] == '-' || (t[0] >= '0' && t[0] <= '9')) {
		if !strings.ContainsAny(t, ".eE") {
			if n, err := strconv.ParseInt(t, 10, 64); err == nil {
				*s = IntScalar(n)
				return nil
			}
		}
		var num json.Number
		if err := json.Unmarshal(b, &num); err == nil {
			*s = DecimalScalar(num.String())
			return nil
		}
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("unmarshal scalar: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339, str); err == nil {
		*s = TimeScalar(ts)
		return nil
	}
	*s = StringScalar(str)
	return nil
}

// ScalarFromNative rebuilds a Scalar from a decoded JSON or attribute
// value. Unrecognized types fall back to their string rendering.
func ScalarFromNative(v any) Scalar {
	switch x := v.(type) {
	case nil:
		return NullScalar()
	case bool:
		return BoolScalar(x)
	case int64:
		return IntScalar(x)
	case int:
		return IntScalar(int64(x))
	case float64:
		if x == float64(int64(x)) {
			return IntScalar(int64(x))
		}
		return FloatScalar(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return IntScalar(n)
		}
		return DecimalScalar(x.String())
	case string:
		if ts, err := time.Parse(time.RFC3339, x); err == nil {
			return TimeScalar(ts)
		}
		return StringScalar(x)
	default:
		return StringScalar(fmt.Sprintf("%v", x))
	}
}

func validNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
