package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadDatum = errors.New("colstore: unparseable datum")

// SecsPerDay converts between day counts and the seconds kept in chunk
// statistics for day-encoded date columns.
const SecsPerDay int64 = 86400

// ScalarKind tags the payload of a ScalarValue.
type ScalarKind int8

const (
	ScalarInt64 ScalarKind = iota
	ScalarDouble
	ScalarFloat
	ScalarString
)

// ScalarValue is the right-hand value of one column update. The string
// payload is nullable; a nil pointer means SQL NULL.
type ScalarValue struct {
	kind ScalarKind
	i    int64
	d    float64
	f    float32
	s    *string
}

func Int64Value(v int64) ScalarValue    { return ScalarValue{kind: ScalarInt64, i: v} }
func DoubleValue(v float64) ScalarValue { return ScalarValue{kind: ScalarDouble, d: v} }
func FloatValue(v float32) ScalarValue  { return ScalarValue{kind: ScalarFloat, f: v} }
func StringValue(s string) ScalarValue  { return ScalarValue{kind: ScalarString, s: &s} }
func NullString() ScalarValue           { return ScalarValue{kind: ScalarString} }

func (v ScalarValue) Kind() ScalarKind { return v.kind }

func (v ScalarValue) AsInt64() (int64, bool) {
	return v.i, v.kind == ScalarInt64
}

func (v ScalarValue) AsDouble() (float64, bool) {
	return v.d, v.kind == ScalarDouble
}

func (v ScalarValue) AsFloat() (float32, bool) {
	return v.f, v.kind == ScalarFloat
}

// AsString returns the string payload. The pointer is nil for SQL NULL.
func (v ScalarValue) AsString() (*string, bool) {
	return v.s, v.kind == ScalarString
}

func (v ScalarValue) String() string {
	switch v.kind {
	case ScalarInt64:
		return strconv.FormatInt(v.i, 10)
	case ScalarDouble:
		return strconv.FormatFloat(v.d, 'g', -1, 64)
	case ScalarFloat:
		return strconv.FormatFloat(float64(v.f), 'g', -1, 32)
	case ScalarString:
		if v.s == nil {
			return "NULL"
		}
		return *v.s
	}
	return "?"
}

var pow10 = [...]int64{
	1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000,
	1000000000, 10000000000, 100000000000, 1000000000000, 10000000000000,
	100000000000000, 1000000000000000, 10000000000000000, 100000000000000000,
	1000000000000000000,
}

// Pow10Int64 returns 10^n for 0 <= n <= 18, saturating above.
func Pow10Int64(n int) int64 {
	if n < 0 {
		return 1
	}
	if n >= len(pow10) {
		return pow10[len(pow10)-1]
	}
	return pow10[n]
}

// DecimalToDouble interprets v as a scaled decimal of type t.
func DecimalToDouble(t TypeInfo, v int64) float64 {
	return float64(v) / float64(Pow10Int64(t.Scale))
}

// ConvertDecimalScale rescales a decimal integer form from one scale to
// another. Widening may wrap on extreme inputs; the callers detect that
// through a sign check against the stored result.
func ConvertDecimalScale(v int64, fromScale, toScale int) int64 {
	if fromScale == toScale {
		return v
	}
	if toScale > fromScale {
		return v * Pow10Int64(toScale-fromScale)
	}
	div := Pow10Int64(fromScale - toScale)
	half := div / 2
	if v >= 0 {
		return (v + half) / div
	}
	return (v - half) / div
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// StringToEpoch parses a time, date or timestamp literal into epoch
// seconds (seconds since midnight for TIME).
func StringToEpoch(s string, t TypeInfo) (int64, error) {
	s = strings.TrimSpace(s)
	switch t.Kind {
	case Time:
		tv, err := time.Parse("15:04:05", s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q as TIME", ErrBadDatum, s)
		}
		return int64(tv.Hour()*3600 + tv.Minute()*60 + tv.Second()), nil
	case Date:
		tv, err := time.Parse("2006-01-02", s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q as DATE", ErrBadDatum, s)
		}
		return tv.Unix(), nil
	case Timestamp:
		for _, layout := range timestampLayouts {
			if tv, err := time.Parse(layout, s); err == nil {
				return tv.Unix(), nil
			}
		}
		return 0, fmt.Errorf("%w: %q as TIMESTAMP", ErrBadDatum, s)
	}
	return 0, fmt.Errorf("%w: %q into %s", ErrBadDatum, s, t.Kind)
}
