package types

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var ErrOutOfRange = errors.New("colstore: scalar value out of range")

// Null sentinels, one per storage width. Floating point nulls use the
// smallest positive normal value so that NaN stays representable.
const (
	NullBoolean  = int8(math.MinInt8)
	NullTinyInt  = int8(math.MinInt8)
	NullSmallInt = int16(math.MinInt16)
	NullInt      = int32(math.MinInt32)
	NullBigInt   = int64(math.MinInt64)
	NullFloat    = float32(1.1754943508222875e-38)
	NullDouble   = float64(2.2250738585072014e-308)
)

func floorDiv(v, q int64) int64 {
	d := v / q
	if v%q != 0 && (v < 0) != (q < 0) {
		d--
	}
	return d
}

func putInt(dst []byte, width int, v int64) error {
	switch width {
	case 1:
		if v < math.MinInt8 || v > math.MaxInt8 {
			return fmt.Errorf("%w: %d into 1 byte", ErrOutOfRange, v)
		}
		dst[0] = byte(int8(v))
	case 2:
		if v < math.MinInt16 || v > math.MaxInt16 {
			return fmt.Errorf("%w: %d into 2 bytes", ErrOutOfRange, v)
		}
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case 4:
		if v < math.MinInt32 || v > math.MaxInt32 {
			return fmt.Errorf("%w: %d into 4 bytes", ErrOutOfRange, v)
		}
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	case 8:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	default:
		return fmt.Errorf("%w: unsupported width %d", ErrOutOfRange, width)
	}
	return nil
}

func getInt(src []byte, width int) int64 {
	switch width {
	case 1:
		return int64(int8(src[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(src)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(src)))
	case 8:
		return int64(binary.LittleEndian.Uint64(src))
	}
	panic("not expected")
}

// PutScalarInt64 stores an integer-domain value into one slot of type t.
// For decimal targets the value is rescaled from the rhs scale; rescaling
// may wrap, which callers detect with a sign check on the stored form.
func PutScalarInt64(dst []byte, t TypeInfo, v int64, rhs *TypeInfo) error {
	switch {
	case t.IsDecimal():
		fromScale := 0
		if rhs != nil && rhs.IsDecimal() {
			fromScale = rhs.Scale
		}
		return putInt(dst, 8, ConvertDecimalScale(v, fromScale, t.Scale))
	case t.IsBoolean():
		if v != 0 {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
		return nil
	case t.IsDateInDays():
		return putInt(dst, 4, floorDiv(v, SecsPerDay))
	case t.IsString() && t.Compression == CompDict:
		return putInt(dst, 4, v)
	case t.IsInteger() || t.IsTime() || t.IsTimeInterval():
		return putInt(dst, t.ElementSize(), v)
	case t.Kind == Float:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return nil
	case t.Kind == Double:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(float64(v)))
		return nil
	}
	return fmt.Errorf("%w: int64 into %s", ErrOutOfRange, t.Kind)
}

// PutScalarFloat64 stores a floating-domain value into one slot of type t.
func PutScalarFloat64(dst []byte, t TypeInfo, v float64) error {
	switch {
	case t.Kind == Float:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
		return nil
	case t.Kind == Double:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
		return nil
	case t.IsDecimal():
		scaled := v * float64(Pow10Int64(t.Scale))
		if scaled >= float64(math.MaxInt64) || scaled <= float64(math.MinInt64) {
			return fmt.Errorf("%w: %g into DECIMAL(%d,%d)", ErrOutOfRange, v, t.Dimension, t.Scale)
		}
		return putInt(dst, 8, int64(math.Round(scaled)))
	default:
		return PutScalarInt64(dst, t, int64(math.Round(v)), nil)
	}
}

// PutNull stores the null sentinel for type t.
func PutNull(dst []byte, t TypeInfo) {
	switch {
	case t.Kind == Float:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(NullFloat))
	case t.Kind == Double:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(NullDouble))
	default:
		switch t.ElementSize() {
		case 1:
			v := NullTinyInt
			dst[0] = byte(v)
		case 2:
			v := NullSmallInt
			binary.LittleEndian.PutUint16(dst, uint16(v))
		case 4:
			v := NullInt
			binary.LittleEndian.PutUint32(dst, uint32(v))
		case 8:
			v := NullBigInt
			binary.LittleEndian.PutUint64(dst, uint64(v))
		default:
			panic("not expected")
		}
	}
}

// GetScalarInt64 reads one integer-domain slot of type t. Day-encoded
// dates come back in seconds, decimals in their stored scaled form.
func GetScalarInt64(src []byte, t TypeInfo) (v int64, isNull bool) {
	if t.IsDateInDays() {
		days := getInt(src, 4)
		if days == int64(NullInt) {
			return 0, true
		}
		return days * SecsPerDay, false
	}
	width := t.ElementSize()
	v = getInt(src, width)
	switch width {
	case 1:
		isNull = v == int64(NullTinyInt)
	case 2:
		isNull = v == int64(NullSmallInt)
	case 4:
		isNull = v == int64(NullInt)
	case 8:
		isNull = v == NullBigInt
	}
	if isNull {
		v = 0
	}
	return v, isNull
}

// GetScalarFloat64 reads one floating-point slot of type t.
func GetScalarFloat64(src []byte, t TypeInfo) (v float64, isNull bool) {
	if t.Kind == Float {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src))
		if f == NullFloat {
			return 0, true
		}
		return float64(f), false
	}
	d := math.Float64frombits(binary.LittleEndian.Uint64(src))
	if d == NullDouble {
		return 0, true
	}
	return d, false
}
