package fragmenter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"colstore/pkg/catalog"
	"colstore/pkg/dict"
	"colstore/pkg/types"
)

type statKind int8

const (
	statNone statKind = iota
	statInt64
	statDouble
	statNull
)

// coerceResult carries the statistic sample produced by storing one
// right-hand value.
type coerceResult struct {
	kind statKind
	i64  int64
	f64  float64
}

func int64Stat(v int64) coerceResult    { return coerceResult{kind: statInt64, i64: v} }
func doubleStat(v float64) coerceResult { return coerceResult{kind: statDouble, f64: v} }
func nullStat() coerceResult            { return coerceResult{kind: statNull} }

// decimalOverflowValidator bounds the integer form of a decimal value by
// the target's precision.
type decimalOverflowValidator struct {
	isDecimal bool
	upper     int64
	dimension int
	scale     int
}

func newDecimalOverflowValidator(t types.TypeInfo) decimalOverflowValidator {
	if !t.IsDecimal() {
		return decimalOverflowValidator{}
	}
	return decimalOverflowValidator{
		isDecimal: true,
		upper:     types.Pow10Int64(t.Dimension),
		dimension: t.Dimension,
		scale:     t.Scale,
	}
}

func (v decimalOverflowValidator) validate(x int64) error {
	if v.isDecimal && (x >= v.upper || x <= -v.upper) {
		return fmt.Errorf("%w: %d exceeds DECIMAL(%d,%d)", ErrDataConversionOverflow, x, v.dimension, v.scale)
	}
	return nil
}

// coerceCtx is the per-task coercion context: resolved dictionaries, the
// overflow validator and the type pair of one update.
type coerceCtx struct {
	lhs       types.TypeInfo
	rhs       types.TypeInfo
	validator decimalOverflowValidator
	lhsDict   *dict.StringDictionary
	dictMu    *sync.Mutex
	rhsDict   *dict.StringDictionary
}

// newCoerceCtx resolves the dictionaries of a coercion. The target
// dictionary of a shard column lives on the logical table's column.
func (f *Fragmenter) newCoerceCtx(cd *catalog.ColumnDescriptor, rhsType types.TypeInfo) *coerceCtx {
	cx := &coerceCtx{
		lhs:       cd.Type,
		rhs:       rhsType,
		validator: newDecimalOverflowValidator(cd.Type),
		dictMu:    &f.dictMu,
	}
	if cd.Type.IsString() {
		if cd.Type.Compression != types.CompDict {
			panic(fmt.Sprintf("column %s is not dictionary encoded", cd.Name))
		}
		cdl := cd
		if f.td.Shard >= 0 {
			var err error
			cdl, err = f.catalog.GetColumnByID(f.td.LogicalTableID, cd.ColumnID)
			if err != nil {
				panic(fmt.Sprintf("no logical column for shard column %s", cd.Name))
			}
		}
		dd, err := f.catalog.GetDictionary(cdl.Type.CompParam)
		if err != nil {
			panic(fmt.Sprintf("no dictionary %d for column %s", cdl.Type.CompParam, cd.Name))
		}
		cx.lhsDict = dd.Dict
	}
	if rhsType.IsString() {
		if dd, err := f.catalog.GetDictionary(rhsType.CompParam); err == nil {
			cx.rhsDict = dd.Dict
		}
	}
	return cx
}

// apply stores one right-hand value into the slot at dst and returns the
// statistic sample of the stored form.
func (cx *coerceCtx) apply(dst []byte, sv types.ScalarValue) (coerceResult, error) {
	// A string-typed rhs may arrive as a dictionary index. Materialize it
	// through the source dictionary; a plain string literal cannot be
	// resolved at this layer.
	if cx.rhs.IsString() {
		if v, ok := sv.AsInt64(); ok {
			if cx.rhsDict == nil {
				return coerceResult{}, fmt.Errorf("%w: string literal to string column", ErrUnsupportedCast)
			}
			s, found := cx.rhsDict.GetString(int32(v))
			if !found {
				return coerceResult{}, fmt.Errorf("%w: no string for id %d", ErrDictionaryMissing, v)
			}
			sv = types.StringValue(s)
		}
	}

	if v, ok := sv.AsInt64(); ok {
		return cx.applyInt64(dst, v)
	}
	if v, ok := sv.AsDouble(); ok {
		return cx.applyFloat64(dst, v)
	}
	if v, ok := sv.AsFloat(); ok {
		return cx.applyFloat64(dst, float64(v))
	}
	s, _ := sv.AsString()
	return cx.applyString(dst, s)
}

func (cx *coerceCtx) applyInt64(dst []byte, v int64) (coerceResult, error) {
	if cx.lhs.IsString() {
		return coerceResult{}, fmt.Errorf("%w: cast to string", ErrUnsupportedCast)
	}
	if err := cx.validator.validate(v); err != nil {
		return coerceResult{}, err
	}
	if cx.rhs.IsDecimal() && !cx.lhs.IsDecimal() {
		// Non-decimal targets take the decimal's value, not its scaled
		// integer form; integral targets round it.
		d := types.DecimalToDouble(cx.rhs, v)
		if !isIntegral(cx.lhs) {
			return cx.applyFloat64(dst, d)
		}
		v = int64(math.Round(d))
	}
	if err := types.PutScalarInt64(dst, cx.lhs, v, &cx.rhs); err != nil {
		return coerceResult{}, fmt.Errorf("%w: %v", ErrDataConversionOverflow, err)
	}
	switch {
	case cx.lhs.IsDecimal():
		stored, _ := types.GetScalarInt64(dst, cx.lhs)
		// Rescaling may have wrapped or collapsed the sign.
		if (v >= 0) == (stored < 0) {
			return coerceResult{}, fmt.Errorf(
				"%w: on %d from DECIMAL(%d,%d) to (%d,%d)", ErrDataConversionOverflow,
				v, cx.rhs.Dimension, cx.rhs.Scale, cx.lhs.Dimension, cx.lhs.Scale)
		}
		return int64Stat(stored), nil
	case isIntegral(cx.lhs):
		if cx.lhs.IsDateInDays() {
			secs, _ := types.GetScalarInt64(dst, cx.lhs)
			return int64Stat(secs), nil
		}
		return int64Stat(v), nil
	default:
		return doubleStat(float64(v)), nil
	}
}

func (cx *coerceCtx) applyFloat64(dst []byte, v float64) (coerceResult, error) {
	if cx.lhs.IsString() {
		return coerceResult{}, fmt.Errorf("%w: cast to string", ErrUnsupportedCast)
	}
	if err := types.PutScalarFloat64(dst, cx.lhs, v); err != nil {
		return coerceResult{}, fmt.Errorf("%w: %v", ErrDataConversionOverflow, err)
	}
	if cx.lhs.IsDecimal() || isIntegral(cx.lhs) {
		stored, _ := types.GetScalarInt64(dst, cx.lhs)
		return int64Stat(stored), nil
	}
	return doubleStat(v), nil
}

func (cx *coerceCtx) applyString(dst []byte, s *string) (coerceResult, error) {
	if cx.lhs.IsString() {
		if s == nil {
			types.PutNull(dst, cx.lhs)
			return nullStat(), nil
		}
		cx.dictMu.Lock()
		sidx := cx.lhsDict.GetOrAdd(*s)
		cx.dictMu.Unlock()
		if err := types.PutScalarInt64(dst, cx.lhs, int64(sidx), nil); err != nil {
			return coerceResult{}, fmt.Errorf("%w: %v", ErrDataConversionOverflow, err)
		}
		return int64Stat(int64(sidx)), nil
	}

	sval := ""
	if s != nil {
		sval = *s
	}
	if len(sval) == 0 {
		// An empty string into a non-string column stores NULL.
		types.PutNull(dst, cx.lhs)
		return nullStat(), nil
	}

	var dval float64
	switch {
	case cx.lhs.IsBoolean():
		lower := strings.ToLower(sval)
		if lower == "t" || lower == "true" {
			dval = 1
		}
	case cx.lhs.IsTime():
		secs, err := types.StringToEpoch(sval, cx.lhs)
		if err != nil {
			return coerceResult{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		dval = float64(secs)
	default:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(sval), 64)
		if err != nil {
			return coerceResult{}, fmt.Errorf("%w: %q into %s", ErrInvalidValue, sval, cx.lhs.Kind)
		}
		dval = parsed
	}

	if cx.lhs.IsFP() || cx.lhs.IsDecimal() {
		if err := types.PutScalarFloat64(dst, cx.lhs, dval); err != nil {
			return coerceResult{}, fmt.Errorf("%w: %v", ErrDataConversionOverflow, err)
		}
		if cx.lhs.IsDecimal() {
			stored, _ := types.GetScalarInt64(dst, cx.lhs)
			return int64Stat(stored), nil
		}
		return doubleStat(dval), nil
	}
	if err := types.PutScalarInt64(dst, cx.lhs, int64(dval), nil); err != nil {
		return coerceResult{}, fmt.Errorf("%w: %v", ErrDataConversionOverflow, err)
	}
	if cx.lhs.IsDateInDays() {
		secs, _ := types.GetScalarInt64(dst, cx.lhs)
		return int64Stat(secs), nil
	}
	return int64Stat(int64(dval)), nil
}

// isIntegral groups the types whose statistics live in the int64 domain
// even though their stored widths differ.
func isIntegral(t types.TypeInfo) bool {
	return t.IsInteger() || t.IsBoolean() || t.IsTime() || t.IsTimeInterval()
}
