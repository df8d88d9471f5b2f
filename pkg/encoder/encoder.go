package encoder

import (
	"math"

	"colstore/pkg/types"
)

// Encoder maintains the element count and statistics of one chunk
// buffer. Updates only widen the min/max range; one numeric sample is
// folded per call.
type Encoder interface {
	UpdateStatsInt64(v int64, hasNull bool)
	UpdateStatsFloat64(v float64, hasNull bool)
	// Metadata fills the stat fields and element count of meta. The byte
	// count is owned by the buffer and left untouched.
	Metadata(meta *ChunkMeta)
	SetNumElems(n uint64)
	NumElems() uint64
}

// NewEncoder picks the encoder for a column type.
func NewEncoder(t types.TypeInfo) Encoder {
	switch {
	case t.IsFixlenArray():
		return NewFixedLengthArrayEncoder(t)
	case t.IsVarlenIndeed():
		return NewNoneEncoder()
	default:
		return NewScalarEncoder()
	}
}

type statHolder struct {
	numElems uint64
	minI64   int64
	maxI64   int64
	minF64   float64
	maxF64   float64
	hasNull  bool
}

func newStatHolder() statHolder {
	return statHolder{
		minI64: math.MaxInt64,
		maxI64: math.MinInt64,
		minF64: math.Inf(1),
		maxF64: math.Inf(-1),
	}
}

func (h *statHolder) updateInt64(v int64, hasNull bool) {
	if v < h.minI64 {
		h.minI64 = v
	}
	if v > h.maxI64 {
		h.maxI64 = v
	}
	h.hasNull = h.hasNull || hasNull
}

func (h *statHolder) updateFloat64(v float64, hasNull bool) {
	if v < h.minF64 {
		h.minF64 = v
	}
	if v > h.maxF64 {
		h.maxF64 = v
	}
	h.hasNull = h.hasNull || hasNull
}

func (h *statHolder) fill(meta *ChunkMeta) {
	meta.NumElements = h.numElems
	meta.MinInt64 = h.minI64
	meta.MaxInt64 = h.maxI64
	meta.MinFloat64 = h.minF64
	meta.MaxFloat64 = h.maxF64
	meta.HasNull = h.hasNull
}

// ScalarEncoder tracks numeric stats for fixed-length scalar columns.
type ScalarEncoder struct {
	statHolder
}

func NewScalarEncoder() *ScalarEncoder {
	return &ScalarEncoder{statHolder: newStatHolder()}
}

func (e *ScalarEncoder) UpdateStatsInt64(v int64, hasNull bool) { e.updateInt64(v, hasNull) }

func (e *ScalarEncoder) UpdateStatsFloat64(v float64, hasNull bool) { e.updateFloat64(v, hasNull) }

func (e *ScalarEncoder) Metadata(meta *ChunkMeta) { e.fill(meta) }
func (e *ScalarEncoder) SetNumElems(n uint64)     { e.numElems = n }
func (e *ScalarEncoder) NumElems() uint64         { return e.numElems }

// NoneEncoder backs variable-length chunks, which carry no numeric
// stats beyond the null flag and element count.
type NoneEncoder struct {
	statHolder
}

func NewNoneEncoder() *NoneEncoder {
	return &NoneEncoder{statHolder: newStatHolder()}
}

func (e *NoneEncoder) UpdateStatsInt64(v int64, hasNull bool) { e.hasNull = e.hasNull || hasNull }

func (e *NoneEncoder) UpdateStatsFloat64(v float64, hasNull bool) { e.hasNull = e.hasNull || hasNull }

func (e *NoneEncoder) Metadata(meta *ChunkMeta) { e.fill(meta) }
func (e *NoneEncoder) SetNumElems(n uint64)     { e.numElems = n }
func (e *NoneEncoder) NumElems() uint64         { return e.numElems }

// FixedLengthArrayEncoder folds stats element-wise from whole rows.
type FixedLengthArrayEncoder struct {
	statHolder
	arrayType types.TypeInfo
	elemType  types.TypeInfo
}

func NewFixedLengthArrayEncoder(t types.TypeInfo) *FixedLengthArrayEncoder {
	return &FixedLengthArrayEncoder{
		statHolder: newStatHolder(),
		arrayType:  t,
		elemType:   types.TypeInfo{Kind: t.ElemKind},
	}
}

func (e *FixedLengthArrayEncoder) UpdateStatsInt64(v int64, hasNull bool) {
	e.updateInt64(v, hasNull)
}

func (e *FixedLengthArrayEncoder) UpdateStatsFloat64(v float64, hasNull bool) {
	e.updateFloat64(v, hasNull)
}

// UpdateMetadata replays one stored row into the stats.
func (e *FixedLengthArrayEncoder) UpdateMetadata(row []byte) {
	esize := e.elemType.ElementSize()
	if esize <= 0 {
		return
	}
	for off := 0; off+esize <= e.arrayType.Size; off += esize {
		if e.elemType.IsFP() {
			v, isNull := types.GetScalarFloat64(row[off:], e.elemType)
			if isNull {
				e.hasNull = true
			} else {
				e.updateFloat64(v, false)
			}
		} else {
			v, isNull := types.GetScalarInt64(row[off:], e.elemType)
			if isNull {
				e.hasNull = true
			} else {
				e.updateInt64(v, false)
			}
		}
	}
}

func (e *FixedLengthArrayEncoder) Metadata(meta *ChunkMeta) { e.fill(meta) }
func (e *FixedLengthArrayEncoder) SetNumElems(n uint64)     { e.numElems = n }
func (e *FixedLengthArrayEncoder) NumElems() uint64         { return e.numElems }
