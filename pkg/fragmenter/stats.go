package fragmenter

import "math"

// chunkStats is one task's min/max/has-null accumulator. Initialized to
// the fold identity so that merging an untouched accumulator is a no-op.
type chunkStats struct {
	hasNull bool
	minI64  int64
	maxI64  int64
	minF64  float64
	maxF64  float64
}

func newChunkStats() chunkStats {
	return chunkStats{
		minI64: math.MaxInt64,
		maxI64: math.MinInt64,
		minF64: math.Inf(1),
		maxF64: math.Inf(-1),
	}
}

func (s *chunkStats) observeInt64(v int64) {
	if v < s.minI64 {
		s.minI64 = v
	}
	if v > s.maxI64 {
		s.maxI64 = v
	}
}

func (s *chunkStats) observeFloat64(v float64) {
	if v < s.minF64 {
		s.minF64 = v
	}
	if v > s.maxF64 {
		s.maxF64 = v
	}
}

func (s *chunkStats) observeNull() {
	s.hasNull = true
}

func (s *chunkStats) merge(o chunkStats) {
	if o.minI64 < s.minI64 {
		s.minI64 = o.minI64
	}
	if o.maxI64 > s.maxI64 {
		s.maxI64 = o.maxI64
	}
	if o.minF64 < s.minF64 {
		s.minF64 = o.minF64
	}
	if o.maxF64 > s.maxF64 {
		s.maxF64 = o.maxF64
	}
	s.hasNull = s.hasNull || o.hasNull
}
