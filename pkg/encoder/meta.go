package encoder

// ChunkMeta summarizes one chunk. Min and max are kept in the widest
// domain appropriate to the column: the int64 pair for integer, boolean,
// time, date, decimal and dictionary-encoded string columns, the float64
// pair for floating-point columns. Day-encoded date columns keep their
// stats in seconds.
type ChunkMeta struct {
	NumElements uint64
	NumBytes    uint64
	MinInt64    int64
	MaxInt64    int64
	MinFloat64  float64
	MaxFloat64  float64
	HasNull     bool
}

// CopyMetaMap deep-copies a column-id keyed metadata map.
func CopyMetaMap(m map[int32]ChunkMeta) map[int32]ChunkMeta {
	c := make(map[int32]ChunkMeta, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
