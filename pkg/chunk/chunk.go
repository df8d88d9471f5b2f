package chunk

import (
	"colstore/pkg/buffer"
	"colstore/pkg/catalog"
	"colstore/pkg/common"
)

// Chunk is the column slice of one fragment: the column descriptor, a
// pinned data buffer and, for variable-length encodings, a pinned
// offset-index buffer.
type Chunk struct {
	Desc  *catalog.ColumnDescriptor
	Data  *buffer.Buffer
	Index *buffer.Buffer
}

// GetChunk pins the buffers of one chunk at the given tier. Fixed-length
// chunks use a single buffer under the bare key; variable-length chunks
// split into data and index sub-buffers.
func GetChunk(cd *catalog.ColumnDescriptor, mgr *buffer.DataManager, key common.ChunkKey,
	level common.MemoryLevel, numBytes, numElems uint64) *Chunk {
	chk := &Chunk{Desc: cd}
	if cd.Type.IsVarlenIndeed() {
		chk.Data = mgr.GetBuffer(key.WithSub(common.SubKeyData), level, numBytes)
		indexBytes := uint64(0)
		if numElems > 0 {
			indexBytes = (numElems + 1) * common.IndexEntrySize
		}
		chk.Index = mgr.GetBuffer(key.WithSub(common.SubKeyIndex), level, indexBytes)
	} else {
		chk.Data = mgr.GetBuffer(key, level, numBytes)
	}
	chk.Data.InitEncoder(cd.Type, numElems)
	return chk
}

// Key returns the chunk's prefix key, shared by all of its buffers.
func (c *Chunk) Key() common.ChunkKey {
	return c.Data.Key().Prefix()
}

// Unpin releases both buffers.
func (c *Chunk) Unpin() {
	if c.Data != nil {
		c.Data.Unpin()
	}
	if c.Index != nil {
		c.Index.Unpin()
	}
}
