package buffer

import (
	"sync/atomic"

	"colstore/pkg/common"
	"colstore/pkg/encoder"
	"colstore/pkg/types"
)

// Buffer is one pinned chunk buffer. The byte slice is mutated in place
// by exactly one writer at a time; the logical size may be smaller than
// the allocation after a vacuum.
type Buffer struct {
	key     common.ChunkKey
	level   common.MemoryLevel
	data    []byte
	size    int
	updated bool
	pins    int32

	// Encoder is attached once per buffer, on first pin through a chunk.
	Encoder encoder.Encoder
}

func newBuffer(key common.ChunkKey, level common.MemoryLevel, numBytes uint64) *Buffer {
	return &Buffer{
		key:   key,
		level: level,
		data:  make([]byte, numBytes),
		size:  int(numBytes),
	}
}

func (b *Buffer) Key() common.ChunkKey      { return b.key }
func (b *Buffer) Level() common.MemoryLevel { return b.level }

// Bytes exposes the full allocation. Callers slice it by the logical
// size where that matters.
func (b *Buffer) Bytes() []byte { return b.data }

func (b *Buffer) Size() int     { return b.size }
func (b *Buffer) SetSize(n int) { b.size = n }

// Resize grows or shrinks the allocation, keeping the prefix.
func (b *Buffer) Resize(n int) {
	if n <= cap(b.data) {
		b.data = b.data[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, b.data)
		b.data = grown
	}
	b.size = n
}

// Write copies p at byte offset off, growing the allocation if needed.
func (b *Buffer) Write(off int, p []byte) {
	if off+len(p) > len(b.data) {
		b.Resize(off + len(p))
	}
	copy(b.data[off:], p)
	if off+len(p) > b.size {
		b.size = off + len(p)
	}
}

func (b *Buffer) SetUpdated()     { b.updated = true }
func (b *Buffer) ClearUpdated()   { b.updated = false }
func (b *Buffer) IsUpdated() bool { return b.updated }
func (b *Buffer) Pin()            { atomic.AddInt32(&b.pins, 1) }
func (b *Buffer) Unpin()          { atomic.AddInt32(&b.pins, -1) }
func (b *Buffer) PinCount() int32 { return atomic.LoadInt32(&b.pins) }

// InitEncoder attaches the encoder for a column type if none is bound
// yet and seeds its element count.
func (b *Buffer) InitEncoder(t types.TypeInfo, numElems uint64) {
	if b.Encoder == nil {
		b.Encoder = encoder.NewEncoder(t)
		b.Encoder.SetNumElems(numElems)
	}
}
