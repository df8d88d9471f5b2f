package fragmenter

import (
	"encoding/binary"

	"colstore/pkg/chunk"
)

func idxGet(index []byte, i uint64) uint64 {
	return uint64(binary.LittleEndian.Uint32(index[i*4:]))
}

func idxSet(index []byte, i uint64, v uint64) {
	binary.LittleEndian.PutUint32(index[i*4:], uint32(v))
}

// vacuumFixedRows compacts a fixed-width data buffer in place, removing
// the rows named by the sorted offset list. Each surviving run moves
// with a single copy. Returns the surviving byte count.
func vacuumFixedRows(frag *FragmentInfo, chk *chunk.Chunk, offsets []uint64) uint64 {
	colType := chk.Desc.Type
	data := chk.Data.Bytes()
	elementSize := uint64(colType.ElementSize())
	if colType.IsFixlenArray() {
		elementSize = uint64(colType.Size)
	}

	var keepHead, fillHead uint64
	var nbytesKept uint64
	nrowsToVacuum := uint64(len(offsets))
	nrowsInFragment := frag.GetPhysicalNumTuples()
	for irow := uint64(0); irow <= nrowsToVacuum; irow++ {
		rowToVacuum := nrowsInFragment
		if irow < nrowsToVacuum {
			rowToVacuum = offsets[irow]
		}
		if rowToVacuum > keepHead {
			nrowsToKeep := rowToVacuum - keepHead
			nbytesToKeep := nrowsToKeep * elementSize
			if fillHead != keepHead {
				copy(data[fillHead*elementSize:], data[keepHead*elementSize:keepHead*elementSize+nbytesToKeep])
			}
			fillHead += nrowsToKeep
			nbytesKept += nbytesToKeep
		}
		keepHead = rowToVacuum + 1
	}
	return nbytesKept
}

// vacuumVarlenRows compacts a variable-length chunk: the data buffer and
// its offset index move together, and the moved index entries are
// rebased onto their new data positions. The index terminator is written
// last. Returns the surviving data byte count.
func vacuumVarlenRows(frag *FragmentInfo, chk *chunk.Chunk, offsets []uint64) uint64 {
	data := chk.Data.Bytes()
	index := chk.Index.Bytes()

	var keepHead, fillHead uint64
	var nbytesVarKept uint64
	nrowsToVacuum := uint64(len(offsets))
	nrowsInFragment := frag.GetPhysicalNumTuples()
	for irow := uint64(0); irow <= nrowsToVacuum; irow++ {
		isLast := irow == nrowsToVacuum
		rowToVacuum := nrowsInFragment
		if !isLast {
			rowToVacuum = offsets[irow]
		}
		if rowToVacuum > keepHead {
			nrowsToKeep := rowToVacuum - keepHead
			runEnd := uint64(chk.Data.Size())
			if !isLast {
				runEnd = idxGet(index, rowToVacuum)
			}
			runBase := idxGet(index, keepHead)
			nbytesToKeep := runEnd - runBase
			if fillHead != keepHead {
				copy(data[nbytesVarKept:], data[runBase:runBase+nbytesToKeep])
				for i := uint64(0); i < nrowsToKeep; i++ {
					idxSet(index, fillHead+i, nbytesVarKept+(idxGet(index, keepHead+i)-runBase))
				}
			}
			nbytesVarKept += nbytesToKeep
			fillHead += nrowsToKeep
		}
		keepHead = rowToVacuum + 1
	}
	idxSet(index, fillHead, nbytesVarKept)
	return nbytesVarKept
}
