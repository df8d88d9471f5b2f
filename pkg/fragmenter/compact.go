package fragmenter

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"colstore/pkg/chunk"
	"colstore/pkg/common"
	"colstore/pkg/encoder"
	"colstore/pkg/types"
)

func (f *Fragmenter) getChunksForAllColumns(frag *FragmentInfo, level common.MemoryLevel) []*chunk.Chunk {
	var chunks []*chunk.Chunk
	for _, cd := range f.catalog.Columns(f.td.TableID) {
		if cd.IsVirtual {
			continue
		}
		meta := frag.GetChunkMeta(cd.ColumnID)
		key := common.NewChunkKey(f.catalog.CurrentDBID(), f.td.TableID, cd.ColumnID, frag.FragmentID)
		chunks = append(chunks, chunk.GetChunk(cd, f.catalog.DataManager(), key, level, meta.NumBytes, meta.NumElements))
	}
	return chunks
}

// setChunkMetadata stages the compacted element and byte counts of one
// chunk and records it dirty.
func (f *Fragmenter) setChunkMetadata(frag *FragmentInfo, chk *chunk.Chunk, nrowsToKeep uint64, roll *UpdateRoll) {
	roll.mu.Lock()
	defer roll.mu.Unlock()
	staged := roll.stageMetaLocked(f, frag)
	meta := staged[chk.Desc.ColumnID]
	meta.NumElements = nrowsToKeep
	meta.NumBytes = uint64(chk.Data.Size())
	staged[chk.Desc.ColumnID] = meta
	roll.ensureDirtyChunkLocked(chk.Key(), chk)
}

// rescanChunkStats recomputes min/max/has-null from the compacted rows
// of a fixed-length chunk. Fixed-length arrays replay the array encoder
// instead of folding into the accumulator.
func rescanChunkStats(chk *chunk.Chunk, nrowsToKeep uint64, stats *chunkStats) {
	colType := chk.Desc.Type
	elementSize := uint64(colType.ElementSize())
	if colType.IsFixlenArray() {
		elementSize = uint64(colType.Size)
	}
	canBeNull := !colType.NotNull
	data := chk.Data.Bytes()
	for irow := uint64(0); irow < nrowsToKeep; irow++ {
		row := data[irow*elementSize : (irow+1)*elementSize]
		switch {
		case colType.IsFixlenArray():
			fae, ok := chk.Data.Encoder.(*encoder.FixedLengthArrayEncoder)
			if !ok {
				panic(fmt.Sprintf("column %s has no fixed-length array encoder", chk.Desc.Name))
			}
			fae.UpdateMetadata(row)
		case colType.IsFP():
			v, isNull := types.GetScalarFloat64(row, colType)
			if isNull {
				if canBeNull {
					stats.observeNull()
				}
			} else {
				stats.observeFloat64(v)
			}
		default:
			v, isNull := types.GetScalarInt64(row, colType)
			if isNull {
				if canBeNull {
					stats.observeNull()
				}
			} else {
				stats.observeInt64(v)
			}
		}
	}
}

// CompactRows physically removes the rows named by the sorted offset
// list from every physical column of one fragment, staging the
// compacted chunks and refreshed metadata into the journal.
func (f *Fragmenter) CompactRows(fragmentID int32, offsets []uint64,
	level common.MemoryLevel, roll *UpdateRoll) error {
	if len(offsets) == 0 {
		return nil
	}

	roll.mu.Lock()
	err := roll.bindLocked(f.catalog, f.catalog.GetLogicalTableID(f.td.TableID), level)
	roll.mu.Unlock()
	if err != nil {
		return err
	}

	frag := f.GetFragment(fragmentID)
	checkOffsets(offsets, frag.GetPhysicalNumTuples())
	chunks := f.getChunksForAllColumns(frag, level)
	nrowsToKeep := frag.GetPhysicalNumTuples() - uint64(len(offsets))

	statsPerColumn := make([]chunkStats, len(chunks))
	var wg sync.WaitGroup
	for ci := range chunks {
		chk := chunks[ci]
		statsPerColumn[ci] = newChunkStats()
		stats := &statsPerColumn[ci]

		var task func()
		if chk.Desc.Type.IsVarlenIndeed() {
			task = func() {
				defer wg.Done()
				nbytes := vacuumVarlenRows(frag, chk, offsets)
				chk.Data.Encoder.SetNumElems(nrowsToKeep)
				chk.Data.SetSize(int(nbytes))
				chk.Data.SetUpdated()
				indexSize := 0
				if nrowsToKeep > 0 {
					indexSize = int((nrowsToKeep + 1) * common.IndexEntrySize)
				}
				chk.Index.SetSize(indexSize)
				chk.Index.SetUpdated()
				f.setChunkMetadata(frag, chk, nrowsToKeep, roll)
			}
		} else {
			task = func() {
				defer wg.Done()
				nbytes := vacuumFixedRows(frag, chk, offsets)
				chk.Data.Encoder.SetNumElems(nrowsToKeep)
				chk.Data.SetSize(int(nbytes))
				chk.Data.SetUpdated()
				f.setChunkMetadata(frag, chk, nrowsToKeep, roll)
				rescanChunkStats(chk, nrowsToKeep, stats)
			}
		}
		wg.Add(1)
		if err := f.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	key := MetaKey{TableID: f.td.TableID, FragmentID: fragmentID}
	roll.mu.Lock()
	roll.stageMetaLocked(f, frag)
	roll.numTuples[key] = nrowsToKeep
	roll.mu.Unlock()

	for ci, chk := range chunks {
		if !chk.Desc.Type.IsFixlenArray() {
			f.updateColumnMetadata(chk.Desc, frag, chk, statsPerColumn[ci], roll)
		}
	}
	logrus.Debugf("compacted fragment %d, %d rows removed, %d kept", fragmentID, len(offsets), nrowsToKeep)
	return nil
}
