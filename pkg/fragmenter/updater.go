package fragmenter

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/sirupsen/logrus"

	"colstore/pkg/catalog"
	"colstore/pkg/chunk"
	"colstore/pkg/common"
	"colstore/pkg/types"
)

func checkOffsets(offsets []uint64, numTuples uint64) {
	for i, off := range offsets {
		if off >= numTuples {
			panic(fmt.Sprintf("row offset %d outside fragment of %d tuples", off, numTuples))
		}
		if i > 0 && offsets[i-1] >= off {
			panic("row offsets not strictly increasing")
		}
	}
}

// UpdateColumnByName resolves the table and column through the catalog
// and applies the update.
func (f *Fragmenter) UpdateColumnByName(tabName, colName string, fragmentID int32,
	offsets []uint64, rhsValues []types.ScalarValue, rhsType types.TypeInfo,
	level common.MemoryLevel, roll *UpdateRoll) error {
	td, err := f.catalog.GetTable(tabName)
	if err != nil {
		return err
	}
	if td.TableID != f.td.TableID {
		panic(fmt.Sprintf("table %s does not belong to this fragmenter", tabName))
	}
	cd, err := f.catalog.GetColumn(td.TableID, colName)
	if err != nil {
		return err
	}
	return f.UpdateColumn(cd, fragmentID, offsets, rhsValues, rhsType, level, roll)
}

// UpdateColumnScalar broadcasts one right-hand value over all offsets.
func (f *Fragmenter) UpdateColumnScalar(cd *catalog.ColumnDescriptor, fragmentID int32,
	offsets []uint64, rhsValue types.ScalarValue, rhsType types.TypeInfo,
	level common.MemoryLevel, roll *UpdateRoll) error {
	return f.UpdateColumn(cd, fragmentID, offsets, []types.ScalarValue{rhsValue}, rhsType, level, roll)
}

// UpdateColumn applies rhsValues at the given row offsets of one column
// chunk, re-encoding per the column type and staging the dirty chunk and
// its shadow metadata into the journal. Offsets are strictly increasing;
// rhsValues carries either one value per offset or a single broadcast
// value.
func (f *Fragmenter) UpdateColumn(cd *catalog.ColumnDescriptor, fragmentID int32,
	offsets []uint64, rhsValues []types.ScalarValue, rhsType types.TypeInfo,
	level common.MemoryLevel, roll *UpdateRoll) error {
	nrow := uint64(len(offsets))
	if nrow == 0 {
		return nil
	}
	nRhs := uint64(len(rhsValues))
	if nRhs != nrow && nRhs != 1 {
		panic(fmt.Sprintf("%d rhs values for %d offsets", nRhs, nrow))
	}

	roll.mu.Lock()
	err := roll.bindLocked(f.catalog, f.catalog.GetLogicalTableID(f.td.TableID), level)
	roll.mu.Unlock()
	if err != nil {
		return err
	}

	frag := f.GetFragment(fragmentID)
	checkOffsets(offsets, frag.GetPhysicalNumTuples())
	meta := frag.GetChunkMeta(cd.ColumnID)
	key := common.NewChunkKey(f.catalog.CurrentDBID(), f.td.TableID, cd.ColumnID, fragmentID)
	chk := chunk.GetChunk(cd, f.catalog.DataManager(), key, common.CPULevel, meta.NumBytes, meta.NumElements)

	chk.Data.SetUpdated()
	roll.mu.Lock()
	roll.ensureDirtyChunkLocked(key, chk)
	roll.mu.Unlock()

	cx := f.newCoerceCtx(cd, rhsType)
	if cd.Type.IsVarlenIndeed() {
		panic(fmt.Sprintf("in-place update of variable-length column %s", cd.Name))
	}
	elementSize := uint64(cd.Type.ElementSize())
	data := chk.Data.Bytes()

	ncore := uint64(cpuThreads())
	segsz := (nrow + ncore - 1) / ncore
	ntasks := (nrow + segsz - 1) / segsz
	statsPerTask := make([]chunkStats, ntasks)
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var firstErr error

	for c, rbegin := uint64(0), uint64(0); rbegin < nrow; c, rbegin = c+1, rbegin+segsz {
		statsPerTask[c] = newChunkStats()
		stats := &statsPerTask[c]
		rend := rbegin + segsz
		if rend > nrow {
			rend = nrow
		}
		seg := offsets[rbegin:rend]
		segVals := rhsValues
		if nRhs != 1 {
			segVals = rhsValues[rbegin:rend]
		}
		wg.Add(1)
		task := func() {
			defer wg.Done()
			for i, roffs := range seg {
				sv := segVals[0]
				if nRhs != 1 {
					sv = segVals[i]
				}
				res, err := cx.apply(data[roffs*elementSize:(roffs+1)*elementSize], sv)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					return
				}
				switch res.kind {
				case statInt64:
					stats.observeInt64(res.i64)
				case statDouble:
					stats.observeFloat64(res.f64)
				case statNull:
					stats.observeNull()
				}
			}
		}
		if err := f.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	if firstErr != nil {
		return fmt.Errorf("update failed: %w", firstErr)
	}

	if f.opts.UnconditionalVacuum && cd.IsDeletedCol {
		deleted := f.GetVacuumOffsets(chk)
		if deleted.GetCardinality() > 0 {
			return f.CompactRows(fragmentID, bitmapToOffsets(deleted), level, roll)
		}
	}

	folded := newChunkStats()
	for i := range statsPerTask {
		folded.merge(statsPerTask[i])
	}
	logrus.Debugf("updated %d rows of column %s in fragment %d", nrow, cd.Name, fragmentID)
	f.updateColumnMetadata(cd, frag, chk, folded, roll)
	return nil
}

// GetVacuumOffsets scans a delete-marker chunk and returns the offsets
// of rows flagged for removal.
func (f *Fragmenter) GetVacuumOffsets(chk *chunk.Chunk) *roaring.Bitmap {
	deleted := roaring.New()
	data := chk.Data.Bytes()[:chk.Data.Size()]
	for r, marked := range data {
		if marked != 0 {
			deleted.Add(uint32(r))
		}
	}
	return deleted
}

func bitmapToOffsets(bm *roaring.Bitmap) []uint64 {
	offsets := make([]uint64, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		offsets = append(offsets, uint64(it.Next()))
	}
	return offsets
}

// updateColumnMetadata folds the reduced stats into the chunk's encoder
// and stages the refreshed metadata entry. The encoder takes one numeric
// sample per call, so min and max are pushed separately. Decimal stats
// arrive in the stored scaled-integer form regardless of the rhs kind.
func (f *Fragmenter) updateColumnMetadata(cd *catalog.ColumnDescriptor, frag *FragmentInfo,
	chk *chunk.Chunk, stats chunkStats, roll *UpdateRoll) {
	roll.mu.Lock()
	defer roll.mu.Unlock()
	staged := roll.stageMetaLocked(f, frag)

	enc := chk.Data.Encoder
	lhs := cd.Type
	switch {
	case isIntegral(lhs) || lhs.IsDecimal():
		enc.UpdateStatsInt64(stats.maxI64, stats.hasNull)
		enc.UpdateStatsInt64(stats.minI64, stats.hasNull)
	case lhs.IsFP():
		enc.UpdateStatsFloat64(stats.maxF64, stats.hasNull)
		enc.UpdateStatsFloat64(stats.minF64, stats.hasNull)
	case !lhs.IsArray() && !lhs.IsGeometry() && !(lhs.IsString() && lhs.Compression != types.CompDict):
		enc.UpdateStatsInt64(stats.maxI64, stats.hasNull)
		enc.UpdateStatsInt64(stats.minI64, stats.hasNull)
	}

	meta := staged[cd.ColumnID]
	enc.Metadata(&meta)
	meta.NumBytes = uint64(chk.Data.Size())
	staged[cd.ColumnID] = meta
}
