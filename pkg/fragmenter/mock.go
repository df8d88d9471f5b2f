package fragmenter

import (
	"encoding/binary"

	"colstore/pkg/chunk"
	"colstore/pkg/common"
	"colstore/pkg/encoder"
	"colstore/pkg/types"
)

// MockFragment registers a fragment of numTuples zeroed rows, one chunk
// per physical column.
func MockFragment(f *Fragmenter, fragmentID int32, numTuples uint64) *FragmentInfo {
	frag := NewFragmentInfo(fragmentID, numTuples)
	for _, cd := range f.catalog.Columns(f.td.TableID) {
		if cd.IsVirtual {
			continue
		}
		var numBytes uint64
		if !cd.Type.IsVarlenIndeed() {
			numBytes = numTuples * uint64(cd.Type.ElementSize())
		}
		key := common.NewChunkKey(f.catalog.CurrentDBID(), f.td.TableID, cd.ColumnID, fragmentID)
		chk := chunk.GetChunk(cd, f.catalog.DataManager(), key, common.CPULevel, numBytes, numTuples)
		frag.SetChunkMeta(cd.ColumnID, encoder.ChunkMeta{
			NumElements: numTuples,
			NumBytes:    uint64(chk.Data.Size()),
		})
		chk.Unpin()
	}
	f.AddFragment(frag)
	return frag
}

// MockChunk pins the chunk of one column for direct buffer setup.
func MockChunk(f *Fragmenter, frag *FragmentInfo, columnID int32) *chunk.Chunk {
	cd, err := f.catalog.GetColumnByID(f.td.TableID, columnID)
	if err != nil {
		panic(err)
	}
	meta := frag.GetChunkMeta(columnID)
	key := common.NewChunkKey(f.catalog.CurrentDBID(), f.td.TableID, columnID, frag.FragmentID)
	return chunk.GetChunk(cd, f.catalog.DataManager(), key, common.CPULevel, meta.NumBytes, meta.NumElements)
}

func refreshMockMeta(frag *FragmentInfo, chk *chunk.Chunk) {
	var meta encoder.ChunkMeta
	chk.Data.Encoder.Metadata(&meta)
	meta.NumBytes = uint64(chk.Data.Size())
	frag.SetChunkMeta(chk.Desc.ColumnID, meta)
}

// MockIntColumn seeds an integer-domain column with vals, folding each
// stored value through the encoder the way ingestion does.
func MockIntColumn(f *Fragmenter, frag *FragmentInfo, columnID int32, vals []int64) *chunk.Chunk {
	chk := MockChunk(f, frag, columnID)
	esize := chk.Desc.Type.ElementSize()
	for i, v := range vals {
		slot := chk.Data.Bytes()[i*esize:]
		if err := types.PutScalarInt64(slot, chk.Desc.Type, v, nil); err != nil {
			panic(err)
		}
		stored, isNull := types.GetScalarInt64(slot, chk.Desc.Type)
		chk.Data.Encoder.UpdateStatsInt64(stored, isNull)
	}
	refreshMockMeta(frag, chk)
	return chk
}

// MockFloatColumn seeds a floating-point column with vals.
func MockFloatColumn(f *Fragmenter, frag *FragmentInfo, columnID int32, vals []float64) *chunk.Chunk {
	chk := MockChunk(f, frag, columnID)
	esize := chk.Desc.Type.ElementSize()
	for i, v := range vals {
		if err := types.PutScalarFloat64(chk.Data.Bytes()[i*esize:], chk.Desc.Type, v); err != nil {
			panic(err)
		}
		chk.Data.Encoder.UpdateStatsFloat64(v, false)
	}
	refreshMockMeta(frag, chk)
	return chk
}

// MockDictColumn seeds a dictionary-encoded string column, adding each
// value to the column's dictionary.
func MockDictColumn(f *Fragmenter, frag *FragmentInfo, columnID int32, vals []string) *chunk.Chunk {
	chk := MockChunk(f, frag, columnID)
	dd, err := f.catalog.GetDictionary(chk.Desc.Type.CompParam)
	if err != nil {
		panic(err)
	}
	for i, s := range vals {
		id := dd.Dict.GetOrAdd(s)
		if err := types.PutScalarInt64(chk.Data.Bytes()[i*4:], chk.Desc.Type, int64(id), nil); err != nil {
			panic(err)
		}
		chk.Data.Encoder.UpdateStatsInt64(int64(id), false)
	}
	refreshMockMeta(frag, chk)
	return chk
}

// MockVarlenData fills a variable-length chunk with the given row
// payloads and rebuilds its offset index, then refreshes the fragment's
// committed metadata entry.
func MockVarlenData(frag *FragmentInfo, chk *chunk.Chunk, rows [][]byte) {
	total := 0
	for _, row := range rows {
		total += len(row)
	}
	chk.Data.Resize(total)
	chk.Index.Resize((len(rows) + 1) * int(common.IndexEntrySize))
	off := 0
	for i, row := range rows {
		copy(chk.Data.Bytes()[off:], row)
		binary.LittleEndian.PutUint32(chk.Index.Bytes()[i*4:], uint32(off))
		off += len(row)
	}
	binary.LittleEndian.PutUint32(chk.Index.Bytes()[len(rows)*4:], uint32(off))
	frag.SetChunkMeta(chk.Desc.ColumnID, encoder.ChunkMeta{
		NumElements: uint64(len(rows)),
		NumBytes:    uint64(total),
	})
}
