package fragmenter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"colstore/pkg/common"
	"colstore/pkg/types"
)

func TestCompactRows(t *testing.T) {
	e := initTestEnv(t, Options{})
	del := e.addColumn(t, "$deleted$", types.TypeInfo{Kind: types.Boolean}, true)
	c1 := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, 5)
	dchk := MockIntColumn(e.frgm, frag, del.ColumnID, []int64{0, 1, 0, 1, 0})
	defer dchk.Unpin()
	chk := MockIntColumn(e.frgm, frag, c1.ColumnID, []int64{10, 20, 30, 40, 50})
	defer chk.Unpin()

	roll := NewUpdateRoll()
	assert.Nil(t, e.frgm.CompactRows(1, []uint64{1, 3}, common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	assert.Equal(t, uint64(3), frag.GetPhysicalNumTuples())
	assert.Equal(t, uint64(3), frag.ShadowNumTuples)
	assert.Equal(t, []int64{10, 30, 50}, intColumnValues(t, e, frag, c1))

	meta := frag.GetChunkMeta(c1.ColumnID)
	assert.Equal(t, uint64(3), meta.NumElements)
	assert.Equal(t, uint64(12), meta.NumBytes)
	assert.Equal(t, 12, chk.Data.Size())
	assert.True(t, chk.Data.IsUpdated())
}

func TestCompactVarlenRows(t *testing.T) {
	e := initTestEnv(t, Options{})
	vc := e.addColumn(t, "v1", types.TypeInfo{Kind: types.Text}, false)
	frag := MockFragment(e.frgm, 1, 3)
	chk := MockChunk(e.frgm, frag, vc.ColumnID)
	defer chk.Unpin()
	MockVarlenData(frag, chk, [][]byte{[]byte("aa"), []byte("bbb"), []byte("cccc")})

	roll := NewUpdateRoll()
	assert.Nil(t, e.frgm.CompactRows(1, []uint64{1}, common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	assert.Equal(t, uint64(2), frag.GetPhysicalNumTuples())
	assert.Equal(t, "aacccc", string(chk.Data.Bytes()[:chk.Data.Size()]))
	assert.Equal(t, 6, chk.Data.Size())
	assert.Equal(t, 12, chk.Index.Size())
	assert.Equal(t, uint64(0), idxGet(chk.Index.Bytes(), 0))
	assert.Equal(t, uint64(2), idxGet(chk.Index.Bytes(), 1))
	assert.Equal(t, uint64(6), idxGet(chk.Index.Bytes(), 2))

	meta := frag.GetChunkMeta(vc.ColumnID)
	assert.Equal(t, uint64(2), meta.NumElements)
	assert.Equal(t, uint64(6), meta.NumBytes)
}

func TestCompactAllRows(t *testing.T) {
	e := initTestEnv(t, Options{})
	c1 := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	v1 := e.addColumn(t, "v1", types.TypeInfo{Kind: types.Text}, false)
	frag := MockFragment(e.frgm, 1, 3)
	chk := MockIntColumn(e.frgm, frag, c1.ColumnID, []int64{1, 2, 3})
	defer chk.Unpin()
	vchk := MockChunk(e.frgm, frag, v1.ColumnID)
	defer vchk.Unpin()
	MockVarlenData(frag, vchk, [][]byte{[]byte("x"), []byte("yy"), []byte("z")})

	roll := NewUpdateRoll()
	assert.Nil(t, e.frgm.CompactRows(1, []uint64{0, 1, 2}, common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	assert.Equal(t, uint64(0), frag.GetPhysicalNumTuples())
	assert.Equal(t, 0, chk.Data.Size())
	assert.Equal(t, 0, vchk.Data.Size())
	assert.Equal(t, 0, vchk.Index.Size())
	assert.Equal(t, uint64(0), frag.GetChunkMeta(c1.ColumnID).NumElements)
}

func TestCompactRescansFixedStats(t *testing.T) {
	e := initTestEnv(t, Options{})
	c1 := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, 4)
	chk := MockIntColumn(e.frgm, frag, c1.ColumnID, []int64{5, 100, -7, 42})
	defer chk.Unpin()

	roll := NewUpdateRoll()
	assert.Nil(t, e.frgm.CompactRows(1, []uint64{1}, common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	// each surviving row contributes its own bytes to the rescan
	rescanned := newChunkStats()
	rescanChunkStats(chk, 3, &rescanned)
	assert.Equal(t, int64(-7), rescanned.minI64)
	assert.Equal(t, int64(42), rescanned.maxI64)
	meta := frag.GetChunkMeta(c1.ColumnID)
	assert.Equal(t, int64(-7), meta.MinInt64)
	assert.Equal(t, uint64(3), meta.NumElements)
}

func TestUnconditionalVacuumOnDeleteColumn(t *testing.T) {
	e := initTestEnv(t, Options{UnconditionalVacuum: true})
	del := e.addColumn(t, "$deleted$", types.TypeInfo{Kind: types.Boolean}, true)
	c1 := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, 5)
	dchk := MockIntColumn(e.frgm, frag, del.ColumnID, []int64{0, 0, 0, 0, 0})
	defer dchk.Unpin()
	chk := MockIntColumn(e.frgm, frag, c1.ColumnID, []int64{10, 20, 30, 40, 50})
	defer chk.Unpin()

	roll := NewUpdateRoll()
	err := e.frgm.UpdateColumnScalar(del, 1, []uint64{1, 3},
		types.Int64Value(1), types.TypeInfo{Kind: types.TinyInt}, common.CPULevel, roll)
	assert.Nil(t, err)
	assert.Nil(t, roll.Commit())

	assert.Equal(t, uint64(3), frag.GetPhysicalNumTuples())
	assert.Equal(t, []int64{10, 30, 50}, intColumnValues(t, e, frag, c1))
	assert.Equal(t, []int64{0, 0, 0}, intColumnValues(t, e, frag, del))
}

func TestGetVacuumOffsets(t *testing.T) {
	e := initTestEnv(t, Options{})
	del := e.addColumn(t, "$deleted$", types.TypeInfo{Kind: types.Boolean}, true)
	frag := MockFragment(e.frgm, 1, 4)
	dchk := MockIntColumn(e.frgm, frag, del.ColumnID, []int64{1, 0, 0, 1})
	defer dchk.Unpin()

	deleted := e.frgm.GetVacuumOffsets(dchk)
	assert.Equal(t, []uint64{0, 3}, bitmapToOffsets(deleted))
}

func TestCompactKeepsFixlenArrays(t *testing.T) {
	e := initTestEnv(t, Options{})
	ac := e.addColumn(t, "a1", types.TypeInfo{Kind: types.FixedArray, Size: 8, ElemKind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, 3)
	chk := MockChunk(e.frgm, frag, ac.ColumnID)
	defer chk.Unpin()
	for i := 0; i < 3; i++ {
		base := i * 8
		assert.Nil(t, types.PutScalarInt64(chk.Data.Bytes()[base:], types.TypeInfo{Kind: types.Int}, int64(i*10), nil))
		assert.Nil(t, types.PutScalarInt64(chk.Data.Bytes()[base+4:], types.TypeInfo{Kind: types.Int}, int64(i*10+1), nil))
	}

	roll := NewUpdateRoll()
	assert.Nil(t, e.frgm.CompactRows(1, []uint64{0}, common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	assert.Equal(t, uint64(2), frag.GetPhysicalNumTuples())
	v, _ := types.GetScalarInt64(chk.Data.Bytes()[0:], types.TypeInfo{Kind: types.Int})
	assert.Equal(t, int64(10), v)
	v, _ = types.GetScalarInt64(chk.Data.Bytes()[12:], types.TypeInfo{Kind: types.Int})
	assert.Equal(t, int64(21), v)
	meta := frag.GetChunkMeta(ac.ColumnID)
	assert.Equal(t, uint64(2), meta.NumElements)
	assert.Equal(t, uint64(16), meta.NumBytes)
}

func TestRoundTripUpdateThenCompact(t *testing.T) {
	e := initTestEnv(t, Options{})
	del := e.addColumn(t, "$deleted$", types.TypeInfo{Kind: types.Boolean}, true)
	c1 := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, 5)
	dchk := MockIntColumn(e.frgm, frag, del.ColumnID, []int64{0, 0, 0, 0, 0})
	defer dchk.Unpin()
	chk := MockIntColumn(e.frgm, frag, c1.ColumnID, []int64{10, 20, 30, 40, 50})
	defer chk.Unpin()

	roll := NewUpdateRoll()
	err := e.frgm.UpdateColumn(c1, 1, []uint64{0},
		[]types.ScalarValue{types.Int64Value(11)},
		types.TypeInfo{Kind: types.BigInt}, common.CPULevel, roll)
	assert.Nil(t, err)
	err = e.frgm.UpdateColumnScalar(del, 1, []uint64{2, 4},
		types.Int64Value(1), types.TypeInfo{Kind: types.TinyInt}, common.CPULevel, roll)
	assert.Nil(t, err)

	deleted := e.frgm.GetVacuumOffsets(dchk)
	assert.Nil(t, e.frgm.CompactRows(1, bitmapToOffsets(deleted), common.CPULevel, roll))
	assert.Nil(t, roll.Commit())

	// updated row survives, untouched survivors are byte identical
	assert.Equal(t, uint64(3), frag.GetPhysicalNumTuples())
	assert.Equal(t, []int64{11, 20, 40}, intColumnValues(t, e, frag, c1))
	assert.Equal(t, []int64{0, 0, 0}, intColumnValues(t, e, frag, del))
}
