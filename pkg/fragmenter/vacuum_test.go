package fragmenter

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"

	"colstore/pkg/types"
)

func fixedVacuumCase(t *testing.T, vals []int64, deletes []uint64) {
	e := initTestEnv(t, Options{})
	cd := e.addColumn(t, "c1", types.TypeInfo{Kind: types.Int}, false)
	frag := MockFragment(e.frgm, 1, uint64(len(vals)))
	chk := MockIntColumn(e.frgm, frag, cd.ColumnID, vals)
	defer chk.Unpin()

	kept := vacuumFixedRows(frag, chk, deletes)

	deleted := roaring.New()
	for _, d := range deletes {
		deleted.Add(uint32(d))
	}
	var want []int64
	for i, v := range vals {
		if !deleted.Contains(uint32(i)) {
			want = append(want, v)
		}
	}
	assert.Equal(t, uint64(len(want)*4), kept)
	for i, w := range want {
		got, _ := types.GetScalarInt64(chk.Data.Bytes()[i*4:], cd.Type)
		assert.Equal(t, w, got)
	}
}

func TestVacuumFixedRuns(t *testing.T) {
	vals := []int64{10, 20, 30, 40, 50}
	// middle, head run, tail run, last row, everything, nothing, single row
	fixedVacuumCase(t, vals, []uint64{1, 3})
	fixedVacuumCase(t, vals, []uint64{0, 1})
	fixedVacuumCase(t, vals, []uint64{3, 4})
	fixedVacuumCase(t, vals, []uint64{4})
	fixedVacuumCase(t, vals, []uint64{0, 1, 2, 3, 4})
	fixedVacuumCase(t, vals, nil)
	fixedVacuumCase(t, []int64{7}, []uint64{0})
}

func TestVacuumFixedRandomized(t *testing.T) {
	rand.Seed(42)
	for round := 0; round < 20; round++ {
		n := 1 + rand.Intn(64)
		vals := make([]int64, n)
		for i := range vals {
			vals[i] = rand.Int63n(1000)
		}
		deleted := roaring.New()
		for i := 0; i < n; i++ {
			if rand.Intn(3) == 0 {
				deleted.Add(uint32(i))
			}
		}
		fixedVacuumCase(t, vals, bitmapToOffsets(deleted))
	}
}

func varlenVacuumCase(t *testing.T, rows []string, deletes []uint64) {
	e := initTestEnv(t, Options{})
	cd := e.addColumn(t, "v1", types.TypeInfo{Kind: types.Text}, false)
	frag := MockFragment(e.frgm, 1, uint64(len(rows)))
	chk := MockChunk(e.frgm, frag, cd.ColumnID)
	defer chk.Unpin()
	payload := make([][]byte, len(rows))
	for i, r := range rows {
		payload[i] = []byte(r)
	}
	MockVarlenData(frag, chk, payload)

	kept := vacuumVarlenRows(frag, chk, deletes)

	deleted := roaring.New()
	for _, d := range deletes {
		deleted.Add(uint32(d))
	}
	var want []string
	for i, r := range rows {
		if !deleted.Contains(uint32(i)) {
			want = append(want, r)
		}
	}
	wantData := ""
	for _, w := range want {
		wantData += w
	}
	assert.Equal(t, uint64(len(wantData)), kept)
	assert.Equal(t, wantData, string(chk.Data.Bytes()[:kept]))

	// the index stays monotonic, rebased and terminated
	index := chk.Index.Bytes()
	prev := uint64(0)
	assert.Equal(t, uint64(0), idxGet(index, 0))
	for i := 1; i <= len(want); i++ {
		cur := idxGet(index, uint64(i))
		assert.True(t, cur >= prev)
		prev = cur
	}
	assert.Equal(t, kept, idxGet(index, uint64(len(want))))
	for i, w := range want {
		lo := idxGet(index, uint64(i))
		hi := idxGet(index, uint64(i+1))
		assert.Equal(t, w, string(chk.Data.Bytes()[lo:hi]))
	}
}

func TestVacuumVarlenRuns(t *testing.T) {
	rows := []string{"aa", "bbb", "cccc"}
	varlenVacuumCase(t, rows, []uint64{1})
	varlenVacuumCase(t, rows, []uint64{0})
	varlenVacuumCase(t, rows, []uint64{2})
	varlenVacuumCase(t, rows, []uint64{0, 1, 2})
	varlenVacuumCase(t, rows, nil)
	varlenVacuumCase(t, []string{"only"}, []uint64{0})
	varlenVacuumCase(t, []string{"", "x", ""}, []uint64{1})
}

func TestVacuumVarlenRandomized(t *testing.T) {
	rand.Seed(7)
	alphabet := "abcdefgh"
	for round := 0; round < 20; round++ {
		n := 1 + rand.Intn(32)
		rows := make([]string, n)
		for i := range rows {
			l := rand.Intn(6)
			row := make([]byte, l)
			for j := range row {
				row[j] = alphabet[rand.Intn(len(alphabet))]
			}
			rows[i] = string(row)
		}
		deleted := roaring.New()
		for i := 0; i < n; i++ {
			if rand.Intn(3) == 0 {
				deleted.Add(uint32(i))
			}
		}
		varlenVacuumCase(t, rows, bitmapToOffsets(deleted))
	}
}

func TestIdxAccessors(t *testing.T) {
	buf := make([]byte, 12)
	idxSet(buf, 1, 77)
	assert.Equal(t, uint64(77), idxGet(buf, 1))
	assert.Equal(t, uint32(77), binary.LittleEndian.Uint32(buf[4:]))
}
