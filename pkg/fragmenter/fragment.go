package fragmenter

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/google/btree"
	"github.com/panjf2000/ants/v2"

	"colstore/pkg/catalog"
	"colstore/pkg/encoder"
)

func cpuThreads() int { return runtime.NumCPU() }

// FragmentInfo describes one row range of a table: its surviving tuple
// count, the committed chunk metadata per column and the staged shadow
// successors installed on commit.
type FragmentInfo struct {
	FragmentID        int32
	physicalNumTuples uint64
	ShadowNumTuples   uint64

	chunkMetadataMap       map[int32]encoder.ChunkMeta
	shadowChunkMetadataMap map[int32]encoder.ChunkMeta
}

func NewFragmentInfo(id int32, numTuples uint64) *FragmentInfo {
	return &FragmentInfo{
		FragmentID:             id,
		physicalNumTuples:      numTuples,
		ShadowNumTuples:        numTuples,
		chunkMetadataMap:       make(map[int32]encoder.ChunkMeta),
		shadowChunkMetadataMap: make(map[int32]encoder.ChunkMeta),
	}
}

func (f *FragmentInfo) GetPhysicalNumTuples() uint64  { return f.physicalNumTuples }
func (f *FragmentInfo) SetPhysicalNumTuples(n uint64) { f.physicalNumTuples = n }

// ChunkMetadataMapPhysical copies the committed per-column metadata.
func (f *FragmentInfo) ChunkMetadataMapPhysical() map[int32]encoder.ChunkMeta {
	return encoder.CopyMetaMap(f.chunkMetadataMap)
}

// GetChunkMeta looks up committed metadata for one column. Absence is a
// caller contract breach.
func (f *FragmentInfo) GetChunkMeta(columnID int32) encoder.ChunkMeta {
	meta, ok := f.chunkMetadataMap[columnID]
	if !ok {
		panic(fmt.Sprintf("missing chunk metadata for column %d in fragment %d", columnID, f.FragmentID))
	}
	return meta
}

// SetChunkMeta installs committed metadata for one column without going
// through a journal. Used when assembling fragments.
func (f *FragmentInfo) SetChunkMeta(columnID int32, meta encoder.ChunkMeta) {
	f.chunkMetadataMap[columnID] = meta
	f.shadowChunkMetadataMap[columnID] = meta
}

func (f *FragmentInfo) Less(than btree.Item) bool {
	return f.FragmentID < than.(*FragmentInfo).FragmentID
}

// Options carries injected fragmenter configuration. UnconditionalVacuum
// makes an update of the delete-marker column trigger an immediate
// compaction; it exists for tests and is off by default.
type Options struct {
	UnconditionalVacuum bool
}

// Fragmenter owns the fragments of one physical table and serializes
// metadata publication. It is C8 of the core plus the drivers C5/C6.
type Fragmenter struct {
	catalog *catalog.Catalog
	td      *catalog.TableDescriptor
	opts    Options

	mu        sync.RWMutex
	fragments *btree.BTree

	// dictMu serializes string dictionary adds across update tasks.
	dictMu sync.Mutex

	pool *ants.Pool
}

func New(c *catalog.Catalog, td *catalog.TableDescriptor, opts Options) (*Fragmenter, error) {
	pool, err := ants.NewPool(cpuThreads())
	if err != nil {
		return nil, err
	}
	return &Fragmenter{
		catalog:   c,
		td:        td,
		opts:      opts,
		fragments: btree.New(8),
		pool:      pool,
	}, nil
}

func (f *Fragmenter) Close() {
	f.pool.Release()
}

func (f *Fragmenter) Table() *catalog.TableDescriptor { return f.td }

func (f *Fragmenter) AddFragment(frag *FragmentInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments.ReplaceOrInsert(frag)
}

// GetFragment resolves a fragment id. A missing fragment is a caller
// contract breach and fails fast.
func (f *Fragmenter) GetFragment(fragmentID int32) *FragmentInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.getFragmentLocked(fragmentID)
}

func (f *Fragmenter) getFragmentLocked(fragmentID int32) *FragmentInfo {
	item := f.fragments.Get(&FragmentInfo{FragmentID: fragmentID})
	if item == nil {
		panic(fmt.Sprintf("fragment %d not found in table %d", fragmentID, f.td.TableID))
	}
	return item.(*FragmentInfo)
}

// UpdateMetadata publishes the staged metadata of one fragment under the
// registry write lock. Nothing else may interleave with publication.
func (f *Fragmenter) UpdateMetadata(key MetaKey, roll *UpdateRoll) {
	f.mu.Lock()
	defer f.mu.Unlock()
	staged, ok := roll.chunkMetadata[key]
	if !ok {
		return
	}
	frag := f.getFragmentLocked(key.FragmentID)
	frag.shadowChunkMetadataMap = encoder.CopyMetaMap(staged)
	frag.chunkMetadataMap = encoder.CopyMetaMap(staged)
	frag.ShadowNumTuples = roll.numTuples[key]
	frag.SetPhysicalNumTuples(frag.ShadowNumTuples)
}
