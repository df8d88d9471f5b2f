package fragmenter

import (
	"sync"

	"github.com/sirupsen/logrus"

	"colstore/pkg/catalog"
	"colstore/pkg/chunk"
	"colstore/pkg/common"
	"colstore/pkg/encoder"
)

// MetaKey addresses the staged state of one fragment in a journal.
type MetaKey struct {
	TableID    int32
	FragmentID int32
}

// UpdateRoll is the per-update journal. Updates and compactions stage
// dirty chunks, shadow chunk metadata and shadow tuple counts into it;
// Commit publishes everything atomically, Cancel discards it. A roll is
// terminated by exactly one of the two and not reusable afterwards.
type UpdateRoll struct {
	mu             sync.Mutex
	catalog        *catalog.Catalog
	logicalTableID int32
	memoryLevel    common.MemoryLevel
	bound          bool
	terminated     bool

	// dirtyChunks holds a strong reference to every touched chunk until
	// the roll terminates; dirtyChunkKeys drives mirror eviction.
	dirtyChunks    map[*chunk.Chunk]struct{}
	dirtyChunkKeys map[common.ChunkKey]struct{}

	chunkMetadata map[MetaKey]map[int32]encoder.ChunkMeta
	numTuples     map[MetaKey]uint64
	fragmenters   map[MetaKey]*Fragmenter
}

func NewUpdateRoll() *UpdateRoll {
	return &UpdateRoll{
		dirtyChunks:    make(map[*chunk.Chunk]struct{}),
		dirtyChunkKeys: make(map[common.ChunkKey]struct{}),
		chunkMetadata:  make(map[MetaKey]map[int32]encoder.ChunkMeta),
		numTuples:      make(map[MetaKey]uint64),
		fragmenters:    make(map[MetaKey]*Fragmenter),
	}
}

// bindLocked records the update identity. The first binding wins; later
// operations through the same roll must agree.
func (roll *UpdateRoll) bindLocked(c *catalog.Catalog, logicalTableID int32, level common.MemoryLevel) error {
	if roll.terminated {
		return ErrJournalMisuse
	}
	if !roll.bound {
		roll.catalog = c
		roll.logicalTableID = logicalTableID
		roll.memoryLevel = level
		roll.bound = true
		return nil
	}
	if roll.catalog != c || roll.logicalTableID != logicalTableID || roll.memoryLevel != level {
		return ErrJournalMisuse
	}
	return nil
}

func (roll *UpdateRoll) ensureDirtyChunkLocked(key common.ChunkKey, chk *chunk.Chunk) {
	roll.dirtyChunks[chk] = struct{}{}
	roll.dirtyChunkKeys[key.Prefix()] = struct{}{}
}

// stageMetaLocked lazy-initializes the shadow state of one fragment from
// its committed metadata and returns the staged map for mutation.
func (roll *UpdateRoll) stageMetaLocked(f *Fragmenter, frag *FragmentInfo) map[int32]encoder.ChunkMeta {
	key := MetaKey{TableID: f.td.TableID, FragmentID: frag.FragmentID}
	staged, ok := roll.chunkMetadata[key]
	if !ok {
		staged = frag.ChunkMetadataMapPhysical()
		roll.chunkMetadata[key] = staged
	}
	if _, ok := roll.numTuples[key]; !ok {
		roll.numTuples[key] = frag.ShadowNumTuples
	}
	roll.fragmenters[key] = f
	return staged
}

// Commit publishes all staged state: checkpoint when the table persists
// to disk, metadata publication per fragment, then, unless the roll is
// bound to the GPU tier, eviction of every dirty chunk's GPU mirror.
func (roll *UpdateRoll) Commit() error {
	roll.mu.Lock()
	defer roll.mu.Unlock()
	if roll.terminated {
		return ErrJournalMisuse
	}
	roll.terminated = true
	if roll.catalog == nil {
		return nil
	}
	td, err := roll.catalog.GetTableByID(roll.logicalTableID)
	if err != nil {
		return err
	}
	// Checkpoint whenever the table persists, dirty or not, so shard
	// epochs stay in sync.
	if td.PersistenceLevel == common.DiskLevel {
		if err := roll.catalog.Checkpoint(roll.logicalTableID); err != nil {
			return err
		}
	}
	for key, f := range roll.fragmenters {
		f.UpdateMetadata(key, roll)
	}
	roll.dirtyChunks = make(map[*chunk.Chunk]struct{})
	if roll.memoryLevel != common.GPULevel {
		mgr := roll.catalog.DataManager()
		for key := range roll.dirtyChunkKeys {
			mgr.DeleteChunksWithPrefix(key, common.GPULevel)
		}
	}
	logrus.Debugf("committed update on table %d, %d fragments", roll.logicalTableID, len(roll.fragmenters))
	return nil
}

// Cancel discards the staged state. When the update ran on a tier other
// than the table's persistence level, the dirty buffers themselves are
// freed so later readers refault clean copies.
func (roll *UpdateRoll) Cancel() error {
	roll.mu.Lock()
	defer roll.mu.Unlock()
	if roll.terminated {
		return ErrJournalMisuse
	}
	roll.terminated = true
	if roll.catalog == nil {
		return nil
	}
	td, err := roll.catalog.GetTableByID(roll.logicalTableID)
	if err != nil {
		return err
	}
	if td.PersistenceLevel != roll.memoryLevel {
		mgr := roll.catalog.DataManager()
		for chk := range roll.dirtyChunks {
			mgr.Free(chk.Data)
			chk.Data = nil
			if chk.Index != nil {
				mgr.Free(chk.Index)
				chk.Index = nil
			}
		}
	}
	roll.dirtyChunks = make(map[*chunk.Chunk]struct{})
	roll.chunkMetadata = make(map[MetaKey]map[int32]encoder.ChunkMeta)
	roll.numTuples = make(map[MetaKey]uint64)
	logrus.Debugf("cancelled update on table %d", roll.logicalTableID)
	return nil
}
