package buffer

import (
	"encoding/binary"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"colstore/pkg/common"
)

var (
	bucketChunks = []byte("chunks")
	bucketEpochs = []byte("epochs")
)

// DataManager owns chunk buffers across memory tiers and the disk store
// behind checkpoints. A manager built with an empty dir is memory only;
// Checkpoint is then a no-op.
type DataManager struct {
	mu    sync.Mutex
	pools map[common.MemoryLevel]map[common.ChunkKey]*Buffer
	db    *bolt.DB
}

func NewDataManager(dir string) (*DataManager, error) {
	mgr := &DataManager{
		pools: map[common.MemoryLevel]map[common.ChunkKey]*Buffer{
			common.DiskLevel: make(map[common.ChunkKey]*Buffer),
			common.CPULevel:  make(map[common.ChunkKey]*Buffer),
			common.GPULevel:  make(map[common.ChunkKey]*Buffer),
		},
	}
	if dir != "" {
		db, err := bolt.Open(filepath.Join(dir, "chunks.db"), 0666, nil)
		if err != nil {
			return nil, err
		}
		mgr.db = db
	}
	return mgr, nil
}

func (mgr *DataManager) Close() error {
	if mgr.db != nil {
		return mgr.db.Close()
	}
	return nil
}

// GetBuffer pins the buffer for key at the given level, creating a
// zeroed allocation of numBytes when none exists yet.
func (mgr *DataManager) GetBuffer(key common.ChunkKey, level common.MemoryLevel, numBytes uint64) *Buffer {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	pool := mgr.pools[level]
	buf, ok := pool[key]
	if !ok {
		buf = newBuffer(key, level, numBytes)
		pool[key] = buf
	}
	buf.Pin()
	return buf
}

// Free unpins a buffer and drops it from its pool.
func (mgr *DataManager) Free(buf *Buffer) {
	if buf == nil {
		return
	}
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	buf.Unpin()
	delete(mgr.pools[buf.Level()], buf.Key())
}

// DeleteChunksWithPrefix evicts every buffer of one chunk (all
// sub-buffers) from the given tier.
func (mgr *DataManager) DeleteChunksWithPrefix(prefix common.ChunkKey, level common.MemoryLevel) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	pool := mgr.pools[level]
	for key := range pool {
		if key.MatchPrefix(prefix) {
			delete(pool, key)
		}
	}
}

func encodeChunkKey(key common.ChunkKey) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:], uint32(key.DBID))
	binary.BigEndian.PutUint32(buf[4:], uint32(key.TableID))
	binary.BigEndian.PutUint32(buf[8:], uint32(key.ColumnID))
	binary.BigEndian.PutUint32(buf[12:], uint32(key.FragmentID))
	binary.BigEndian.PutUint32(buf[16:], uint32(key.Sub))
	return buf
}

func encodeEpochKey(dbID, tableID int32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint32(buf[0:], uint32(dbID))
	binary.BigEndian.PutUint32(buf[4:], uint32(tableID))
	return buf
}

// Checkpoint persists every updated CPU-tier buffer of the table and
// bumps the table epoch. The epoch moves even when nothing is dirty so
// that shard epochs stay aligned.
func (mgr *DataManager) Checkpoint(dbID, tableID int32) error {
	if mgr.db == nil {
		return nil
	}
	mgr.mu.Lock()
	dirty := make([]*Buffer, 0)
	for _, buf := range mgr.pools[common.CPULevel] {
		if buf.Key().DBID == dbID && buf.Key().TableID == tableID && buf.IsUpdated() {
			dirty = append(dirty, buf)
		}
	}
	mgr.mu.Unlock()

	err := mgr.db.Update(func(tx *bolt.Tx) error {
		chunks, err := tx.CreateBucketIfNotExists(bucketChunks)
		if err != nil {
			return err
		}
		for _, buf := range dirty {
			if err = chunks.Put(encodeChunkKey(buf.Key()), buf.Bytes()[:buf.Size()]); err != nil {
				return err
			}
		}
		epochs, err := tx.CreateBucketIfNotExists(bucketEpochs)
		if err != nil {
			return err
		}
		ekey := encodeEpochKey(dbID, tableID)
		epoch := uint64(0)
		if raw := epochs.Get(ekey); raw != nil {
			epoch = binary.BigEndian.Uint64(raw)
		}
		eval := make([]byte, 8)
		binary.BigEndian.PutUint64(eval, epoch+1)
		return epochs.Put(ekey, eval)
	})
	if err != nil {
		return err
	}
	for _, buf := range dirty {
		buf.ClearUpdated()
	}
	logrus.Debugf("checkpointed table %d, %d dirty chunks", tableID, len(dirty))
	return nil
}

// TableEpoch reads the persisted epoch of a table, zero when the
// manager is memory only.
func (mgr *DataManager) TableEpoch(dbID, tableID int32) uint64 {
	if mgr.db == nil {
		return 0
	}
	var epoch uint64
	_ = mgr.db.View(func(tx *bolt.Tx) error {
		epochs := tx.Bucket(bucketEpochs)
		if epochs == nil {
			return nil
		}
		if raw := epochs.Get(encodeEpochKey(dbID, tableID)); raw != nil {
			epoch = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return epoch
}
