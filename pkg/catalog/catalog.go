package catalog

import (
	"sync"

	"colstore/pkg/buffer"
	"colstore/pkg/common"
	"colstore/pkg/dict"
	"colstore/pkg/types"
)

// Catalog resolves table, column and dictionary descriptors and owns the
// data manager handle. Descriptors are registered up front and read-only
// afterwards; the lock covers registration against lookups.
type Catalog struct {
	*sync.RWMutex
	dbID    int32
	dataMgr *buffer.DataManager

	tables    map[int32]*TableDescriptor
	names     map[string]int32
	columns   map[int32][]*ColumnDescriptor
	colByName map[int32]map[string]*ColumnDescriptor
	dicts     map[int]*DictDescriptor

	nextTable  int32
	nextDictID int
}

func New(dbID int32, dataMgr *buffer.DataManager) *Catalog {
	return &Catalog{
		RWMutex:   new(sync.RWMutex),
		dbID:      dbID,
		dataMgr:   dataMgr,
		tables:    make(map[int32]*TableDescriptor),
		names:     make(map[string]int32),
		columns:   make(map[int32][]*ColumnDescriptor),
		colByName: make(map[int32]map[string]*ColumnDescriptor),
		dicts:     make(map[int]*DictDescriptor),
		nextTable: 1,
	}
}

func (c *Catalog) CurrentDBID() int32 { return c.dbID }

func (c *Catalog) DataManager() *buffer.DataManager { return c.dataMgr }

// AddTable registers a table and returns its descriptor. A non-sharded
// table is its own logical table.
func (c *Catalog) AddTable(name string, persistence common.MemoryLevel) (*TableDescriptor, error) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.names[name]; ok {
		return nil, ErrDuplicate
	}
	td := &TableDescriptor{
		TableID:          c.nextTable,
		Name:             name,
		LogicalTableID:   c.nextTable,
		Shard:            -1,
		PersistenceLevel: persistence,
	}
	c.nextTable++
	c.tables[td.TableID] = td
	c.names[name] = td.TableID
	c.colByName[td.TableID] = make(map[string]*ColumnDescriptor)
	return td, nil
}

// AddShard registers a physical shard of a logical table.
func (c *Catalog) AddShard(logical *TableDescriptor, name string, shard int32) (*TableDescriptor, error) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.names[name]; ok {
		return nil, ErrDuplicate
	}
	td := &TableDescriptor{
		TableID:          c.nextTable,
		Name:             name,
		LogicalTableID:   logical.TableID,
		Shard:            shard,
		PersistenceLevel: logical.PersistenceLevel,
	}
	c.nextTable++
	c.tables[td.TableID] = td
	c.names[name] = td.TableID
	c.colByName[td.TableID] = make(map[string]*ColumnDescriptor)
	return td, nil
}

// AddColumn appends a column to a table. Column ids are dense from 1 in
// registration order.
func (c *Catalog) AddColumn(tableID int32, name string, t types.TypeInfo, deleted bool) (*ColumnDescriptor, error) {
	c.Lock()
	defer c.Unlock()
	if _, ok := c.tables[tableID]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := c.colByName[tableID][name]; ok {
		return nil, ErrDuplicate
	}
	cd := &ColumnDescriptor{
		TableID:      tableID,
		ColumnID:     int32(len(c.columns[tableID]) + 1),
		Name:         name,
		Type:         t,
		IsDeletedCol: deleted,
	}
	c.columns[tableID] = append(c.columns[tableID], cd)
	c.colByName[tableID][name] = cd
	return cd, nil
}

// AddDictionary registers a string dictionary and returns its
// descriptor. The returned DictID is the comp param for dict-encoded
// string column types.
func (c *Catalog) AddDictionary() *DictDescriptor {
	c.Lock()
	defer c.Unlock()
	c.nextDictID++
	dd := &DictDescriptor{
		DictID: c.nextDictID,
		Dict:   dict.NewStringDictionary(),
	}
	c.dicts[dd.DictID] = dd
	return dd
}

func (c *Catalog) GetTable(name string) (*TableDescriptor, error) {
	c.RLock()
	defer c.RUnlock()
	id, ok := c.names[name]
	if !ok {
		return nil, ErrNotFound
	}
	return c.tables[id], nil
}

func (c *Catalog) GetTableByID(id int32) (*TableDescriptor, error) {
	c.RLock()
	defer c.RUnlock()
	td, ok := c.tables[id]
	if !ok {
		return nil, ErrNotFound
	}
	return td, nil
}

func (c *Catalog) GetColumn(tableID int32, name string) (*ColumnDescriptor, error) {
	c.RLock()
	defer c.RUnlock()
	cols, ok := c.colByName[tableID]
	if !ok {
		return nil, ErrNotFound
	}
	cd, ok := cols[name]
	if !ok {
		return nil, ErrNotFound
	}
	return cd, nil
}

func (c *Catalog) GetColumnByID(tableID, columnID int32) (*ColumnDescriptor, error) {
	c.RLock()
	defer c.RUnlock()
	cols := c.columns[tableID]
	if columnID < 1 || int(columnID) > len(cols) {
		return nil, ErrNotFound
	}
	return cols[columnID-1], nil
}

// Columns returns the registered columns of a table in column-id order.
func (c *Catalog) Columns(tableID int32) []*ColumnDescriptor {
	c.RLock()
	defer c.RUnlock()
	return c.columns[tableID]
}

func (c *Catalog) GetLogicalTableID(tableID int32) int32 {
	c.RLock()
	defer c.RUnlock()
	if td, ok := c.tables[tableID]; ok {
		return td.LogicalTableID
	}
	return tableID
}

func (c *Catalog) GetDictionary(compParam int) (*DictDescriptor, error) {
	c.RLock()
	defer c.RUnlock()
	dd, ok := c.dicts[compParam]
	if !ok {
		return nil, ErrNotFound
	}
	return dd, nil
}

// Checkpoint persists the dirty chunks of one logical table through the
// data manager.
func (c *Catalog) Checkpoint(logicalTableID int32) error {
	return c.dataMgr.Checkpoint(c.dbID, logicalTableID)
}
