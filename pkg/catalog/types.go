package catalog

import (
	"errors"

	"colstore/pkg/common"
	"colstore/pkg/dict"
	"colstore/pkg/types"
)

var (
	ErrNotFound  = errors.New("colstore: catalog entry not found")
	ErrDuplicate = errors.New("colstore: duplicate catalog entry")
)

// TableDescriptor describes one physical table. A shard of a sharded
// table points at its logical table through LogicalTableID.
type TableDescriptor struct {
	TableID          int32
	Name             string
	LogicalTableID   int32
	Shard            int32 // -1 when not sharded
	PersistenceLevel common.MemoryLevel
}

// ColumnDescriptor describes one column of a physical table.
type ColumnDescriptor struct {
	TableID      int32
	ColumnID     int32
	Name         string
	Type         types.TypeInfo
	IsDeletedCol bool
	IsVirtual    bool
}

// DictDescriptor pairs a dictionary id with its string dictionary.
type DictDescriptor struct {
	DictID int
	Dict   *dict.StringDictionary
}
