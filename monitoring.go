package objdb

// CollectionStats describes the storage used by one collection.
type CollectionStats struct {
	Objects      int
	IndexEntries int

	DataSize   int64
	DataAlloc  int64
	IndexSize  int64
	IndexAlloc int64
}

func (cs *CollectionStats) TotalSize() int64 {
	return cs.DataSize + cs.IndexSize
}

func (cs *CollectionStats) TotalAlloc() int64 {
	return cs.DataAlloc + cs.IndexAlloc
}

// CollectionStats measures a stored collection. The in-memory backend only
// reports object and entry counts.
func (txn *Txn) CollectionStats(collectionIndex int) (CollectionStats, error) {
	if err := txn.check(false); err != nil {
		return CollectionStats{}, err
	}
	coll, err := txn.inst.storedCollection(collectionIndex)
	if err != nil {
		return CollectionStats{}, err
	}
	return txn.collectionStats(coll), nil
}

func (txn *Txn) collectionStats(coll *Collection) CollectionStats {
	bs := txn.bucket(coll, dataBucket).Stats()
	result := CollectionStats{
		Objects:   bs.KeyN,
		DataSize:  bs.LeafInuse,
		DataAlloc: bs.TotalAlloc(),
	}
	for _, idx := range coll.indexes {
		bs = txn.bucket(coll, idx.buck).Stats()
		result.IndexEntries += bs.KeyN
		result.IndexSize += bs.LeafInuse
		result.IndexAlloc += bs.TotalAlloc()
	}
	return result
}
