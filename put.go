package objdb

import (
	"bytes"
	"math"

	"github.com/andreyvit/objdb/codec"
)

// put stores an encoded object, maintaining every index of the collection.
func (txn *Txn) put(coll *Collection, id int64, data []byte) (int64, error) {
	dataB := txn.bucket(coll, dataBucket)

	id, err := txn.assignID(coll, dataB, id)
	if err != nil {
		return 0, err
	}

	obj, err := codec.Load(data)
	if err != nil {
		return 0, newErr(StatusEncoding, coll.name, err, "object %d", id)
	}

	key := idKey(id)
	oldRaw := dataB.Get(key)

	keyBuf := keyBytesPool.get()
	var newRows, oldRows indexRows = indexRowsPool.get(), indexRowsPool.get()
	defer func() {
		keyBytesPool.put(keyBuf)
		indexRowsPool.put(newRows)
		indexRowsPool.put(oldRows)
	}()

	newRows, keyBuf = appendIndexRows(newRows, keyBuf, coll, obj, id)
	if oldRaw != nil {
		oldObj, err := codec.Load(oldRaw)
		if err != nil {
			return 0, newErr(StatusEncoding, coll.name, err, "stored object %d", id)
		}
		oldRows, keyBuf = appendIndexRows(oldRows, keyBuf, coll, oldObj, id)
	}

	for i, r := range newRows {
		if !r.idx.unique || r.hasNull {
			continue
		}
		if i < len(oldRows) && bytes.Equal(oldRows[i].key, r.key) {
			continue
		}
		if err := checkUnique(txn.bucket(coll, r.idx.buck), r, id); err != nil {
			return 0, err
		}
	}

	err = diffIndexRows(oldRows, newRows, func(r indexRow) error {
		return txn.bucket(coll, r.idx.buck).Delete(r.key)
	}, func(r indexRow) error {
		return txn.bucket(coll, r.idx.buck).Put(r.key, emptyIndexValue)
	})
	if err != nil {
		return 0, ioErr(coll.name, err, "cannot update index")
	}
	if err := dataB.Put(key, data); err != nil {
		return 0, ioErr(coll.name, err, "cannot write object")
	}
	if err := txn.raiseLastID(coll, dataB, id); err != nil {
		return 0, err
	}
	txn.markWritten()

	if txn.inst.verbose {
		if oldRaw == nil {
			txn.inst.logf("db: INSERT %s/%d", coll.name, id)
		} else {
			txn.inst.logf("db: PUT %s/%d", coll.name, id)
		}
	}
	return id, nil
}

// deleteObject removes one object and its index entries. It returns false
// if there is no such object.
func (txn *Txn) deleteObject(coll *Collection, id int64) (bool, error) {
	dataB := txn.bucket(coll, dataBucket)
	key := idKey(id)
	oldRaw := dataB.Get(key)
	if oldRaw == nil {
		if txn.inst.verbose {
			txn.inst.logf("db: DELETE.NOOP %s/%d", coll.name, id)
		}
		return false, nil
	}
	oldObj, err := codec.Load(oldRaw)
	if err != nil {
		return false, newErr(StatusEncoding, coll.name, err, "stored object %d", id)
	}

	keyBuf := keyBytesPool.get()
	var rows indexRows = indexRowsPool.get()
	defer func() {
		keyBytesPool.put(keyBuf)
		indexRowsPool.put(rows)
	}()
	rows, keyBuf = appendIndexRows(rows, keyBuf, coll, oldObj, id)
	for _, r := range rows {
		if err := txn.bucket(coll, r.idx.buck).Delete(r.key); err != nil {
			return false, ioErr(coll.name, err, "cannot update index")
		}
	}
	if err := dataB.Delete(key); err != nil {
		return false, ioErr(coll.name, err, "cannot delete object")
	}
	txn.markWritten()

	if txn.inst.verbose {
		txn.inst.logf("db: DELETE %s/%d", coll.name, id)
	}
	return true, nil
}

func (txn *Txn) lastID(coll *Collection, dataB storageBucket) (int64, error) {
	if v, ok := txn.lastIDs[coll]; ok {
		return v, nil
	}
	cs, err := decodeCollectionState(coll, txn.bucket(coll, "").Get(collectionStateKey))
	if err != nil {
		return 0, err
	}
	last := cs.LastID
	if k, _ := dataB.Cursor().Last(); k != nil {
		if id, err := decodeIDKey(k); err == nil && id > last {
			last = id
		}
	}
	return last, nil
}

func (txn *Txn) setLastID(coll *Collection, v int64) {
	if txn.lastIDs == nil {
		txn.lastIDs = make(map[*Collection]int64)
	}
	txn.lastIDs[coll] = v
}

// assignID resolves AutoIncrement without reserving the id: a put that
// fails must not move the last id.
func (txn *Txn) assignID(coll *Collection, dataB storageBucket, id int64) (int64, error) {
	if id != AutoIncrement {
		return id, nil
	}
	last, err := txn.lastID(coll, dataB)
	if err != nil {
		return 0, err
	}
	if last == math.MaxInt64 {
		return 0, argErrf(coll.name, "auto-increment ids exhausted")
	}
	return max(last, 0) + 1, nil
}

func (txn *Txn) raiseLastID(coll *Collection, dataB storageBucket, id int64) error {
	last, err := txn.lastID(coll, dataB)
	if err != nil {
		return err
	}
	txn.setLastID(coll, max(last, id))
	return nil
}

func (txn *Txn) saveLastIDs() error {
	for coll, last := range txn.lastIDs {
		cs := *txn.inst.collectionState(coll)
		cs.LastID = last
		if err := cs.save(txn.stx); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the object stored under id, or nil if there is none.
func (inst *Instance) Get(txn *Txn, collectionIndex int, id int64) (Reader, error) {
	if err := inst.checkTxn(txn, false); err != nil {
		return nil, err
	}
	coll, err := inst.storedCollection(collectionIndex)
	if err != nil {
		return nil, err
	}
	raw := txn.bucket(coll, dataBucket).Get(idKey(id))
	if raw == nil {
		return nil, nil
	}
	obj, err := codec.Load(raw)
	if err != nil {
		return nil, newErr(StatusEncoding, coll.name, err, "object %d", id)
	}
	return newObjectReader(coll, obj, id), nil
}

// Clear deletes every object of a collection and returns how many there were.
func (inst *Instance) Clear(txn *Txn, collectionIndex int) (uint32, error) {
	if err := inst.checkTxn(txn, true); err != nil {
		return 0, err
	}
	coll, err := inst.storedCollection(collectionIndex)
	if err != nil {
		return 0, err
	}
	n := txn.bucket(coll, dataBucket).KeyCount()

	// the next auto-increment id survives the clear
	if err := txn.raiseLastID(coll, txn.bucket(coll, dataBucket), 0); err != nil {
		return 0, err
	}

	subs := []string{dataBucket}
	for _, idx := range coll.indexes {
		subs = append(subs, idx.buck)
	}
	for _, sub := range subs {
		if err := txn.stx.DeleteBucket(coll.name, sub); err != nil {
			return 0, ioErr(coll.name, err, "cannot clear")
		}
		if _, err := txn.stx.CreateBucket(coll.name, sub); err != nil {
			return 0, ioErr(coll.name, err, "cannot clear")
		}
	}
	txn.markWritten()
	if txn.inst.verbose {
		txn.inst.logf("db: CLEAR %s (%d objects)", coll.name, n)
	}
	return uint32(n), nil
}
