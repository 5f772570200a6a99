package objdb

import (
	"math"

	"github.com/andreyvit/objdb/codec"
)

// AutoIncrement passed to Insert.Save assigns the next unused id of the
// collection. Ids are never reused, even after the object is deleted.
const AutoIncrement int64 = math.MinInt64

// Insert writes a batch of objects into one collection. It is the Writer of
// the object currently being built: write its properties left to right,
// then call Save to store it and move on to the next one. After the last
// object is saved the embedded Writer is nil.
type Insert struct {
	Writer
	txn   *Txn
	coll  *Collection
	count int
	saved int
	b     *codec.Builder
}

// Insert starts a batch of count objects in a write transaction.
func (inst *Instance) Insert(txn *Txn, collectionIndex int, count int) (*Insert, error) {
	if err := inst.checkTxn(txn, true); err != nil {
		return nil, err
	}
	coll, err := inst.storedCollection(collectionIndex)
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, argErrf(coll.name, "negative insert count %d", count)
	}
	ins := &Insert{
		txn:   txn,
		coll:  coll,
		count: count,
	}
	ins.next()
	return ins, nil
}

func (ins *Insert) next() {
	if ins.saved >= ins.count {
		ins.Writer, ins.b = nil, nil
		return
	}
	ins.b = codec.NewBuilder(ins.coll.layout, valueBytesPool.get())
	ins.Writer = &objectWriter{coll: ins.coll, b: ins.b}
}

func (ins *Insert) Collection() *Collection {
	return ins.coll
}

// Remaining returns the number of objects not saved yet.
func (ins *Insert) Remaining() int {
	return ins.count - ins.saved
}

// Save stores the current object under id (or AutoIncrement) and returns
// the id it was stored under. Saving an existing id replaces that object.
// If Save fails, the current object is discarded and can be written again.
func (ins *Insert) Save(id int64) (int64, error) {
	if ins.b == nil {
		return 0, argErrf(ins.coll.name, "all %d objects have already been saved", ins.count)
	}
	if err := ins.txn.check(true); err != nil {
		return 0, err
	}

	data, err := ins.b.Finish()
	ins.txn.retain(data)
	if err != nil {
		ins.next()
		return 0, newErr(StatusEncoding, ins.coll.name, err, "cannot encode object")
	}

	id, err = ins.txn.put(ins.coll, id, data)
	if err != nil {
		ins.next()
		return 0, err
	}
	ins.saved++
	ins.next()
	return id, nil
}

// Finish verifies that every object of the batch has been saved.
func (ins *Insert) Finish() error {
	if ins.saved != ins.count {
		return argErrf(ins.coll.name, "saved %d of %d objects", ins.saved, ins.count)
	}
	return nil
}
