package objdb

import (
	"bytes"
	"log/slog"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/andreyvit/objdb/codec"
)

const metaBucket = "_meta"

var (
	schemaKey          = []byte("schema")
	collectionStateKey = []byte("_state")
)

// collectionState is the persisted bookkeeping of one collection, stored in
// its root bucket. Index ordinals are never reused, even after an index is
// removed.
type collectionState struct {
	LastID           int64                  `msgpack:"id"`
	LastIndexOrdinal uint64                 `msgpack:"li"`
	Indexes          map[string]*indexState `msgpack:"i"`
	LastSeen         time.Time              `msgpack:"t"`

	coll        *Collection   `msgpack:"-"`
	indexStates []*indexState `msgpack:"-"`
}

type indexState struct {
	IndexOrdinal uint64 `msgpack:"o"`
	Built        bool   `msgpack:"f"`
	Definition   string `msgpack:"d"`

	index *Index `msgpack:"-"`
}

func (inst *Instance) collectionState(coll *Collection) *collectionState {
	return inst.states[coll.pos]
}

func (cs *collectionState) hasPendingIndexes() bool {
	for _, is := range cs.indexStates {
		if !is.Built {
			return true
		}
	}
	return false
}

func decodeCollectionState(coll *Collection, raw []byte) (*collectionState, error) {
	cs := new(collectionState)
	if raw != nil {
		if err := msgpack.Unmarshal(raw, cs); err != nil {
			return nil, newErr(StatusEncoding, coll.name, err, "failed to decode collection state")
		}
	}
	if cs.Indexes == nil {
		cs.Indexes = make(map[string]*indexState)
	}
	cs.coll = coll
	return cs, nil
}

func (cs *collectionState) save(stx storageTx) error {
	raw, err := msgpack.Marshal(cs)
	if err != nil {
		return newErr(StatusEncoding, cs.coll.name, err, "failed to encode collection state")
	}
	root := stx.Bucket(cs.coll.name, "")
	if root == nil {
		return ioErr(cs.coll.name, errBucketNotFound, "cannot save state")
	}
	return ioErr(cs.coll.name, root.Put(collectionStateKey, raw), "cannot save state")
}

// prepare creates the buckets of the schema, checks the persisted schema
// for compatibility and builds new indexes. It runs once per Open, inside
// a single write transaction.
func (inst *Instance) prepare(stx storageTx, now time.Time) error {
	scm := inst.schema
	meta, err := stx.CreateBucket(metaBucket, "")
	if err != nil {
		return ioErr("", err, "cannot create meta bucket")
	}
	if raw := meta.Get(schemaKey); raw != nil && !bytes.Equal(raw, scm.json) {
		old, err := ParseSchema(raw)
		if err != nil {
			return newErr(StatusSchema, "", err, "cannot parse persisted schema")
		}
		if err := migrateSchema(stx, old, scm, inst.logger); err != nil {
			return err
		}
	}

	inst.states = make([]*collectionState, len(scm.collections))
	for _, coll := range scm.collections {
		if coll.embedded {
			continue
		}
		cs, err := prepareCollection(stx, coll, now, inst.logger)
		if err != nil {
			return err
		}
		inst.states[coll.pos] = cs
	}
	for _, cs := range inst.states {
		if cs != nil {
			if err := cs.buildPendingIndexes(stx, inst.logger); err != nil {
				return err
			}
		}
	}
	for _, cs := range inst.states {
		if cs != nil {
			if err := cs.save(stx); err != nil {
				return err
			}
		}
	}
	return ioErr("", meta.Put(schemaKey, bytes.Clone(scm.json)), "cannot save schema")
}

// migrateSchema verifies that data stored under old stays readable with
// scm. Properties may only be appended; collections may only be removed
// while empty.
func migrateSchema(stx storageTx, old, scm *Schema, logger *slog.Logger) error {
	for _, oc := range old.collections {
		nc := scm.byName[oc.name]
		if nc == nil {
			if oc.embedded {
				continue
			}
			var n int
			if b := stx.Bucket(oc.name, dataBucket); b != nil {
				n = b.KeyCount()
			}
			if n > 0 {
				return schemaErrf(oc.name, "collection was removed from the schema but still holds %d objects", n)
			}
			if err := stx.DeleteBucket(oc.name, ""); err != nil && err != errBucketNotFound {
				return ioErr(oc.name, err, "cannot drop collection")
			}
			logger.Info("objdb: dropped empty collection", "collection", oc.name)
			continue
		}
		if nc.embedded != oc.embedded {
			return schemaErrf(nc.name, "cannot change whether a collection is embedded")
		}
		if !oc.layout.IsPrefixOf(nc.layout) {
			return schemaErrf(nc.name, "stored properties cannot be removed, reordered or retyped; new properties can only be appended")
		}
		for i, op := range oc.props {
			np := nc.props[i]
			if np.name != op.name {
				return schemaErrf(nc.name, "stored property %q cannot be renamed or replaced by %q", op.name, np.name)
			}
			if op.target != nil && np.target.name != op.target.name {
				return schemaErrf(nc.name, "property %q: embedded collection cannot change from %q to %q", np.name, op.target.name, np.target.name)
			}
			if op.target != nil && !op.target.layout.IsPrefixOf(np.target.layout) {
				return schemaErrf(nc.name, "property %q: embedded collection %q is incompatible with stored %q", np.name, np.target.name, op.target.name)
			}
		}
		if len(nc.props) > len(oc.props) {
			logger.Info("objdb: appended properties", "collection", nc.name, "old", len(oc.props), "new", len(nc.props))
		}
	}
	return nil
}

func prepareCollection(stx storageTx, coll *Collection, now time.Time, logger *slog.Logger) (*collectionState, error) {
	root, err := stx.CreateBucket(coll.name, "")
	if err != nil {
		return nil, ioErr(coll.name, err, "cannot create bucket")
	}
	if _, err := stx.CreateBucket(coll.name, dataBucket); err != nil {
		return nil, ioErr(coll.name, err, "cannot create data bucket")
	}

	cs, err := decodeCollectionState(coll, root.Get(collectionStateKey))
	if err != nil {
		return nil, err
	}
	cs.LastSeen = now
	cs.indexStates = make([]*indexState, len(coll.indexes))

	for i, idx := range coll.indexes {
		def := idx.definition()
		is := cs.Indexes[idx.name]
		if is != nil && is.Definition != def {
			if err := dropIndexBucket(stx, idx.coll, idx.name, logger); err != nil {
				return nil, err
			}
			is = nil
		}
		if is == nil {
			cs.LastIndexOrdinal++
			is = &indexState{
				IndexOrdinal: cs.LastIndexOrdinal,
				Definition:   def,
			}
			cs.Indexes[idx.name] = is
		}
		is.index = idx
		cs.indexStates[i] = is
		if _, err := stx.CreateBucket(coll.name, idx.buck); err != nil {
			return nil, ioErr(coll.name, err, "cannot create index bucket")
		}
	}
	for name, is := range cs.Indexes {
		if is.index == nil {
			if err := dropIndexBucket(stx, coll, name, logger); err != nil {
				return nil, err
			}
			delete(cs.Indexes, name)
		}
	}
	return cs, nil
}

func dropIndexBucket(stx storageTx, coll *Collection, name string, logger *slog.Logger) error {
	err := stx.DeleteBucket(coll.name, makeIndexBucketName(name))
	if err == errBucketNotFound {
		return nil
	}
	if err != nil {
		return ioErr(coll.name, err, "cannot drop index "+name)
	}
	logger.Info("objdb: dropped index", "collection", coll.name, "index", name)
	return nil
}

// buildPendingIndexes fills indexes that are new (or whose definition
// changed) by scanning the collection.
func (cs *collectionState) buildPendingIndexes(stx storageTx, logger *slog.Logger) error {
	if !cs.hasPendingIndexes() {
		return nil
	}
	coll := cs.coll
	pending := make(map[*Index]storageBucket)
	var names []string
	for _, is := range cs.indexStates {
		if !is.Built {
			pending[is.index] = stx.Bucket(coll.name, is.index.buck)
			names = append(names, is.index.name)
		}
	}

	logger.Info("objdb: building indexes", "collection", coll.name, "indexes", strings.Join(names, ","))
	start := time.Now()
	data := stx.Bucket(coll.name, dataBucket)
	var n int64
	var rows indexRows
	var buf []byte
	c := data.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		id, err := decodeIDKey(k)
		if err != nil {
			return newErr(StatusEncoding, coll.name, err, "invalid key")
		}
		obj, err := codec.Load(v)
		if err != nil {
			return newErr(StatusEncoding, coll.name, err, "object %d", id)
		}
		rows, buf = appendIndexRows(rows[:0], buf[:0], coll, obj, id)
		for _, r := range rows {
			ib := pending[r.idx]
			if ib == nil {
				continue
			}
			if r.idx.unique && !r.hasNull {
				if err := checkUnique(ib, r, id); err != nil {
					return err
				}
			}
			if err := ib.Put(r.key, emptyIndexValue); err != nil {
				return ioErr(coll.name, err, "cannot write index")
			}
		}
		n++
		if n%100000 == 0 {
			logger.Info("objdb: still building indexes", "collection", coll.name, "objects", n, "ms", time.Since(start).Milliseconds())
		}
	}
	for _, is := range cs.indexStates {
		is.Built = true
	}
	logger.Info("objdb: built indexes", "collection", coll.name, "objects", n, "ms", time.Since(start).Milliseconds())
	return nil
}
