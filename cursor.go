package objdb

import (
	"bytes"
	"slices"
	"strings"

	"github.com/andreyvit/objdb/codec"
)

// Cursor iterates over the results of a query, lazily unless the query
// sorts. Objects it returns are only valid until the transaction ends.
//
// Once the transaction ends, Next returns false and Err reports it.
type Cursor struct {
	txn   *Txn
	q     *Query
	dataB storageBucket
	rc    *rangeCursor

	sorted []sortedRow
	pos    int

	seen  map[string]struct{}
	skip  int
	left  int
	kbuf  []byte
	cur   Reader
	curID int64
	err   error
	done  bool
}

type sortedRow struct {
	key []byte
	id  int64
	obj codec.View
}

// Query starts iterating over the results of q.
func (inst *Instance) Query(txn *Txn, q *Query) (*Cursor, error) {
	if err := inst.checkQuery(txn, q, false); err != nil {
		return nil, err
	}
	return newCursor(txn, q), nil
}

func (inst *Instance) checkQuery(txn *Txn, q *Query, write bool) error {
	if err := inst.checkTxn(txn, write); err != nil {
		return err
	}
	if q == nil {
		return argErrf("", "nil query")
	}
	if q.coll.schema != inst.schema {
		return argErrf(q.coll.name, "query was built for another instance")
	}
	return nil
}

func newCursor(txn *Txn, q *Query) *Cursor {
	c := &Cursor{
		txn:   txn,
		q:     q,
		dataB: txn.bucket(q.coll, dataBucket),
		skip:  q.offset,
		left:  q.limit,
	}
	b := c.dataB
	if q.plan.index != nil {
		b = txn.bucket(q.coll, q.plan.index.buck)
	}
	c.rc = q.plan.rang.newCursor(b.Cursor(), txn.inst.logger)
	if len(q.distinct) > 0 {
		c.seen = make(map[string]struct{})
	}
	return c
}

// Next advances to the next result and returns false when there are no
// more (or an error occurred; see Err).
func (c *Cursor) Next() bool {
	if c.done {
		return false
	}
	if err := c.txn.check(false); err != nil {
		return c.fail(err)
	}
	if c.left == 0 {
		return c.stop()
	}
	if len(c.q.sorts) > 0 && c.sorted == nil {
		if err := c.sortAll(); err != nil {
			return c.fail(err)
		}
	}
	for {
		id, obj, ok, err := c.advance()
		if err != nil {
			return c.fail(err)
		}
		if !ok {
			return c.stop()
		}
		if c.seen != nil {
			c.kbuf = c.q.appendDistinctKey(c.kbuf[:0], obj)
			if _, dup := c.seen[string(c.kbuf)]; dup {
				continue
			}
			c.seen[string(c.kbuf)] = struct{}{}
		}
		if c.skip > 0 {
			c.skip--
			continue
		}
		if c.left > 0 {
			c.left--
		}
		c.cur, c.curID = newObjectReader(c.q.coll, obj, id), id
		return true
	}
}

func (c *Cursor) fail(err error) bool {
	c.err = err
	return c.stop()
}

func (c *Cursor) stop() bool {
	c.done = true
	c.cur, c.curID = nil, 0
	c.sorted = nil
	return false
}

// advance returns the next object that matches the filter, in scan order
// or, for sorted queries, in sort order.
func (c *Cursor) advance() (int64, codec.View, bool, error) {
	if c.sorted != nil {
		if c.pos >= len(c.sorted) {
			return 0, codec.View{}, false, nil
		}
		r := c.sorted[c.pos]
		c.pos++
		return r.id, r.obj, true, nil
	}
	return c.scan()
}

func (c *Cursor) scan() (int64, codec.View, bool, error) {
	coll := c.q.coll
	for c.rc.Next() {
		var id int64
		var raw []byte
		var err error
		if c.q.plan.index != nil {
			id, err = decodeIDKey(c.rc.Key())
			if err != nil {
				return 0, codec.View{}, false, newErr(StatusEncoding, coll.name, err, "index %s", c.q.plan.index.name)
			}
			raw = c.dataB.Get(idKey(id))
			if raw == nil {
				return 0, codec.View{}, false, newErr(StatusEncoding, coll.name, nil, "index %s refers to missing object %d", c.q.plan.index.name, id)
			}
		} else {
			id, err = decodeIDKey(c.rc.Key())
			if err != nil {
				return 0, codec.View{}, false, newErr(StatusEncoding, coll.name, err, "bad object key")
			}
			raw = c.rc.Value()
		}
		obj, err := codec.Load(raw)
		if err != nil {
			return 0, codec.View{}, false, newErr(StatusEncoding, coll.name, err, "object %d", id)
		}
		if c.q.match != nil && !c.q.match(obj, id) {
			continue
		}
		return id, obj, true, nil
	}
	return 0, codec.View{}, false, nil
}

func (c *Cursor) sortAll() error {
	rows := make([]sortedRow, 0, 64)
	for {
		id, obj, ok, err := c.scan()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		// ties resolve in id order whatever the scan order was
		key := appendIDKey(c.q.appendSortKey(nil, obj), id)
		rows = append(rows, sortedRow{key, id, obj})
	}
	slices.SortStableFunc(rows, func(a, b sortedRow) int {
		return bytes.Compare(a.key, b.key)
	})
	c.sorted = rows
	return nil
}

// Reader returns the current object.
func (c *Cursor) Reader() Reader {
	return c.cur
}

// ID returns the id of the current object.
func (c *Cursor) ID() int64 {
	return c.curID
}

func (c *Cursor) Err() error {
	return c.err
}

// Close abandons the iteration. It is always safe to call.
func (c *Cursor) Close() {
	if !c.done {
		c.stop()
	}
}

// appendSortKey builds a key whose byte order is the requested order of
// the objects. Descending components are bitwise inverted; that reverses
// their order because every component encoding is prefix-free.
func (q *Query) appendSortKey(buf []byte, obj codec.View) []byte {
	for _, s := range q.sorts {
		start := len(buf)
		buf = appendOrderKey(buf, s.prop, obj, s.caseSensitive)
		if s.order == Descending {
			for i := start; i < len(buf); i++ {
				buf[i] = ^buf[i]
			}
		}
	}
	return buf
}

func (q *Query) appendDistinctKey(buf []byte, obj codec.View) []byte {
	for _, d := range q.distinct {
		buf = appendOrderKey(buf, d.prop, obj, d.caseSensitive)
	}
	return buf
}

func appendOrderKey(buf []byte, p *Property, obj codec.View, caseSensitive bool) []byte {
	if p.typ == codec.String && !caseSensitive {
		s, ok := obj.ReadString(p.offset)
		if !ok {
			return appendNullKey(buf)
		}
		return appendStringKey(buf, strings.ToLower(s), true)
	}
	buf, _ = appendPropertyKey(buf, p, obj)
	return buf
}

// Count returns the number of results of q.
func (inst *Instance) Count(txn *Txn, q *Query) (uint32, error) {
	if err := inst.checkQuery(txn, q, false); err != nil {
		return 0, err
	}
	c := newCursor(txn, q)
	defer c.Close()
	var n uint32
	for c.Next() {
		n++
	}
	return n, c.Err()
}

// Delete removes every result of q (honoring offset and limit) and returns
// how many objects were deleted.
func (inst *Instance) Delete(txn *Txn, q *Query) (uint32, error) {
	if err := inst.checkQuery(txn, q, true); err != nil {
		return 0, err
	}
	var ids []int64
	c := newCursor(txn, q)
	for c.Next() {
		ids = append(ids, c.ID())
	}
	c.Close()
	if err := c.Err(); err != nil {
		return 0, err
	}

	var n uint32
	for _, id := range ids {
		ok, err := txn.deleteObject(q.coll, id)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}
