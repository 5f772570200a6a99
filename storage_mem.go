package objdb

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"slices"
	"sync"
)

var (
	errMemClosed   = errors.New("in-memory storage closed")
	errMemReadOnly = errors.New("read-only transaction")
	errMemTxDone   = errors.New("transaction already closed")
)

type memBucketID struct {
	name, sub string
}

// memStorage is the backend of in-memory instances. Committed state is an
// immutable map of immutable buckets: readers share it without copying,
// and a writer copies a bucket only the first time it modifies it.
type memStorage struct {
	mu        sync.Mutex
	committed map[memBucketID]*memBucket
	writing   bool
	closed    bool
}

func newMemStorage() *memStorage {
	return &memStorage{committed: make(map[memBucketID]*memBucket)}
}

func (s *memStorage) BeginTx(writable bool) (storageTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errMemClosed
	}
	tx := &memTx{s: s, writable: writable, buckets: s.committed}
	if writable {
		if s.writing {
			return nil, errors.New("another write transaction is active")
		}
		s.writing = true
		tx.buckets = maps.Clone(s.committed)
		tx.owned = make(map[*memBucket]bool)
	}
	return tx, nil
}

func (s *memStorage) Sync() error { return nil }

func (s *memStorage) Space() (int64, int64) { return 0, 0 }

func (s *memStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.committed = nil
	return nil
}

type memTx struct {
	s        *memStorage
	writable bool
	done     bool
	buckets  map[memBucketID]*memBucket
	owned    map[*memBucket]bool
}

func (tx *memTx) Writable() bool { return tx.writable }

func (tx *memTx) Bucket(name, sub string) storageBucket {
	id := memBucketID{name, sub}
	if tx.buckets[id] == nil {
		return nil
	}
	return &memBucketHandle{tx, id}
}

func (tx *memTx) CreateBucket(name, sub string) (storageBucket, error) {
	if err := tx.checkWritable(); err != nil {
		return nil, err
	}
	for _, id := range []memBucketID{{name, ""}, {name, sub}} {
		if tx.buckets[id] == nil {
			b := &memBucket{}
			tx.buckets[id] = b
			tx.owned[b] = true
		}
	}
	return &memBucketHandle{tx, memBucketID{name, sub}}, nil
}

func (tx *memTx) DeleteBucket(name, sub string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if tx.buckets[memBucketID{name, sub}] == nil {
		return errBucketNotFound
	}
	for id := range tx.buckets {
		if id.name == name && (sub == "" || id.sub == sub) {
			delete(tx.buckets, id)
		}
	}
	return nil
}

func (tx *memTx) WriteTo(w io.Writer) (int64, error) {
	return 0, errNoSnapshot
}

func (tx *memTx) Commit() error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	s := tx.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.done = true
	s.writing = false
	if s.closed {
		return errMemClosed
	}
	s.committed = tx.buckets
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	if tx.writable {
		tx.s.mu.Lock()
		tx.s.writing = false
		tx.s.mu.Unlock()
	}
	return nil
}

func (tx *memTx) Size() int64 { return 0 }

func (tx *memTx) checkWritable() error {
	if tx.done {
		return errMemTxDone
	}
	if !tx.writable {
		return errMemReadOnly
	}
	return nil
}

// mutable returns a bucket this transaction may modify in place.
func (tx *memTx) mutable(id memBucketID) *memBucket {
	b := tx.buckets[id]
	if !tx.owned[b] {
		b = &memBucket{items: slices.Clone(b.items)}
		tx.buckets[id] = b
		tx.owned[b] = true
	}
	return b
}

type memItem struct {
	key, value []byte
}

// memBucket items are sorted by key. Keys and values are never modified
// after insertion, so copies of a bucket can share them.
type memBucket struct {
	items []memItem
}

func (b *memBucket) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(b.items, key, func(it memItem, k []byte) int {
		return bytes.Compare(it.key, k)
	})
}

type memBucketHandle struct {
	tx *memTx
	id memBucketID
}

// bucket is looked up on every call because a write may replace it.
func (h *memBucketHandle) bucket() *memBucket {
	if h.tx.done {
		panic(errMemTxDone)
	}
	return h.tx.buckets[h.id]
}

func (h *memBucketHandle) Get(key []byte) []byte {
	b := h.bucket()
	if i, ok := b.search(key); ok {
		return b.items[i].value
	}
	return nil
}

func (h *memBucketHandle) Put(key, value []byte) error {
	if err := h.tx.checkWritable(); err != nil {
		return err
	}
	b := h.tx.mutable(h.id)
	it := memItem{bytes.Clone(key), bytes.Clone(value)}
	if it.value == nil {
		it.value = []byte{}
	}
	i, ok := b.search(key)
	if ok {
		b.items[i] = it
	} else {
		b.items = slices.Insert(b.items, i, it)
	}
	return nil
}

func (h *memBucketHandle) Delete(key []byte) error {
	if err := h.tx.checkWritable(); err != nil {
		return err
	}
	if _, ok := h.bucket().search(key); !ok {
		return nil
	}
	b := h.tx.mutable(h.id)
	i, _ := b.search(key)
	b.items = slices.Delete(b.items, i, i+1)
	return nil
}

func (h *memBucketHandle) Cursor() storageCursor {
	return &memCursor{h: h, pos: -1}
}

func (h *memBucketHandle) KeyCount() int {
	return len(h.bucket().items)
}

func (h *memBucketHandle) Stats() bucketStats {
	b := h.bucket()
	var n int64
	for _, it := range b.items {
		n += int64(len(it.key) + len(it.value))
	}
	return bucketStats{KeyN: len(b.items), LeafInuse: n, LeafAlloc: n}
}

// memCursor remembers the last key it returned rather than a position, so
// it stays correct when the transaction modifies the bucket mid-walk.
type memCursor struct {
	h    *memBucketHandle
	pos  int
	last []byte
}

func (c *memCursor) at(i int) ([]byte, []byte) {
	items := c.h.bucket().items
	if i < 0 || i >= len(items) {
		c.pos, c.last = len(items), nil
		return nil, nil
	}
	c.pos, c.last = i, items[i].key
	return items[i].key, items[i].value
}

func (c *memCursor) First() ([]byte, []byte) {
	return c.at(0)
}

func (c *memCursor) Last() ([]byte, []byte) {
	return c.at(len(c.h.bucket().items) - 1)
}

func (c *memCursor) Seek(seek []byte) ([]byte, []byte) {
	i, _ := c.h.bucket().search(seek)
	return c.at(i)
}

func (c *memCursor) Next() ([]byte, []byte) {
	if c.last == nil {
		if c.pos < 0 {
			return c.First()
		}
		return nil, nil
	}
	b := c.h.bucket()
	i, ok := b.search(c.last)
	if ok {
		i++
	}
	return c.at(i)
}
