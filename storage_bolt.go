package objdb

import (
	"io"
	"os"
	"unsafe"

	"go.etcd.io/bbolt"
)

// boltStorage keeps the instance in a single bbolt file. Collections are
// top-level bbolt buckets; data and index buckets are nested inside them.
type boltStorage struct {
	bdb  *bbolt.DB
	path string
	bopt *bbolt.Options
}

func openBoltStorage(path string, bopt *bbolt.Options) (*boltStorage, error) {
	bdb, err := bbolt.Open(path, 0666, bopt)
	if err != nil {
		return nil, err
	}
	return &boltStorage{bdb, path, bopt}, nil
}

func (s *boltStorage) BeginTx(writable bool) (storageTx, error) {
	btx, err := s.bdb.Begin(writable)
	if err != nil {
		return nil, err
	}
	return boltTx{btx}, nil
}

func (s *boltStorage) Sync() error { return s.bdb.Sync() }

func (s *boltStorage) Space() (int64, int64) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return 0, 0
	}
	return fi.Size(), int64(s.bdb.Stats().FreeAlloc)
}

func (s *boltStorage) Close() error { return s.bdb.Close() }

type boltTx struct {
	btx *bbolt.Tx
}

func (tx boltTx) Writable() bool { return tx.btx.Writable() }

func (tx boltTx) Bucket(name, sub string) storageBucket {
	b := tx.btx.Bucket(nameBytes(name))
	if b != nil && sub != "" {
		b = b.Bucket(nameBytes(sub))
	}
	if b == nil {
		return nil
	}
	return boltBucket{b}
}

func (tx boltTx) CreateBucket(name, sub string) (storageBucket, error) {
	// bbolt keeps the name slices it is given, so these must not alias
	b, err := tx.btx.CreateBucketIfNotExists([]byte(name))
	if err == nil && sub != "" {
		b, err = b.CreateBucketIfNotExists([]byte(sub))
	}
	if err != nil {
		return nil, err
	}
	return boltBucket{b}, nil
}

func (tx boltTx) DeleteBucket(name, sub string) error {
	var err error
	if sub == "" {
		err = tx.btx.DeleteBucket(nameBytes(name))
	} else if root := tx.btx.Bucket(nameBytes(name)); root != nil {
		err = root.DeleteBucket(nameBytes(sub))
	} else {
		err = bbolt.ErrBucketNotFound
	}
	if err == bbolt.ErrBucketNotFound {
		return errBucketNotFound
	}
	return err
}

func (tx boltTx) WriteTo(w io.Writer) (int64, error) { return tx.btx.WriteTo(w) }

func (tx boltTx) Commit() error { return tx.btx.Commit() }

func (tx boltTx) Rollback() error {
	if err := tx.btx.Rollback(); err != bbolt.ErrTxClosed {
		return err
	}
	return nil
}

func (tx boltTx) Size() int64 { return tx.btx.Size() }

type boltBucket struct {
	b *bbolt.Bucket
}

func (b boltBucket) Get(key []byte) []byte       { return b.b.Get(key) }
func (b boltBucket) Put(key, value []byte) error { return b.b.Put(key, value) }
func (b boltBucket) Delete(key []byte) error     { return b.b.Delete(key) }
func (b boltBucket) Cursor() storageCursor       { return b.b.Cursor() }
func (b boltBucket) KeyCount() int               { return b.b.Stats().KeyN }

// Stats counts small nested buckets, which bbolt stores inline in their
// parent page, as in-use leaf space.
func (b boltBucket) Stats() bucketStats {
	s := b.b.Stats()
	return bucketStats{
		KeyN:        s.KeyN,
		LeafInuse:   int64(s.LeafInuse + s.InlineBucketInuse),
		LeafAlloc:   int64(s.LeafAlloc),
		BranchAlloc: int64(s.BranchAlloc),
	}
}

// nameBytes is for bucket lookups only; bbolt does not retain those keys.
func nameBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
