package objdb

import (
	"errors"
	"io"
)

var (
	errBucketNotFound = errors.New("bucket not found")
	errNoSnapshot     = errors.New("storage cannot write snapshots")
)

// storage is the ordered key-value engine under an Instance. Every
// collection lives in a root bucket named after it, with nested buckets for
// its objects and each of its indexes; the root bucket itself only holds
// the collection state. The engine provides snapshot isolation for readers
// and at most one writable transaction at a time (the Instance enforces
// the latter before calling BeginTx).
type storage interface {
	BeginTx(writable bool) (storageTx, error)

	// Sync makes committed transactions durable.
	Sync() error

	// Space reports the file size and the bytes inside it that are free for
	// reuse; both are 0 for storages without a file.
	Space() (fileSize, freeBytes int64)

	Close() error
}

type storageTx interface {
	Writable() bool

	// Bucket returns the root bucket name (sub == "") or its nested bucket
	// sub, or nil if it does not exist.
	Bucket(name, sub string) storageBucket

	// CreateBucket returns the bucket, creating it and its root as needed.
	CreateBucket(name, sub string) (storageBucket, error)

	// DeleteBucket removes the bucket; removing a root removes everything
	// nested in it. A missing bucket is errBucketNotFound.
	DeleteBucket(name, sub string) error

	// WriteTo serializes the snapshot seen by the transaction as a complete
	// database file, or fails with errNoSnapshot.
	WriteTo(w io.Writer) (int64, error)

	Commit() error

	// Rollback may be called any number of times, including after Commit.
	Rollback() error

	// Size is the size of the database as seen by this transaction.
	Size() int64
}

// storageBucket is a sorted map of byte keys. Slices returned by Get and
// by cursors stay valid until the transaction ends and must not be
// modified.
type storageBucket interface {
	// Get returns nil for a missing key.
	Get(key []byte) []byte
	Put(key, value []byte) error
	Delete(key []byte) error

	Cursor() storageCursor

	// Stats reports the key count and, where the engine knows them, byte
	// sizes of the bucket.
	Stats() bucketStats
	KeyCount() int
}

type bucketStats struct {
	KeyN        int
	LeafInuse   int64
	LeafAlloc   int64
	BranchAlloc int64
}

func (s bucketStats) TotalAlloc() int64 { return s.BranchAlloc + s.LeafAlloc }

// storageCursor walks a bucket forward. A nil key means the walk is over.
type storageCursor interface {
	First() (key, value []byte)
	Last() (key, value []byte)

	// Seek moves to the first key >= seek.
	Seek(seek []byte) (key, value []byte)

	Next() (key, value []byte)
}
