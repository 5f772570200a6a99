package objdb

import (
	"errors"
	"math"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/andreyvit/objdb/durable"
)

// CompactCondition decides when compaction is worthwhile: the file must be
// at least MinFileSize bytes, and either MinBytes bytes or a MinRatio
// fraction of it must be free.
type CompactCondition struct {
	MinFileSize uint32
	MinBytes    uint32
	MinRatio    float32
}

// NewCompactCondition returns nil (never compact) if minRatio is NaN.
func NewCompactCondition(minFileSize, minBytes uint32, minRatio float32) *CompactCondition {
	if math.IsNaN(float64(minRatio)) {
		return nil
	}
	return &CompactCondition{minFileSize, minBytes, minRatio}
}

func (c *CompactCondition) ShouldCompact(fileSize, freeBytes int64) bool {
	if c == nil || math.IsNaN(float64(c.MinRatio)) || fileSize <= 0 {
		return false
	}
	if fileSize < int64(c.MinFileSize) {
		return false
	}
	if freeBytes >= int64(c.MinBytes) {
		return true
	}
	return float64(freeBytes)/float64(fileSize) >= float64(c.MinRatio)
}

// compacter is implemented by backends that can rewrite themselves without
// the free space. The caller guarantees exclusive access.
type compacter interface {
	compact() error
}

func (s *boltStorage) compact() error {
	tmp := s.path + ".compact"
	_ = os.Remove(tmp)

	dst, err := bbolt.Open(tmp, 0666, &bbolt.Options{Timeout: s.bopt.Timeout, NoSync: true, NoFreelistSync: true})
	if err != nil {
		return err
	}
	err = bbolt.Compact(dst, s.bdb, compactTxMaxSize)
	err = errors.Join(err, dst.Close())
	if err == nil {
		err = durable.SyncFile(tmp)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := s.bdb.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	replaceErr := durable.ReplaceFile(tmp, s.path)
	if replaceErr != nil {
		_ = os.Remove(tmp)
	}
	bdb, err := bbolt.Open(s.path, 0666, s.bopt)
	if err != nil {
		return errors.Join(replaceErr, err)
	}
	s.bdb = bdb
	return replaceErr
}

// Compact rewrites the database file without its free pages. It waits for
// the write slot and fails with TransactionConflict if any transaction is
// open. In-memory instances have nothing to compact.
func (inst *Instance) Compact() error {
	if err := inst.acquireWriter(); err != nil {
		return err
	}
	defer inst.releaseWriter()

	inst.stLock.Lock()
	defer inst.stLock.Unlock()
	if inst.closed.Load() {
		return errClosed()
	}
	if n := inst.openTxnCount(); n > 0 {
		return newErr(StatusTransactionConflict, "", nil, "cannot compact with %d open transactions", n)
	}
	return inst.compactLocked()
}

func (inst *Instance) compactLocked() error {
	c, ok := inst.st.(compacter)
	if !ok {
		return nil
	}
	start := time.Now()
	before, free := inst.st.Space()
	if err := c.compact(); err != nil {
		inst.logger.Error("objdb: compaction failed", "instance", inst.id, "path", inst.path, "err", err)
		return ioErr("", err, "compaction failed")
	}
	after, _ := inst.st.Space()
	inst.logger.Info("objdb: compacted", "instance", inst.id, "path", inst.path, "before", before, "free", free, "after", after, "ms", time.Since(start).Milliseconds())
	return nil
}
