package objdb

import (
	"fmt"
	"runtime/debug"
	"time"
)

type txnState uint8

const (
	txnBegun txnState = iota
	txnCommitted
	txnAborted
)

func (s txnState) String() string {
	switch s {
	case txnBegun:
		return "begun"
	case txnCommitted:
		return "committed"
	case txnAborted:
		return "aborted"
	default:
		return fmt.Sprintf("txnState(%d)", uint8(s))
	}
}

// Txn is a one-shot transaction: it starts Begun and ends either Committed
// or Aborted, after which every operation on it fails with ErrTxnFinished.
// A read transaction observes the snapshot taken when it began; a write
// transaction is the only one of its instance.
//
// A Txn must not be used from several goroutines at once.
type Txn struct {
	inst      *Instance
	stx       storageTx
	write     bool
	state     txnState
	startTime time.Time
	stack     string

	written bool
	lastIDs map[*Collection]int64

	valueBufs [][]byte
}

func (inst *Instance) newTxn(stx storageTx, write bool) *Txn {
	txn := &Txn{
		inst:      inst,
		stx:       stx,
		write:     write,
		startTime: time.Now(),
	}
	if trackTxns {
		txn.stack = string(debug.Stack())
	}
	return txn
}

func (txn *Txn) Instance() *Instance {
	return txn.inst
}

func (txn *Txn) IsWrite() bool {
	return txn.write
}

// IsActive returns true until the transaction is committed or aborted.
func (txn *Txn) IsActive() bool {
	return txn.state == txnBegun
}

func (txn *Txn) String() string {
	kind := "read"
	if txn.write {
		kind = "write"
	}
	return fmt.Sprintf("%s txn (%v)", kind, txn.state)
}

func (txn *Txn) check(write bool) error {
	if txn.state != txnBegun {
		return &Error{StatusInvalidArgument, "", txn.state.String(), ErrTxnFinished}
	}
	if txn.inst.closed.Load() {
		return errClosed()
	}
	if write && !txn.write {
		return argErrf("", "write transaction required")
	}
	return nil
}

// Commit applies the writes of a write transaction durably (unless the
// instance uses relaxed durability) and ends the transaction. If the commit
// fails, the transaction ends Aborted and none of its writes are visible.
// Committing a read transaction simply ends it.
func (txn *Txn) Commit() error {
	if err := txn.check(false); err != nil {
		// the instance is closing
		if txn.state == txnBegun {
			txn.finish(txnAborted)
		}
		return err
	}
	if !txn.write {
		txn.finish(txnCommitted)
		return nil
	}

	err := txn.saveLastIDs()
	if err == nil {
		err = txn.stx.Commit()
	}
	if err != nil {
		txn.finish(txnAborted)
		return ioErr("", err, "commit failed")
	}
	txn.finish(txnCommitted)
	txn.inst.WriteCount.Add(1)
	if txn.inst.verbose {
		txn.inst.logf("db: COMMIT (%d ms)", time.Since(txn.startTime).Milliseconds())
	}
	return nil
}

// Abort discards the writes of the transaction. It never fails and is a
// no-op on a transaction that has already ended.
func (txn *Txn) Abort() {
	if txn == nil || txn.state != txnBegun {
		return
	}
	txn.finish(txnAborted)
	if txn.write && txn.inst.verbose {
		txn.inst.logf("db: ABORT")
	}
}

func (txn *Txn) finish(st txnState) {
	txn.state = st
	// Rollback after a successful Commit is a no-op in every backend.
	_ = txn.stx.Rollback()
	txn.release()
	txn.inst.removeTxn(txn)
	if txn.write {
		txn.inst.WriterCount.Add(-1)
		txn.inst.releaseWriter()
	} else {
		txn.inst.ReaderCount.Add(-1)
		txn.inst.ReadCount.Add(1)
	}
}

// retain keeps buf alive (and unrecycled) until the transaction ends; Bolt
// requires values passed to Put to stay valid that long.
func (txn *Txn) retain(buf []byte) {
	if txn.valueBufs == nil {
		txn.valueBufs = valueListPool.get()
	}
	txn.valueBufs = append(txn.valueBufs, buf)
}

func (txn *Txn) release() {
	if txn.valueBufs != nil {
		for _, buf := range txn.valueBufs {
			valueBytesPool.put(buf)
		}
		valueListPool.put(txn.valueBufs)
		txn.valueBufs = nil
	}
}

func (txn *Txn) bucket(coll *Collection, sub string) storageBucket {
	b := txn.stx.Bucket(coll.name, sub)
	if b == nil {
		panic(fmt.Errorf("%s: missing bucket %q", coll.name, sub))
	}
	return b
}

func (txn *Txn) markWritten() {
	txn.written = true
}

type panicked struct {
	reason any
	stack  string
}

func (p panicked) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", p.reason, p.stack)
}

func safelyCall(fn func(*Txn) error, txn *Txn) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicked{p, string(debug.Stack())}
		}
	}()
	return fn(txn)
}

// Read runs f in a read transaction, which is ended afterwards.
func (inst *Instance) Read(f func(txn *Txn) error) error {
	txn, err := inst.BeginTxn(false)
	if err != nil {
		return err
	}
	defer txn.Abort()
	return safelyCall(f, txn)
}

// Write runs f in a write transaction and commits it if f returns nil.
// If f fails or panics, the transaction is aborted and the error (or the
// panic, as an error) is returned.
func (inst *Instance) Write(f func(txn *Txn) error) error {
	txn, err := inst.BeginTxn(true)
	if err != nil {
		return err
	}
	defer txn.Abort()
	if err := safelyCall(f, txn); err != nil {
		return err
	}
	return txn.Commit()
}
