package objdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const trackTxns = true

var (
	registryLock sync.Mutex
	registry     = make(map[uint32]*Instance)
)

// Instance is an open database: the schema, the storage it is persisted in,
// and the single write slot. Instances are registered process-wide under
// their numeric id for the lifetime between Open and the last Close.
type Instance struct {
	id      uint32
	name    string
	path    string
	schema  *Schema
	opt     Options
	logf    func(format string, args ...any)
	verbose bool
	logger  *slog.Logger

	stLock sync.RWMutex
	st     storage
	states []*collectionState

	writer chan struct{}
	done   chan struct{}
	refs   int
	closed atomic.Bool

	ReaderCount        atomic.Int64
	WriterCount        atomic.Int64
	PendingWriterCount atomic.Int64
	ReadCount          atomic.Uint64
	WriteCount         atomic.Uint64

	txns      []*Txn
	txnsLock  sync.Mutex
	txnsEnded *sync.Cond
}

// Open opens (or creates) the database described by opt and registers it
// under opt.InstanceID. Opening an id that is already open returns the same
// instance with its reference count incremented, provided the schema is
// identical.
//
// A database created with an older schema is migrated: new collections,
// appended properties and new indexes are accepted; anything that would
// lose stored data is a SchemaError and leaves the file untouched.
func Open(opt Options) (*Instance, error) {
	if opt.Schema == nil {
		return nil, argErrf("", "schema is required")
	}
	if !opt.InMemory && opt.Dir == "" {
		return nil, argErrf("", "either Dir or InMemory is required")
	}

	registryLock.Lock()
	defer registryLock.Unlock()

	if inst := registry[opt.InstanceID]; inst != nil {
		if inst.schema.hash != opt.Schema.hash {
			return nil, schemaErrf("", "instance %d is already open with a different schema", opt.InstanceID)
		}
		inst.refs++
		return inst, nil
	}

	opt.applyDefaults()
	inst := &Instance{
		id:      opt.InstanceID,
		name:    opt.Name,
		schema:  opt.Schema,
		opt:     opt,
		logf:    opt.Logf,
		verbose: opt.Verbose,
		logger:  opt.Logger,
		writer:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	inst.txnsEnded = sync.NewCond(&inst.txnsLock)

	if opt.InMemory {
		inst.st = newMemStorage()
	} else {
		if err := os.MkdirAll(opt.Dir, 0777); err != nil {
			return nil, ioErr("", err, "cannot create directory")
		}
		inst.path = filepath.Join(opt.Dir, opt.Name+fileSuffix)
		st, err := openBoltStorage(inst.path, opt.boltOptions())
		if err != nil {
			return nil, ioErr("", err, "cannot open "+inst.path)
		}
		inst.st = st
	}

	start := time.Now()
	if err := inst.prepareStorage(start); err != nil {
		inst.st.Close()
		return nil, err
	}

	if cond := opt.Compact; cond != nil {
		fileSize, free := inst.st.Space()
		if cond.ShouldCompact(fileSize, free) {
			if err := inst.compactLocked(); err != nil {
				inst.st.Close()
				return nil, err
			}
		}
	}

	inst.refs = 1
	registry[inst.id] = inst
	inst.logger.Info("objdb: opened", "instance", inst.id, "path", inst.path, "schema", fmt.Sprintf("%016x", inst.schema.hash), "collections", len(inst.schema.collections), "ms", time.Since(start).Milliseconds())
	return inst, nil
}

func (inst *Instance) prepareStorage(now time.Time) error {
	stx, err := inst.st.BeginTx(true)
	if err != nil {
		return ioErr("", err, "cannot begin")
	}
	defer stx.Rollback()
	if err := inst.prepare(stx, now); err != nil {
		return err
	}
	return ioErr("", stx.Commit(), "cannot commit schema")
}

// Get returns the open instance registered under id.
func Get(id uint32) (*Instance, error) {
	registryLock.Lock()
	defer registryLock.Unlock()
	inst := registry[id]
	if inst == nil {
		return nil, newErr(StatusNotFound, "", nil, "no open instance %d", id)
	}
	return inst, nil
}

func (inst *Instance) ID() uint32      { return inst.id }
func (inst *Instance) Name() string    { return inst.name }
func (inst *Instance) Schema() *Schema { return inst.schema }

// Path returns the database file, or "" for in-memory instances.
func (inst *Instance) Path() string {
	return inst.path
}

// Size returns the database file size in bytes.
func (inst *Instance) Size() int64 {
	inst.stLock.RLock()
	defer inst.stLock.RUnlock()
	if inst.closed.Load() {
		return 0
	}
	size, _ := inst.st.Space()
	return size
}

// Collection returns the collection with the given numeric index.
func (inst *Instance) Collection(index int) (*Collection, error) {
	return inst.schema.Collection(index)
}

func (inst *Instance) storedCollection(index int) (*Collection, error) {
	coll, err := inst.schema.Collection(index)
	if err != nil {
		return nil, err
	}
	if coll.embedded {
		return nil, argErrf(coll.name, "embedded collections have no objects of their own")
	}
	return coll, nil
}

func (inst *Instance) checkTxn(txn *Txn, write bool) error {
	if txn == nil {
		return argErrf("", "nil transaction")
	}
	if txn.inst != inst {
		return argErrf("", "transaction belongs to another instance")
	}
	return txn.check(write)
}

// BeginTxn starts a transaction. Only one write transaction can be active;
// a second one waits for it to end, or fails with TransactionConflict if
// the instance was opened with FailFastWriters.
func (inst *Instance) BeginTxn(write bool) (*Txn, error) {
	if write {
		if err := inst.acquireWriter(); err != nil {
			return nil, err
		}
	}

	inst.stLock.RLock()
	defer inst.stLock.RUnlock()
	if inst.closed.Load() {
		if write {
			inst.releaseWriter()
		}
		return nil, errClosed()
	}
	stx, err := inst.st.BeginTx(write)
	if err != nil {
		if write {
			inst.releaseWriter()
		}
		return nil, ioErr("", err, "cannot begin transaction")
	}

	txn := inst.newTxn(stx, write)
	inst.addTxn(txn)
	if write {
		inst.WriterCount.Add(1)
	} else {
		inst.ReaderCount.Add(1)
	}
	return txn, nil
}

func errClosed() error {
	return newErr(StatusNotFound, "", nil, "instance is closed")
}

func (inst *Instance) acquireWriter() error {
	if inst.opt.FailFastWriters {
		select {
		case inst.writer <- struct{}{}:
			return nil
		default:
			return newErr(StatusTransactionConflict, "", nil, "another write transaction is active")
		}
	}
	inst.PendingWriterCount.Add(1)
	defer inst.PendingWriterCount.Add(-1)
	select {
	case inst.writer <- struct{}{}:
		return nil
	case <-inst.done:
		return errClosed()
	}
}

func (inst *Instance) releaseWriter() {
	<-inst.writer
}

// Close releases one reference to the instance. The last reference closes
// the storage, deregisters the id and, if deleteFromDisk is set, removes the
// database file. Close returns true if the instance was actually closed.
//
// All transactions should be ended before the last Close. Transactions
// still open belong to other goroutines: from now on their operations fail
// with StatusNotFound, and Close waits for their owners to end them.
func (inst *Instance) Close(deleteFromDisk bool) bool {
	registryLock.Lock()
	if inst.refs == 0 {
		registryLock.Unlock()
		return false
	}
	inst.refs--
	if inst.refs > 0 {
		registryLock.Unlock()
		return false
	}
	if registry[inst.id] == inst {
		delete(registry, inst.id)
	}
	registryLock.Unlock()

	inst.closed.Store(true)
	close(inst.done)

	// BeginTxn registers its txn under stLock, so none can appear after this
	inst.stLock.Lock()
	inst.stLock.Unlock()
	inst.waitForTxns()

	inst.stLock.Lock()
	err := inst.st.Sync()
	err = errors.Join(err, inst.st.Close())
	inst.stLock.Unlock()
	if err != nil {
		inst.logger.Error("objdb: close failed", "instance", inst.id, "err", err)
	}

	if deleteFromDisk && inst.path != "" {
		if err := os.Remove(inst.path); err != nil && !os.IsNotExist(err) {
			inst.logger.Error("objdb: cannot delete database", "path", inst.path, "err", err)
		} else {
			inst.logger.Info("objdb: deleted", "instance", inst.id, "path", inst.path)
		}
	} else {
		inst.logger.Info("objdb: closed", "instance", inst.id, "path", inst.path)
	}
	return true
}

func (inst *Instance) addTxn(txn *Txn) {
	inst.txnsLock.Lock()
	defer inst.txnsLock.Unlock()
	inst.txns = append(inst.txns, txn)
}

func (inst *Instance) removeTxn(txn *Txn) {
	inst.txnsLock.Lock()
	defer inst.txnsLock.Unlock()

	found := -1
	for i, t := range inst.txns {
		if t == txn {
			found = i
			break
		}
	}
	if found < 0 {
		panic("txn not found in list")
	}

	n := len(inst.txns)
	inst.txns[found] = inst.txns[n-1]
	inst.txns[n-1] = nil // ensure it gets collected
	inst.txns = inst.txns[:n-1]
	if len(inst.txns) == 0 {
		inst.txnsEnded.Broadcast()
	}
}

func (inst *Instance) waitForTxns() {
	if n := inst.openTxnCount(); n > 0 {
		inst.logger.Warn("objdb: closing with open transactions, waiting for them to end", "instance", inst.id, "count", n, "txns", inst.DescribeOpenTxns())
	}
	inst.txnsLock.Lock()
	defer inst.txnsLock.Unlock()
	for len(inst.txns) > 0 {
		inst.txnsEnded.Wait()
	}
}

func (inst *Instance) openTxns() []*Txn {
	inst.txnsLock.Lock()
	defer inst.txnsLock.Unlock()
	return slices.Clone(inst.txns)
}

func (inst *Instance) openTxnCount() int {
	inst.txnsLock.Lock()
	defer inst.txnsLock.Unlock()
	return len(inst.txns)
}

func (inst *Instance) DescribeOpenTxns() string {
	if !trackTxns {
		return "OPEN TXN TRACKING DISABLED"
	}

	txns := inst.openTxns()
	if len(txns) == 0 {
		return "NO OPEN TRANSACTIONS"
	}

	slices.SortFunc(txns, func(a, b *Txn) int {
		return a.startTime.Compare(b.startTime)
	})

	now := time.Now()

	var buf strings.Builder
	fmt.Fprintf(&buf, "%d OPEN TRANSACTIONS:\n", len(txns))
	for _, txn := range txns {
		ms := now.Sub(txn.startTime).Milliseconds()
		if ms < 100 {
			fmt.Fprintf(&buf, "\n---\n%v open for %d ms\n", txn, ms)
		} else {
			fmt.Fprintf(&buf, "\n---\n%v open for %d ms:\n%s", txn, ms, txn.stack)
		}
	}

	return buf.String()
}
