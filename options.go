package objdb

import (
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

// Options configure Open. Only InstanceID, Schema and either Dir or InMemory
// are required.
type Options struct {
	// InstanceID is the process-wide numeric handle of the instance.
	InstanceID uint32

	// Name is the base name of the database file (default "default").
	Name string

	// Dir is the directory holding the database file <Name>.objdb.
	Dir string

	Schema *Schema

	// MaxSizeMiB is the initial mmap size; 0 picks a default.
	MaxSizeMiB int

	// RelaxedDurability skips the fsync on every commit; committed data can
	// be lost (but never corrupted) on power failure.
	RelaxedDurability bool

	// Compact enables automatic compaction on open; nil disables it.
	Compact *CompactCondition

	// FailFastWriters makes BeginTxn(true) fail with TransactionConflict
	// instead of waiting while another write transaction is active.
	FailFastWriters bool

	// InMemory keeps everything in process memory; Dir is ignored.
	InMemory bool

	// Logf receives per-operation log lines when Verbose is set.
	Logf    func(format string, args ...any)
	Verbose bool

	// Logger receives lifecycle events (open, migration, compaction).
	Logger *slog.Logger

	// OpenTimeout bounds waiting for the file lock held by another process.
	OpenTimeout time.Duration
}

const (
	defaultName        = "default"
	fileSuffix         = ".objdb"
	defaultMaxSizeMiB  = 1024
	defaultOpenTimeout = 10 * time.Second
	compactTxMaxSize   = 64 * 1024 * 1024
)

func (opt *Options) applyDefaults() {
	if opt.Name == "" {
		opt.Name = defaultName
	}
	if opt.MaxSizeMiB <= 0 {
		opt.MaxSizeMiB = defaultMaxSizeMiB
	}
	if opt.OpenTimeout == 0 {
		opt.OpenTimeout = defaultOpenTimeout
	}
	if opt.Logf == nil {
		opt.Logf = func(string, ...any) {}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
}

func (opt *Options) boltOptions() *bbolt.Options {
	bopt := &bbolt.Options{}
	*bopt = *bbolt.DefaultOptions
	bopt.Timeout = opt.OpenTimeout
	bopt.InitialMmapSize = opt.MaxSizeMiB * 1024 * 1024
	bopt.FreelistType = bbolt.FreelistMapType
	if opt.RelaxedDurability {
		bopt.NoSync = true
		bopt.NoFreelistSync = true
	}
	return bopt
}
