package objdb

import (
	"errors"
	"io"
	"time"

	"github.com/andreyvit/objdb/backup"
	"github.com/andreyvit/objdb/durable"
)

// CopyTo writes a consistent backup of the database to w, in the format of
// package backup, while other transactions keep running. It returns the
// number of bytes written to w. Restore the result with backup.Restore.
func (inst *Instance) CopyTo(w io.Writer, c backup.Compression) (int64, error) {
	if !c.IsValid() {
		return 0, argErrf("", "invalid compression %v", c)
	}
	txn, err := inst.BeginTxn(false)
	if err != nil {
		return 0, err
	}
	defer txn.Abort()

	start := time.Now()
	bw, err := backup.NewWriter(w, c)
	if err != nil {
		return 0, ioErr("", err, "backup failed")
	}
	raw, err := txn.stx.WriteTo(bw)
	if err == nil {
		err = bw.Close()
	}
	if errors.Is(err, errNoSnapshot) {
		return 0, newErr(StatusInvalidArgument, "", err, "in-memory instances cannot be copied")
	} else if err != nil {
		return bw.Written(), ioErr("", err, "backup failed")
	}
	inst.logger.Info("objdb: backup written", "instance", inst.id, "compression", c.String(), "raw", raw, "written", bw.Written(), "ms", time.Since(start).Milliseconds())
	return bw.Written(), nil
}

// CopyToFile writes a backup to path atomically: either the complete backup
// ends up there, or the previous file is left untouched.
func (inst *Instance) CopyToFile(path string, c backup.Compression) (int64, error) {
	n, err := durable.WriteFile(path, 0666, func(w io.Writer) (int64, error) {
		return inst.CopyTo(w, c)
	})
	if err != nil {
		return n, ioErr("", err, "cannot write "+path)
	}
	return n, nil
}
