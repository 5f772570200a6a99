// Package durable makes file writes survive a crash: data syncs that skip
// unnecessary metadata flushes, and atomic replacement of a file by a fully
// written and synced sibling.
package durable

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Fdatasync triggers the fastest fsync-like operation that ensures durability
// of the data written to the given file.
//
// Fdatasync might be faster than f.Sync() aka fsync thanks to not syncing
// metadata (last modification/access time) that isn't necessary to ensure
// durability of the data.
//
// WARNING: ERRORS RETURNED BY THIS FUNCTION ARE NOT RECOVERABLE. Many operating
// systems and file systems mark modified pages as clean in case of fsync
// failures, so the only sensible handling is to treat the file as corrupted.
func Fdatasync(f *os.File) error {
	return fdatasync(f)
}

// SyncFile opens the file at path and fdatasyncs it.
func SyncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	err = fdatasync(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// SyncDir persists the directory entry changes (creations, renames) of dir.
func SyncDir(dir string) error {
	return syncDir(dir)
}

// ReplaceFile atomically moves src over dst. Both must be on the same file
// system; src must already be synced.
func ReplaceFile(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return err
	}
	return syncDir(filepath.Dir(dst))
}

// WriteFile writes a new version of path through a temporary sibling that is
// synced and then renamed into place, so that a crash leaves either the old
// or the new content. It returns the number of bytes written.
func WriteFile(path string, perm os.FileMode, write func(w io.Writer) (int64, error)) (int64, error) {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}
	n, err := write(f)
	if err == nil {
		err = fdatasync(f)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ReplaceFile(tmp, path)
	}
	if err != nil {
		os.Remove(tmp)
		return n, fmt.Errorf("writing %s: %w", path, err)
	}
	return n, nil
}
