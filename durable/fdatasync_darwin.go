package durable

import (
	"os"

	"golang.org/x/sys/unix"
)

// fsync on macOS does not flush the drive cache; F_FULLFSYNC does.
func fdatasync(f *os.File) error {
	_, err := unix.FcntlInt(f.Fd(), unix.F_FULLFSYNC, 0)
	if err != nil {
		return f.Sync()
	}
	return nil
}
