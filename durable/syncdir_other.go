//go:build !unix

package durable

// Directories cannot be opened for syncing here; renames are durable once
// the file system commits its metadata.
func syncDir(dir string) error {
	return nil
}
