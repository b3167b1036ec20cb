package storage

import "github.com/cockroachdb/pebble/vfs"

// vfsMem returns a fresh in-memory filesystem for OpenInMemory.
func vfsMem() vfs.FS {
	return vfs.NewMem()
}
