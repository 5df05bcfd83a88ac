// Package storage is the local filesystem collaborator used by the workplan
// builder and the executors.
package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// FS is the local filesystem surface the fetcher depends on.
type FS interface {
	// Exists reports whether path exists.
	Exists(path string) bool

	// Remove deletes path. Removing a missing path is not an error.
	Remove(path string) error

	// Usage reports the capacity of the volume holding path.
	Usage(path string) (Usage, error)

	// EnsureDir creates path and its parents.
	EnsureDir(path string) error

	// Size returns the byte size of a local file.
	Size(path string) (int64, error)
}

// Usage describes one volume in bytes.
type Usage struct {
	Used  uint64
	Total uint64
	Free  uint64
}

// LocalFS implements FS on the host filesystem.
type LocalFS struct{}

// NewLocalFS returns the host filesystem.
func NewLocalFS() LocalFS {
	return LocalFS{}
}

// Exists implements FS.Exists.
func (LocalFS) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove implements FS.Remove.
func (LocalFS) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Usage implements FS.Usage. Used is computed as (blocks - bfree) * bsize,
// so Used + Free can be less than Total on volumes with reserved blocks.
func (LocalFS) Usage(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}

	bsize := uint64(st.Bsize)
	return Usage{
		Total: st.Blocks * bsize,
		Free:  st.Bavail * bsize,
		Used:  (st.Blocks - st.Bfree) * bsize,
	}, nil
}

// EnsureDir implements FS.EnsureDir.
func (LocalFS) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// Size implements FS.Size.
func (LocalFS) Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}
