//go:build linux

package statfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for fd using fallocate(2), the
// "fallocate-equivalent if available" step of spec.md §4.1 create(). On
// ENOSYS/EOPNOTSUPP (unusual but possible on some filesystems) it falls back
// to a plain ftruncate, matching the non-Linux path in
// preallocate_other.go.
func preallocate(fd int, size int64) error {
	err := unix.Fallocate(fd, 0, 0, size)
	if err == nil {
		return nil
	}

	if err == unix.ENOSYS || err == unix.EOPNOTSUPP {
		return ftruncate(fd, size)
	}

	return fmt.Errorf("%w: fallocate: %w", ErrIO, err)
}

func ftruncate(fd int, size int64) error {
	if err := unix.Ftruncate(fd, size); err != nil {
		return fmt.Errorf("%w: ftruncate: %w", ErrIO, err)
	}

	return nil
}
