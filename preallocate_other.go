//go:build unix && !linux

package statfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes for fd. Non-Linux unix platforms in this
// module's supported set don't get the fallocate fast path; a plain
// ftruncate still gives the file its final size (spec.md §4.1 create()),
// it just doesn't avoid the cost of writing the zero blocks.
func preallocate(fd int, size int64) error {
	return ftruncate(fd, size)
}

func ftruncate(fd int, size int64) error {
	if err := unix.Ftruncate(fd, size); err != nil {
		return fmt.Errorf("%w: ftruncate: %w", ErrIO, err)
	}

	return nil
}
