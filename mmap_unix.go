//go:build unix

package statfile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// mmapFull maps the entire file referenced by fd as PROT_READ|PROT_WRITE,
// MAP_SHARED, per spec.md §4.3 step 4. The returned slice has length size.
func mmapFull(fd int, size int64) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %w", ErrIO, err)
	}

	return data, nil
}

// mmapReadOnly maps fd read-only, used by reindex to read the ".old" backup
// file without risking a write to it (spec.md §4.3 reindex).
func mmapReadOnly(fd int, size int64) ([]byte, error) {
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap(PROT_READ): %w", ErrIO, err)
	}

	return data, nil
}

// munmapData unmaps a mapping previously returned by mmapFull.
func munmapData(data []byte) error {
	if data == nil {
		return nil
	}

	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("%w: munmap: %w", ErrIO, err)
	}

	return nil
}

// msyncAsync flushes the mapping with MS_ASYNC, the only durability mode the
// engine performs internally (spec.md §5, Non-goals: best-effort durability
// only). Callers needing a synchronous flush must msyncSync explicitly.
func msyncAsync(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Msync(data, unix.MS_ASYNC); err != nil {
		return fmt.Errorf("%w: msync(MS_ASYNC): %w", ErrIO, err)
	}

	return nil
}

// msyncSync flushes the mapping synchronously. It is not called by the
// pool/handle flush path and is not exported, so the package offers no
// public synchronous flush.
func msyncSync(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("%w: msync(MS_SYNC): %w", ErrIO, err)
	}

	return nil
}

// mlockData pins the mapping's pages in memory (spec.md §4.3 step 5).
func mlockData(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Mlock(data); err != nil {
		return fmt.Errorf("%w: mlock: %w", ErrIO, err)
	}

	return nil
}

// munlockData releases a pin previously taken by mlockData.
func munlockData(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Munlock(data); err != nil {
		return fmt.Errorf("%w: munlock: %w", ErrIO, err)
	}

	return nil
}

// madviseSequential hints the kernel readahead policy (spec.md §4.3 step 6:
// "madvise(SEQUENTIAL) then touch one byte per page to fault in").
func madviseSequential(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		return fmt.Errorf("%w: madvise: %w", ErrIO, err)
	}

	return nil
}

// pageSize returns the host page size, used by the preload touch loop.
func pageSize() int {
	return unix.Getpagesize()
}

// flockExclusiveNB takes a non-blocking advisory exclusive lock on fd, used
// during validate-on-open to exclude a concurrent creator (spec.md §5).
// Returns ErrBusy if another process holds the lock.
func flockExclusiveNB(fd int) error {
	err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}

	if err == unix.EWOULDBLOCK {
		return ErrBusy
	}

	return fmt.Errorf("%w: flock: %w", ErrIO, err)
}

// flockUnlock releases an advisory lock taken by flockExclusiveNB.
func flockUnlock(fd int) error {
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("%w: flock unlock: %w", ErrIO, err)
	}

	return nil
}
