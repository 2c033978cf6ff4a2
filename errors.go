package statfile

import "errors"

// Sentinel errors returned by the statfile engine.
//
// Callers should classify errors with errors.Is. The rebuild-class errors
// (ErrFileTooSmall, ErrBadMagic, ErrBadVersion, ErrTruncated, ErrCorrupt)
// mean the file should be deleted and recreated. ErrBusy and
// ErrCapacityExceeded are operational and may be retried.
var (
	// ErrFileTooSmall indicates a requested or existing size is below the
	// format minimum (header + one section header + one block).
	ErrFileTooSmall = errors.New("statfile: file too small")

	// ErrBadMagic indicates the 3-byte magic does not read "rsd".
	ErrBadMagic = errors.New("statfile: bad magic")

	// ErrBadVersion indicates an unrecognized version that isn't the
	// legacy version eligible for in-place upgrade.
	ErrBadVersion = errors.New("statfile: bad version")

	// ErrTruncated indicates the mapping is shorter than its header/section
	// layout implies.
	ErrTruncated = errors.New("statfile: truncated")

	// ErrCorrupt indicates that reindex found the ".old" backup failing
	// validation. A header checksum mismatch is only logged, never
	// reported as ErrCorrupt.
	ErrCorrupt = errors.New("statfile: corrupt")

	// ErrIO wraps an underlying syscall failure (open, mmap, write,
	// rename, unlink, fallocate, mlock, ...). Use errors.Unwrap for the
	// underlying *os.PathError/syscall.Errno.
	ErrIO = errors.New("statfile: io error")

	// ErrCapacityExceeded indicates the pool is at its open-handle limit
	// (PoolConfig.MaxOpenFiles, capped at StatfilesMax).
	ErrCapacityExceeded = errors.New("statfile: pool capacity exceeded")

	// ErrSectionNotFound indicates locateSection walked off the end of the
	// mapping without finding the requested section code.
	ErrSectionNotFound = errors.New("statfile: section not found")

	// ErrReindexFailed is a composite error for a failed reindex. The
	// ".old" backup file may remain on disk for manual recovery.
	ErrReindexFailed = errors.New("statfile: reindex failed")

	// ErrClosed indicates an operation on an already-closed Handle or Pool.
	ErrClosed = errors.New("statfile: closed")

	// ErrBusy indicates a transient condition — e.g. a concurrent
	// reindex/open holds the file lock. Retry after a short delay.
	ErrBusy = errors.New("statfile: busy")

	// ErrInvalidArgument indicates a caller or configuration error: an
	// unknown symbol, an invalid config, creating a path that is already
	// open, closing a path that is not open, etc.
	ErrInvalidArgument = errors.New("statfile: invalid argument")
)
