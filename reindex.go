package statfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// reindex implements spec.md §4.3 reindex(path, oldSize, newSize): rename
// the original file aside, create + open a fresh file of newSize, copy live
// entries across via the block-table insert path, carry revision metadata
// forward, then remove the backup.
//
// Errors are wrapped in ErrReindexFailed; the backup file (path+".old") is
// left on disk for manual recovery on any failure, per spec.md §6.3.
func reindex(path string, newSize int64, logger Logger) (*Handle, error) {
	backupPath := path + ".old"

	if err := os.Rename(path, backupPath); err != nil {
		return nil, fmt.Errorf("%w: rename to backup: %w", ErrReindexFailed, err)
	}

	if err := createFile(path, newSize); err != nil {
		writeReindexMarker(path, backupPath, err)
		return nil, fmt.Errorf("%w: create new file: %w", ErrReindexFailed, err)
	}

	newHandle, err := openHandle(path, logger)
	if err != nil {
		writeReindexMarker(path, backupPath, err)
		return nil, fmt.Errorf("%w: open new file: %w", ErrReindexFailed, err)
	}

	if err := copyLiveEntries(backupPath, newHandle); err != nil {
		writeReindexMarker(path, backupPath, err)
		return nil, fmt.Errorf("%w: %w", ErrReindexFailed, err)
	}

	if err := os.Remove(backupPath); err != nil && logger != nil {
		logger.Warn(fmt.Sprintf("statfile reindex %s: failed to remove backup %s: %v", path, backupPath, err))
	}

	return newHandle, nil
}

// writeReindexMarker records a failed reindex as a durable, atomically
// written marker file next to the backup, per spec.md §6.3 ("a .old backup
// file... after a clean shutdown indicates a failed reindex and MUST be
// handled out of band"). Writing via atomic.WriteFile means a concurrent
// reader of the marker never observes a half-written cause string; failure
// to write the marker itself is not escalated since the reindex error it
// annotates is already being returned to the caller.
func writeReindexMarker(path, backupPath string, cause error) {
	body := fmt.Sprintf("reindex of %s failed: %v\nbackup retained at %s\n", path, cause, backupPath)

	_ = atomic.WriteFile(path+".reindex-failed", strings.NewReader(body))
}

// copyLiveEntries maps the backup file read-only, iterates its blocks
// skipping hash1==0 or value==0 entries, and inserts the rest into dst via
// the block-table put path with touch_access=false, per spec.md §4.3.
func copyLiveEntries(backupPath string, dst *Handle) error {
	f, err := os.Open(backupPath)
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat backup: %w", err)
	}

	data, err := mmapReadOnly(int(f.Fd()), info.Size())
	if err != nil {
		return fmt.Errorf("mmap backup: %w", err)
	}
	defer munmapData(data)

	// validate rewrites a legacy header in place, which the read-only
	// mapping cannot take; a legacy backup is validated and read from a
	// private copy instead.
	if len(data) >= minFileSize && data[offVersion] == legacyVersion[0] && data[offVersion+1] == legacyVersion[1] {
		data = append([]byte(nil), data...)
	}

	result, err := validate(data)
	if err != nil {
		return err
	}

	if result != validateOK {
		return fmt.Errorf("%w: backup file failed validation with result %d", ErrCorrupt, result)
	}

	srcRevision, srcRevTime, err := readRevisionFromBytes(data)
	if err != nil {
		return err
	}

	seekPos, ok := locateSection(data, SectionCommon, headerSize)
	if !ok {
		return ErrSectionNotFound
	}

	sh := decodeSectionHeader(data[seekPos-sectionHeaderSize:])
	src := &blockTable{data: data, base: seekPos, length: sh.Length}

	src.forEach(func(b block) {
		if b.Hash1 == 0 || b.Value == 0 {
			return
		}

		dst.Put(b.Hash1, b.Hash2, time.Time{}, b.Value, false)
	})

	dst.SetRevision(srcRevision, srcRevTime)

	return nil
}

// readRevisionFromBytes reads the revision/rev_time pair directly out of a
// raw mapping, for use before a Handle wraps it.
func readRevisionFromBytes(data []byte) (revision uint64, revTime time.Time, err error) {
	if len(data) < headerSize {
		return 0, time.Time{}, ErrTruncated
	}

	h := decodeHeader(data)

	return h.Revision, time.Unix(int64(h.RevTime), 0), nil
}
