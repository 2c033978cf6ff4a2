package statfile

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"
)

// sectionCursor identifies the section a Handle currently treats as active.
type sectionCursor struct {
	code   uint64
	length uint64 // blocks
}

// Handle owns a single open statfile: its descriptor, mapping, current
// section cursor and access timestamps (spec.md §3.2). Handles are created
// and destroyed exclusively through a Pool.
type Handle struct {
	mu sync.Mutex // guards remap operations and the fields below

	path string
	file *os.File

	data   []byte // the full mmap'd region
	mapLen uint64 // must equal len(data); kept for spec.md readability

	cursor  sectionCursor
	seekPos uint64 // byte offset of cursor section's block[0]

	openTime   uint64
	accessTime uint64

	mlocked bool
	closed  bool

	logger Logger
}

// table returns a blockTable view over the handle's current section.
// Invariant (spec.md §3.2): seekPos + length*blockSize <= mapLen.
func (h *Handle) table() *blockTable {
	return &blockTable{data: h.data, base: h.seekPos, length: h.cursor.length}
}

// Get implements spec.md §4.2 get(h1, h2, now). h1==0 && h2==0 is not a
// valid key (callers guarantee non-zero keys per spec.md invariant 4) but is
// not rejected here since a miss and a guaranteed-absent key behave
// identically: both return 0.0.
func (h *Handle) Get(h1, h2 uint32, now time.Time) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return 0.0
	}

	return h.table().get(h1, h2, now, &h.accessTime)
}

// Put implements spec.md §4.2 put(h1, h2, t, value, touch_access).
func (h *Handle) Put(h1, h2 uint32, t time.Time, value float64, touchAccess bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	if touchAccess {
		h.accessTime = uint64(t.Unix())
	}

	delta := h.table().put(h1, h2, value)
	if delta > 0 {
		h.addUsedBlocks(delta)
	}
}

// addUsedBlocks increments the header's used_blocks counter. Per spec.md §5
// this is advisory and intentionally not made atomic across processes: a
// plain read-modify-write is what the spec calls out as acceptable drift.
func (h *Handle) addUsedBlocks(delta uint64) {
	cur := binary.LittleEndian.Uint64(h.data[offUsedBlocks:])
	binary.LittleEndian.PutUint64(h.data[offUsedBlocks:], cur+delta)
}

// readUsedBlocks returns the current used_blocks header field.
func (h *Handle) readUsedBlocks() uint64 {
	return binary.LittleEndian.Uint64(h.data[offUsedBlocks:])
}

// TotalBlocks returns total_blocks from the header.
func (h *Handle) TotalBlocks() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return binary.LittleEndian.Uint64(h.data[offTotalBlocks:])
}

// UsedBlocks returns the advisory used_blocks header field.
func (h *Handle) UsedBlocks() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.readUsedBlocks()
}

// Path returns the handle's backing file path.
func (h *Handle) Path() string { return h.path }

// openHandle opens path, mmaps it fully, validates the header, and
// initializes the cursor to the first section (spec.md §4.3 open()).
// Callers (Pool.Open) are responsible for the size-drift reindex check
// (step 3 of §4.3) before calling this.
func openHandle(path string, logger Logger) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrIO, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat: %w", ErrIO, err)
	}

	size := info.Size()
	if size < minFileSize {
		_ = f.Close()
		return nil, ErrFileTooSmall
	}

	// Advisory lock during validation, to avoid racing a concurrent
	// creator (spec.md §5).
	if err := flockExclusiveNB(int(f.Fd())); err != nil {
		_ = f.Close()
		return nil, err
	}

	data, err := mmapFull(int(f.Fd()), size)
	if err != nil {
		_ = flockUnlock(int(f.Fd()))
		_ = f.Close()

		return nil, err
	}

	result, err := validate(data)
	if err != nil {
		_ = flockUnlock(int(f.Fd()))
		_ = munmapData(data)
		_ = f.Close()

		return nil, err
	}

	switch result {
	case validateTooShort:
		_ = flockUnlock(int(f.Fd()))
		_ = munmapData(data)
		_ = f.Close()

		return nil, ErrFileTooSmall
	case validateBadMagic:
		_ = flockUnlock(int(f.Fd()))
		_ = munmapData(data)
		_ = f.Close()

		return nil, ErrBadMagic
	case validateBadVersion:
		_ = flockUnlock(int(f.Fd()))
		_ = munmapData(data)
		_ = f.Close()

		return nil, ErrBadVersion
	case validateTruncated:
		_ = flockUnlock(int(f.Fd()))
		_ = munmapData(data)
		_ = f.Close()

		return nil, ErrTruncated
	}

	if !headerChecksumOK(data) && logger != nil {
		logger.Warn(fmt.Sprintf("statfile %s: header checksum mismatch (advisory, ignored)", path))
	}

	if err := flockUnlock(int(f.Fd())); err != nil {
		_ = munmapData(data)
		_ = f.Close()

		return nil, err
	}

	seekPos, ok := locateSection(data, SectionCommon, headerSize)
	if !ok {
		_ = munmapData(data)
		_ = f.Close()

		return nil, ErrSectionNotFound
	}

	sh := decodeSectionHeader(data[seekPos-sectionHeaderSize:])

	now := nowSeconds()

	h := &Handle{
		path:       path,
		file:       f,
		data:       data,
		mapLen:     uint64(size),
		cursor:     sectionCursor{code: sh.Code, length: sh.Length},
		seekPos:    seekPos,
		openTime:   now,
		accessTime: now,
		logger:     logger,
	}

	if err := h.preload(); err != nil && logger != nil {
		logger.Warn(fmt.Sprintf("statfile %s: preload: %v", path, err))
	}

	return h, nil
}

// preload implements spec.md §4.3 step 6: madvise(SEQUENTIAL) then touch one
// byte per page to fault the mapping in.
func (h *Handle) preload() error {
	if err := madviseSequential(h.data); err != nil {
		return err
	}

	ps := pageSize()
	if ps <= 0 {
		ps = 4096
	}

	var sink byte
	for i := 0; i < len(h.data); i += ps {
		sink += h.data[i]
	}
	_ = sink

	return nil
}

// lockPages attempts mlock on the mapping. On failure it returns the error
// so the pool can demote to a warning and disable pool-wide mlock (spec.md
// §4.3 step 5, §7).
func (h *Handle) lockPages() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := mlockData(h.data); err != nil {
		return err
	}

	h.mlocked = true

	return nil
}

// remap grows the handle's mapping to newSize after append_section wrote
// new bytes to the underlying file. Callers must hold h.mu.
func (h *Handle) remap(newSize uint64) error {
	if err := munmapData(h.data); err != nil {
		return err
	}

	data, err := mmapFull(int(h.file.Fd()), int64(newSize))
	if err != nil {
		return err
	}

	h.data = data
	h.mapLen = newSize

	return nil
}

// close flushes with MS_ASYNC and unmaps, per spec.md §3.4 "close()".
func (h *Handle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}

	h.closed = true

	var firstErr error

	if h.mlocked {
		if err := munlockData(h.data); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := msyncAsync(h.data); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := munmapData(h.data); err != nil && firstErr == nil {
		firstErr = err
	}

	if err := h.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%w: close: %w", ErrIO, err)
	}

	return firstErr
}
