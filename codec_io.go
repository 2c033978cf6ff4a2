package statfile

import (
	"fmt"
	"os"
	"time"
)

// blockBatchSize is how many zeroed blocks create() writes per syscall,
// per spec.md §4.1 ("writes nblocks zeroed blocks in batches (e.g., 256 at
// a time)").
const blockBatchSize = 256

// nowSeconds is overridable in tests; defaults to the real wall clock.
var nowSeconds = func() uint64 { return uint64(time.Now().Unix()) }

// computeBlockCount derives total_blocks from a requested file size, per
// spec.md §4.1 and §6.1: nblocks = (size - header - section) / block.
func computeBlockCount(size int64) (uint64, error) {
	avail := size - headerSize - sectionHeaderSize
	if avail < blockSize {
		return 0, fmt.Errorf("%w: size %d too small for even one block", ErrFileTooSmall, size)
	}

	return uint64(avail) / blockSize, nil
}

// createFile implements the codec create(path, size) operation of spec.md
// §4.1: preallocate, write header, write one "common" section header, write
// nblocks zeroed blocks in batches. The file must not already exist.
func createFile(path string, size int64) error {
	nblocks, err := computeBlockCount(size)
	if err != nil {
		return err
	}

	if nblocks < 1 {
		return fmt.Errorf("%w: nblocks must be >= 1", ErrFileTooSmall)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create: %w", ErrIO, err)
	}
	defer f.Close()

	finalSize := headerSize + sectionByteSpan(nblocks)

	if err := preallocate(int(f.Fd()), int64(finalSize)); err != nil {
		_ = os.Remove(path)
		return err
	}

	h := header{
		Magic:       magicBytes,
		Version:     currentVersion,
		CreateTime:  nowSeconds(),
		TotalBlocks: nblocks,
	}

	hdrBuf := encodeHeader(h)
	writeHeaderChecksum(hdrBuf)

	if _, err := f.WriteAt(hdrBuf, 0); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: write header: %w", ErrIO, err)
	}

	sh := encodeSectionHeader(sectionHeader{Code: SectionCommon, Length: nblocks})
	if _, err := f.WriteAt(sh, headerSize); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("%w: write section header: %w", ErrIO, err)
	}

	if err := writeZeroBlocks(f, headerSize+sectionHeaderSize, nblocks); err != nil {
		_ = os.Remove(path)
		return err
	}

	return nil
}

// writeZeroBlocks writes n zeroed blocks starting at byte offset `at`, in
// batches of blockBatchSize.
func writeZeroBlocks(f *os.File, at uint64, n uint64) error {
	batch := make([]byte, blockBatchSize*blockSize)

	remaining := n
	offset := at

	for remaining > 0 {
		count := remaining
		if count > blockBatchSize {
			count = blockBatchSize
		}

		buf := batch[:count*blockSize]

		if _, err := f.WriteAt(buf, int64(offset)); err != nil {
			return fmt.Errorf("%w: write zero blocks: %w", ErrIO, err)
		}

		offset += count * blockSize
		remaining -= count
	}

	return nil
}

// appendSection writes a new section (header + length zeroed blocks) at the
// end of the handle's file and remaps it, per spec.md §4.1 append_section.
// Callers must hold h.mu across the call (the handle mutex guards remaps).
func (h *Handle) appendSection(code, length uint64) error {
	if h.closed {
		return ErrClosed
	}

	oldSize := h.mapLen

	sh := encodeSectionHeader(sectionHeader{Code: code, Length: length})

	if _, err := h.file.WriteAt(sh, int64(oldSize)); err != nil {
		return fmt.Errorf("%w: append section header: %w", ErrIO, err)
	}

	if err := writeZeroBlocks(h.file, oldSize+sectionHeaderSize, length); err != nil {
		return err
	}

	newSize := oldSize + sectionByteSpan(length)

	return h.remap(newSize)
}
