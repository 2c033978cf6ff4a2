package statfile

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"
)

// On-disk layout constants (spec.md §3.1, §6.1).
//
// The legacy C layout stores multi-byte integers in host byte order. This
// package always encodes/decodes them little-endian with binary.LittleEndian,
// which matches files written on little-endian hosts, and does so explicitly
// rather than relying on struct padding, so the layout is identical
// regardless of how the Go struct is arranged in memory.
const (
	headerSize        = 256
	sectionHeaderSize = 16
	blockSize         = 16

	// chainLength bounds the linear probe window (spec.md §3.3 invariant 5).
	chainLength = 128
)

// Section codes (spec.md §3.1).
const (
	SectionCommon = uint64(1)
	SectionHeader = uint64(2)
	SectionURLs   = uint64(3)
	SectionRegexp = uint64(4)
)

// Version bytes (spec.md §3.1).
var (
	magicBytes     = [3]byte{'r', 's', 'd'}
	currentVersion = [2]byte{'1', '2'}
	legacyVersion  = [2]byte{1, 0}
)

// Header field offsets, matching spec.md §3.1. The spec's prose lists a
// 239-byte reserved run starting at offset 48, which would make the header
//287 bytes; the authoritative figure is the 256-byte total from the §3.1
// entity table and from §6.1's bit-exact layout, so the reserved run here is
// sized to 256-48=208 bytes. The first 4 reserved bytes are repurposed as an
// advisory header checksum (see computeHeaderChecksum) — legacy files have
// zero there, which is treated as "unset", never as corruption.
const (
	offMagic           = 0
	offVersion         = 3
	offPadding         = 5
	offCreateTime      = 8
	offRevision        = 16
	offRevTime         = 24
	offUsedBlocks      = 32
	offTotalBlocks     = 40
	offReserved        = 48
	offHeaderChecksum  = offReserved // first 4 bytes of the reserved run
)

// header is the in-memory decoded form of the 256-byte file header.
type header struct {
	Magic       [3]byte
	Version     [2]byte
	CreateTime  uint64
	Revision    uint64
	RevTime     uint64
	UsedBlocks  uint64
	TotalBlocks uint64
}

// decodeHeader parses the first headerSize bytes of buf.
func decodeHeader(buf []byte) header {
	var h header
	copy(h.Magic[:], buf[offMagic:offMagic+3])
	copy(h.Version[:], buf[offVersion:offVersion+2])
	h.CreateTime = binary.LittleEndian.Uint64(buf[offCreateTime:])
	h.Revision = binary.LittleEndian.Uint64(buf[offRevision:])
	h.RevTime = binary.LittleEndian.Uint64(buf[offRevTime:])
	h.UsedBlocks = binary.LittleEndian.Uint64(buf[offUsedBlocks:])
	h.TotalBlocks = binary.LittleEndian.Uint64(buf[offTotalBlocks:])

	return h
}

// encodeHeader serializes h into a fresh headerSize-byte buffer. Reserved
// bytes are left zero per spec.md §3.1.
func encodeHeader(h header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[offMagic:], h.Magic[:])
	copy(buf[offVersion:], h.Version[:])
	// offPadding..offCreateTime is 3 zero bytes, already zero.
	binary.LittleEndian.PutUint64(buf[offCreateTime:], h.CreateTime)
	binary.LittleEndian.PutUint64(buf[offRevision:], h.Revision)
	binary.LittleEndian.PutUint64(buf[offRevTime:], h.RevTime)
	binary.LittleEndian.PutUint64(buf[offUsedBlocks:], h.UsedBlocks)
	binary.LittleEndian.PutUint64(buf[offTotalBlocks:], h.TotalBlocks)
	// Remaining bytes through headerSize are the reserved run, already zero.

	return buf
}

// sectionHeader is the 16-byte record preceding each section's block run.
type sectionHeader struct {
	Code   uint64
	Length uint64 // length in blocks, see spec.md §9 open question
}

func decodeSectionHeader(buf []byte) sectionHeader {
	return sectionHeader{
		Code:   binary.LittleEndian.Uint64(buf[0:]),
		Length: binary.LittleEndian.Uint64(buf[8:]),
	}
}

func encodeSectionHeader(s sectionHeader) []byte {
	buf := make([]byte, sectionHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:], s.Code)
	binary.LittleEndian.PutUint64(buf[8:], s.Length)

	return buf
}

// block is the 16-byte (hash1, hash2, value) record.
type block struct {
	Hash1 uint32
	Hash2 uint32
	Value float64
}

func decodeBlock(buf []byte) block {
	return block{
		Hash1: binary.LittleEndian.Uint32(buf[0:]),
		Hash2: binary.LittleEndian.Uint32(buf[4:]),
		Value: decodeFloat64(buf[8:]),
	}
}

func encodeBlockInto(buf []byte, b block) {
	binary.LittleEndian.PutUint32(buf[0:], b.Hash1)
	binary.LittleEndian.PutUint32(buf[4:], b.Hash2)
	encodeFloat64Into(buf[8:], b.Value)
}

// leUint32 reads a little-endian uint32 without decoding the whole block.
func leUint32(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

func decodeFloat64(buf []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(buf))
}

func encodeFloat64Into(buf []byte, v float64) {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
}

// isFreeBlock reports whether a block is an empty slot per spec.md §3.1:
// hash1 == 0 AND hash2 == 0.
func isFreeBlock(hash1, hash2 uint32) bool {
	return hash1 == 0 && hash2 == 0
}

// validateResult classifies the outcome of validate.
type validateResult int

const (
	validateOK validateResult = iota
	validateTooShort
	validateBadMagic
	validateBadVersion
	validateTruncated
)

// minFileSize is the smallest mapping validate() will accept: one header,
// one section header, one block.
const minFileSize = headerSize + sectionHeaderSize + blockSize

// validate checks a mapped file's header per spec.md §4.1. On a legacy
// version it invokes upgradeLegacyHeader in place before re-validating.
// It does not itself decide what to do about IO errors; callers translate
// the validateResult into a sentinel error.
func validate(data []byte) (validateResult, error) {
	if len(data) < minFileSize {
		return validateTooShort, nil
	}

	if data[offMagic] != magicBytes[0] || data[offMagic+1] != magicBytes[1] || data[offMagic+2] != magicBytes[2] {
		return validateBadMagic, nil
	}

	version := [2]byte{data[offVersion], data[offVersion+1]}

	switch version {
	case currentVersion:
		// fallthrough to truncation check below.
	case legacyVersion:
		upgradeLegacyHeader(data)
	default:
		return validateBadVersion, nil
	}

	nblocks, err := sectionBlockCount(data, headerSize)
	if err != nil {
		return validateTruncated, nil
	}

	required := headerSize + sectionHeaderSize + nblocks*blockSize
	if uint64(len(data)) < required {
		return validateTruncated, nil
	}

	return validateOK, nil
}

// sectionBlockCount reads the length field of the section header located at
// byte offset `at` and returns it (in blocks).
func sectionBlockCount(data []byte, at uint64) (uint64, error) {
	if uint64(len(data)) < at+sectionHeaderSize {
		return 0, fmt.Errorf("%w: section header at %d", ErrTruncated, at)
	}

	sh := decodeSectionHeader(data[at:])

	return sh.Length, nil
}

// sectionByteSpan converts a section's block-count length to the number of
// bytes it and its header occupy on disk, per spec.md §9 open question 2:
// "length" on disk is blocks, callers convert to bytes when stepping
// between sections.
func sectionByteSpan(length uint64) uint64 {
	return sectionHeaderSize + length*blockSize
}

// locateSection walks section headers starting at byte offset startAt
// (headerSize for the first section), looking for a section whose code
// matches. Returns the byte offset of that
// section's block[0], or ok=false if it walked off the end of the mapping.
func locateSection(data []byte, code uint64, startAt uint64) (seekPos uint64, ok bool) {
	pos := startAt

	for pos+sectionHeaderSize <= uint64(len(data)) {
		sh := decodeSectionHeader(data[pos:])

		blockStart := pos + sectionHeaderSize
		span := sectionByteSpan(sh.Length)

		if sh.Code == code {
			return blockStart, true
		}

		pos += span
	}

	return 0, false
}

// computeHeaderChecksum returns a CRC32-C (Castagnoli) checksum over the
// header's stable fields (magic, version, padding, create_time,
// total_blocks). revision, rev_time and used_blocks are excluded because Put
// and the revision setters rewrite them in place. This is an advisory
// addition (SPEC_FULL.md "Supplemented features" #1): legacy readers never
// wrote one, so a zero/mismatching checksum is only ever logged, never
// treated as corruption.
func computeHeaderChecksum(data []byte) uint32 {
	tab := crc32.MakeTable(crc32.Castagnoli)
	sum := crc32.Update(0, tab, data[offMagic:offRevision])

	return crc32.Update(sum, tab, data[offTotalBlocks:offTotalBlocks+8])
}

// writeHeaderChecksum stores the advisory checksum into the header's
// reserved run.
func writeHeaderChecksum(data []byte) {
	binary.LittleEndian.PutUint32(data[offHeaderChecksum:], computeHeaderChecksum(data))
}

// headerChecksumOK reports whether the stored advisory checksum matches, or
// is unset (all zero, meaning the file predates this checksum).
func headerChecksumOK(data []byte) bool {
	stored := binary.LittleEndian.Uint32(data[offHeaderChecksum:])
	if stored == 0 {
		return true
	}

	return stored == computeHeaderChecksum(data)
}
