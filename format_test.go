package statfile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeHeader_RoundTrips_Through_DecodeHeader(t *testing.T) {
	t.Parallel()

	h := header{
		Magic:       magicBytes,
		Version:     currentVersion,
		CreateTime:  1700000000,
		Revision:    7,
		RevTime:     1700000100,
		UsedBlocks:  3,
		TotalBlocks: 4079,
	}

	buf := encodeHeader(h)
	require.Len(t, buf, headerSize)

	got := decodeHeader(buf)

	if diff := cmp.Diff(h, got); diff != "" {
		t.Fatalf("header round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_EncodeHeader_Spells_Magic_And_Version_At_Fixed_Offsets(t *testing.T) {
	t.Parallel()

	buf := encodeHeader(header{Magic: magicBytes, Version: currentVersion})

	assert.Equal(t, byte('r'), buf[0])
	assert.Equal(t, byte('s'), buf[1])
	assert.Equal(t, byte('d'), buf[2])
	assert.Equal(t, byte('1'), buf[3])
	assert.Equal(t, byte('2'), buf[4])
}

func Test_EncodeBlock_RoundTrips_Through_DecodeBlock(t *testing.T) {
	t.Parallel()

	want := block{Hash1: 0x11111111, Hash2: 0x22222222, Value: 1.5}

	buf := make([]byte, blockSize)
	encodeBlockInto(buf, want)

	got := decodeBlock(buf)

	assert.Equal(t, want, got)
}

func Test_IsFreeBlock_True_Only_When_Both_Hashes_Zero(t *testing.T) {
	t.Parallel()

	assert.True(t, isFreeBlock(0, 0))
	assert.False(t, isFreeBlock(1, 0))
	assert.False(t, isFreeBlock(0, 1))
	assert.False(t, isFreeBlock(1, 1))
}

func Test_Validate_Classifies_TooShort(t *testing.T) {
	t.Parallel()

	result, err := validate(make([]byte, minFileSize-1))
	require.NoError(t, err)
	assert.Equal(t, validateTooShort, result)
}

func Test_Validate_Classifies_BadMagic(t *testing.T) {
	t.Parallel()

	data := make([]byte, minFileSize)
	copy(data[offVersion:], currentVersion[:])
	copy(data[offMagic:], []byte("xxx"))

	result, err := validate(data)
	require.NoError(t, err)
	assert.Equal(t, validateBadMagic, result)
}

func Test_Validate_Classifies_BadVersion(t *testing.T) {
	t.Parallel()

	data := make([]byte, minFileSize)
	copy(data[offMagic:], magicBytes[:])
	data[offVersion] = '9'
	data[offVersion+1] = '9'

	result, err := validate(data)
	require.NoError(t, err)
	assert.Equal(t, validateBadVersion, result)
}

func Test_Validate_Upgrades_Legacy_Version_In_Place(t *testing.T) {
	t.Parallel()

	nblocks := uint64(1)
	data := make([]byte, headerSize+sectionByteSpan(nblocks))
	copy(data[offMagic:], magicBytes[:])
	copy(data[offVersion:], legacyVersion[:])
	copy(data[headerSize:], encodeSectionHeader(sectionHeader{Code: SectionCommon, Length: nblocks}))

	result, err := validate(data)
	require.NoError(t, err)
	assert.Equal(t, validateOK, result)
	assert.Equal(t, currentVersion[:], data[offVersion:offVersion+2])
}

func Test_Validate_Classifies_Truncated_When_Section_Claims_More_Blocks_Than_Present(t *testing.T) {
	t.Parallel()

	data := make([]byte, minFileSize)
	copy(data[offMagic:], magicBytes[:])
	copy(data[offVersion:], currentVersion[:])
	copy(data[headerSize:], encodeSectionHeader(sectionHeader{Code: SectionCommon, Length: 1000}))

	result, err := validate(data)
	require.NoError(t, err)
	assert.Equal(t, validateTruncated, result)
}

func Test_LocateSection_Finds_Section_By_Code(t *testing.T) {
	t.Parallel()

	nblocks := uint64(2)
	data := make([]byte, headerSize+sectionByteSpan(nblocks))
	copy(data[headerSize:], encodeSectionHeader(sectionHeader{Code: SectionCommon, Length: nblocks}))

	seekPos, ok := locateSection(data, SectionCommon, headerSize)
	require.True(t, ok)
	assert.Equal(t, uint64(headerSize+sectionHeaderSize), seekPos)
}

func Test_LocateSection_Returns_NotFound_Past_End_Of_Mapping(t *testing.T) {
	t.Parallel()

	data := make([]byte, headerSize+sectionByteSpan(1))
	copy(data[headerSize:], encodeSectionHeader(sectionHeader{Code: SectionCommon, Length: 1}))

	_, ok := locateSection(data, SectionURLs, headerSize)
	assert.False(t, ok)
}

func Test_HeaderChecksum_Detects_Tampering_But_Treats_Unset_As_OK(t *testing.T) {
	t.Parallel()

	data := encodeHeader(header{Magic: magicBytes, Version: currentVersion, TotalBlocks: 10})

	// Checksum field left zero: legacy/unset files are treated as OK.
	assert.True(t, headerChecksumOK(data))

	writeHeaderChecksum(data)
	assert.True(t, headerChecksumOK(data))

	data[offCreateTime] ^= 0xFF
	assert.False(t, headerChecksumOK(data))
}

func Test_ComputeBlockCount_Matches_Spec_Formula(t *testing.T) {
	t.Parallel()

	nblocks, err := computeBlockCount(65536)
	require.NoError(t, err)
	assert.Equal(t, uint64(4079), nblocks)
}

func Test_ComputeBlockCount_Rejects_Sizes_Below_One_Block(t *testing.T) {
	t.Parallel()

	_, err := computeBlockCount(headerSize + sectionHeaderSize + blockSize - 1)
	require.ErrorIs(t, err, ErrFileTooSmall)
}
