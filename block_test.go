package statfile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, length uint64) *blockTable {
	t.Helper()

	data := make([]byte, length*blockSize)

	return &blockTable{data: data, base: 0, length: length}
}

func Test_BlockTable_Get_Returns_Zero_On_Miss(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 128)

	assert.Equal(t, 0.0, tbl.get(0x11, 0x22, time.Unix(0, 0), nil))
}

func Test_BlockTable_Put_Then_Get_RoundTrips(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 4079)

	delta := tbl.put(0x11111111, 0x22222222, 1.5)
	require.Equal(t, uint64(1), delta)

	assert.Equal(t, 1.5, tbl.get(0x11111111, 0x22222222, time.Unix(0, 0), nil))
	assert.Equal(t, 0.0, tbl.get(0x33, 0x33, time.Unix(0, 0), nil))
}

func Test_BlockTable_Put_Overwrites_Exact_Match_Without_Incrementing_Used(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 4079)

	require.Equal(t, uint64(1), tbl.put(0x11111111, 0x22222222, 1.5))
	require.Equal(t, uint64(0), tbl.put(0x11111111, 0x22222222, 2.5))

	assert.Equal(t, 2.5, tbl.get(0x11111111, 0x22222222, time.Unix(0, 0), nil))
}

func Test_BlockTable_Get_Updates_AccessTime(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 8)

	var accessTime uint64

	now := time.Unix(1700000000, 0)
	tbl.get(0x1, 0x1, now, &accessTime)

	assert.Equal(t, uint64(1700000000), accessTime)
}

func Test_BlockTable_Put_Evicts_Minimum_Value_When_Chain_Full(t *testing.T) {
	t.Parallel()

	// total_blocks=128, all keys collide on slot0 (h1 mod 128 == 0).
	tbl := newTestTable(t, 128)

	for i := 1; i <= 129; i++ {
		h1 := uint32(i) * 128 // always slot0 == 0
		tbl.put(h1, 0, float64(i))
	}

	// The key inserted with value 1.0 should have been evicted.
	assert.Equal(t, 0.0, tbl.get(128, 0, time.Unix(0, 0), nil))

	for i := 2; i <= 129; i++ {
		h1 := uint32(i) * 128
		assert.Equal(t, float64(i), tbl.get(h1, 0, time.Unix(0, 0), nil), "value %d should still be retrievable", i)
	}
}

func Test_BlockTable_ProbeLimit_Clamps_Without_Wraparound(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 200)

	assert.Equal(t, uint64(chainLength), tbl.probeLimit(0))
	assert.Equal(t, uint64(200-150), tbl.probeLimit(150))
	assert.Equal(t, uint64(0), tbl.probeLimit(200))
}

func Test_BlockTable_CountUsed_Counts_Blocks_With_Nonzero_Hash1(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 16)

	tbl.put(0x1, 0x1, 1.0)
	tbl.put(0x2, 0x2, 2.0)

	assert.Equal(t, uint64(2), tbl.countUsed())
}

func Test_BlockTable_ForEach_Visits_Occupied_Blocks_In_Storage_Order(t *testing.T) {
	t.Parallel()

	tbl := newTestTable(t, 16)

	tbl.put(0x5, 0x5, 5.0)
	tbl.put(0x3, 0x3, 3.0)

	var seen []block

	tbl.forEach(func(b block) {
		seen = append(seen, b)
	})

	require.Len(t, seen, 2)
	assert.Equal(t, uint32(0x3), seen[0].Hash1)
	assert.Equal(t, uint32(0x5), seen[1].Hash1)
}
