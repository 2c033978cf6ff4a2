package statfile

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Reindex_Preserves_Entries_And_Revision_And_Removes_Backup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stat.bin")
	require.NoError(t, createFile(path, 16384))

	h, err := openHandle(path, NoopLogger())
	require.NoError(t, err)

	type entry struct {
		h1, h2 uint32
		value  float64
	}

	rng := rand.New(rand.NewSource(42))

	entries := make([]entry, 0, 100)
	seen := map[uint32]bool{}

	for len(entries) < 100 {
		h1 := rng.Uint32()
		if h1 == 0 || seen[h1] {
			continue
		}

		seen[h1] = true

		e := entry{h1: h1, h2: rng.Uint32(), value: rng.Float64()*100 + 1}
		entries = append(entries, e)

		h.Put(e.h1, e.h2, time.Unix(0, 0), e.value, false)
	}

	h.SetRevision(42, time.Unix(1700000000, 0))

	require.NoError(t, h.close())

	newHandle, err := reindex(path, 65536, NoopLogger())
	require.NoError(t, err)
	defer newHandle.close()

	for _, e := range entries {
		assert.Equal(t, e.value, newHandle.Get(e.h1, e.h2, time.Unix(0, 0)), "entry h1=0x%x", e.h1)
	}

	rev, revTime := newHandle.GetRevision()
	assert.Equal(t, uint64(42), rev)
	assert.Equal(t, int64(1700000000), revTime.Unix())

	_, statErr := os.Stat(path + ".old")
	assert.True(t, os.IsNotExist(statErr), "backup file should be removed after a successful reindex")
}

func Test_CopyLiveEntries_Skips_Zero_Hash1_And_Zero_Value(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stat.bin")
	require.NoError(t, createFile(path, 16384))

	h, err := openHandle(path, NoopLogger())
	require.NoError(t, err)

	// A live entry and a zero-value entry sharing the same chain.
	h.Put(0x1, 0x1, time.Unix(0, 0), 0.0, false)
	h.Put(0x2, 0x2, time.Unix(0, 0), 5.0, false)

	require.NoError(t, h.close())

	newHandle, err := reindex(path, 65536, NoopLogger())
	require.NoError(t, err)
	defer newHandle.close()

	assert.Equal(t, 0.0, newHandle.Get(0x1, 0x1, time.Unix(0, 0)))
	assert.Equal(t, 5.0, newHandle.Get(0x2, 0x2, time.Unix(0, 0)))
}
