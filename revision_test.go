package statfile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Handle_SetRevision_Then_GetRevision_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stat.bin")
	require.NoError(t, createFile(path, 65536))

	h, err := openHandle(path, NoopLogger())
	require.NoError(t, err)
	defer h.close()

	h.SetRevision(9, time.Unix(1700000000, 0))

	rev, revTime := h.GetRevision()
	assert.Equal(t, uint64(9), rev)
	assert.Equal(t, int64(1700000000), revTime.Unix())
}

func Test_Handle_IncRevision_Bumps_By_One_And_Stamps_Now(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stat.bin")
	require.NoError(t, createFile(path, 65536))

	h, err := openHandle(path, NoopLogger())
	require.NoError(t, err)
	defer h.close()

	h.SetRevision(5, time.Unix(0, 0))

	now := time.Unix(1700000500, 0)
	newRev := h.IncRevision(now)

	assert.Equal(t, uint64(6), newRev)

	rev, revTime := h.GetRevision()
	assert.Equal(t, uint64(6), rev)
	assert.Equal(t, now.Unix(), revTime.Unix())
}

func Test_DefaultSynchronizer_Delegates_To_Handle_Methods(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stat.bin")
	require.NoError(t, createFile(path, 65536))

	h, err := openHandle(path, NoopLogger())
	require.NoError(t, err)
	defer h.close()

	sync := DefaultSynchronizer()

	newRev := sync.IncRevision(h, time.Unix(1700000600, 0))
	assert.Equal(t, uint64(1), newRev)

	rev, revTime := sync.GetRevision(h)
	assert.Equal(t, uint64(1), rev)
	assert.Equal(t, int64(1700000600), revTime.Unix())

	sync.SetRevision(h, 100, time.Unix(1700000700, 0))

	rev, revTime = h.GetRevision()
	assert.Equal(t, uint64(100), rev)
	assert.Equal(t, int64(1700000700), revTime.Unix())
}
