package statfile

import (
	"os"
	"testing"
)

// openRW opens path for read/write, used by tests that need to corrupt a
// file on disk before exercising open().
func openRW(t *testing.T, path string) (*os.File, error) {
	t.Helper()

	return os.OpenFile(path, os.O_RDWR, 0o644)
}

func readAll(t *testing.T, path string) ([]byte, error) {
	t.Helper()

	return os.ReadFile(path)
}

func truncateTo(t *testing.T, path string, size int64) error {
	t.Helper()

	return os.Truncate(path, size)
}
