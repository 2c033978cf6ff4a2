package statfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_LoadConfig_Returns_Defaults_When_No_Files_Present(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, sources, err := LoadConfig(dir, "", nil)
	require.NoError(t, err)

	assert.Equal(t, StatfilesMax, cfg.Pool.MaxOpenFiles)
	assert.Empty(t, sources.Global)
	assert.Empty(t, sources.Project)
}

func Test_LoadConfig_Merges_Project_File_Over_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, ConfigFileName), `{
		// allow trailing commas and comments, matching the JSONC parser
		"pool": { "max_open_files": 10, "mlock_enabled": true },
		"classifier": { "symbols": { "BAYES_SPAM": { "path": "bayes.bin", "size_bytes": 65536 } } },
	}`)

	cfg, sources, err := LoadConfig(dir, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Pool.MaxOpenFiles)
	assert.True(t, cfg.Pool.MlockEnabled)
	assert.Equal(t, "bayes.bin", cfg.Classifier.Symbols["BAYES_SPAM"].Path)
	assert.Equal(t, filepath.Join(dir, ConfigFileName), sources.Project)
}

func Test_LoadConfig_Explicit_Path_Must_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := LoadConfig(dir, "does-not-exist.json", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func Test_LoadConfig_Rejects_MaxOpenFiles_Above_Hard_Cap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, ConfigFileName), `{"pool": {"max_open_files": 9999}}`)

	_, _, err := LoadConfig(dir, "", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func Test_LoadConfig_Rejects_Classifier_Symbol_With_Empty_Path(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfigFile(t, filepath.Join(dir, ConfigFileName), `{"classifier": {"symbols": {"BAYES_SPAM": {"path": ""}}}}`)

	_, _, err := LoadConfig(dir, "", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func Test_FormatConfig_Produces_Indented_JSON(t *testing.T) {
	t.Parallel()

	out, err := FormatConfig(DefaultConfig())
	require.NoError(t, err)
	assert.Contains(t, out, "\"pool\"")
}
