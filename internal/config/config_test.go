package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"histeq/internal/failure"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, env(nil))
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 128, cfg.NumBins())
}

func TestLoadShortFlags(t *testing.T) {
	cfg, err := Load([]string{"-p", "1", "-d", "0", "-f", "lena.pgm"}, env(nil))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Platform)
	assert.Equal(t, 0, cfg.Device)
	assert.Equal(t, "lena.pgm", cfg.ImagePath)
}

func TestLoadIgnoresUnknownFlags(t *testing.T) {
	cfg, err := Load([]string{"-x", "--verbose", "-f", "a.pgm"}, env(nil))
	require.NoError(t, err)
	assert.Equal(t, "a.pgm", cfg.ImagePath)
}

func TestLoadHelpSkipsValidation(t *testing.T) {
	cfg, err := Load([]string{"--bin-size", "3", "-h"}, env(nil))
	require.NoError(t, err)
	assert.True(t, cfg.Help)
}

func TestLoadListSkipsValidation(t *testing.T) {
	cfg, err := Load([]string{"-l", "--bin-size", "3"}, env(nil))
	require.NoError(t, err)
	assert.True(t, cfg.ListDevices)
}

func TestLoadRejectsBadBinSize(t *testing.T) {
	for _, size := range []string{"0", "3", "-2", "512"} {
		_, err := Load([]string{"--bin-size", size}, env(nil))
		require.Error(t, err, size)
		assert.Equal(t, failure.KindConfig, failure.KindOf(err))

		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "bin_size", ve.Parameter)
	}
}

func TestValidateBinSizeAcceptsDivisors(t *testing.T) {
	for _, size := range []int{1, 2, 4, 8, 16, 32, 64, 128, 256} {
		assert.NoError(t, ValidateBinSize(size), size)
	}
}

func TestValidateStrategies(t *testing.T) {
	cfg := Default()
	cfg.Binning = "shared"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scan = "blelloch"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Runs = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Platform = -1
	assert.Error(t, cfg.Validate())
}

func TestLoadFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "histeq.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
image = "from-file.pgm"
bin_size = 4
scan = "parallel"
display = false
log_level = "warn"
`), 0o644))

	cfg, err := Load([]string{"-c", path, "--bin-size", "8"}, env(map[string]string{"LOG_LEVEL": "debug"}))
	require.NoError(t, err)

	assert.Equal(t, "from-file.pgm", cfg.ImagePath)
	assert.Equal(t, 8, cfg.BinSize, "flag overrides file")
	assert.Equal(t, ScanParallel, cfg.Scan)
	assert.False(t, cfg.Display)
	assert.Equal(t, "debug", cfg.LogLevel, "environment overrides file")
}

func TestLoadFileFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histeq.toml")
	require.NoError(t, os.WriteFile(path, []byte("binning = \"atomic\"\n"), 0o644))

	cfg, err := Load(nil, env(map[string]string{ConfigEnv: path}))
	require.NoError(t, err)
	assert.Equal(t, BinningAtomic, cfg.Binning)
	assert.Equal(t, path, cfg.ConfigPath)
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "histeq.toml")
	require.NoError(t, os.WriteFile(path, []byte("bins = 64\n"), 0o644))

	_, err := Load([]string{"-c", path}, env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bins")
	assert.Equal(t, failure.KindConfig, failure.KindOf(err))
}

func TestApplyEnvDebug(t *testing.T) {
	cfg := Default()
	ApplyEnv(&cfg, env(map[string]string{"DEBUG": "1"}))
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestNoDisplayFlag(t *testing.T) {
	cfg, err := Load([]string{"--no-display"}, env(nil))
	require.NoError(t, err)
	assert.False(t, cfg.Display)
}

func TestUsageMentionsEveryShortFlag(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)
	for _, f := range []string{"-p", "-d", "-l", "-f", "-h"} {
		assert.Contains(t, buf.String(), f)
	}
}
