package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Equal(t, PollNumberExclude, cfg.PollNumberPolicy)
	assert.InDelta(t, 1e-5, cfg.SimplifyTolerance, 1e-12)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("VOTEMAP_ENV", "production")
	t.Setenv("VOTEMAP_DATA_DIR", "/var/lib/votemap")
	t.Setenv("VOTEMAP_POLL_NUMBER_POLICY", PollNumberZero)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "/var/lib/votemap", cfg.DataDir)
	assert.Equal(t, PollNumberZero, cfg.PollNumberPolicy)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("VOTEMAP_ENV", "staging")

	_, err := Load()

	assert.Error(t, err)
}

func TestLoad_InvalidPollNumberPolicy(t *testing.T) {
	t.Setenv("VOTEMAP_POLL_NUMBER_POLICY", "keep")

	_, err := Load()

	assert.Error(t, err)
}

func TestValidate_MissingRequiredField(t *testing.T) {
	cfg := &Config{
		Env:              "development",
		DataDir:          "",
		OutputDir:        "output",
		PollNumberPolicy: PollNumberExclude,
	}

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "DataDir")
}

func TestEnsureDirs_CreatesDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := &Config{
		Env:              "test",
		DataDir:          filepath.Join(base, "data"),
		OutputDir:        filepath.Join(base, "out"),
		PollNumberPolicy: PollNumberExclude,
	}

	require.NoError(t, cfg.EnsureDirs())

	for _, dir := range []string{cfg.DataDir, cfg.OutputDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
