package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/space-downloader/spacedl/internal/model"
)

func TestFindConfig(t *testing.T) {
	t.Parallel()
	user, cwd := t.TempDir(), t.TempDir()
	require.Empty(t, findConfig(user, cwd))

	require.NoError(t, os.WriteFile(filepath.Join(cwd, "spacedl.toml"), []byte("version = 0\n"), 0o644))
	require.Equal(t, filepath.Join(cwd, "spacedl.toml"), findConfig(user, cwd))

	// a directory named like a config is skipped
	require.NoError(t, os.Mkdir(filepath.Join(user, "spacedl.yaml"), 0o755))
	require.Equal(t, filepath.Join(cwd, "spacedl.toml"), findConfig(user, cwd))

	require.NoError(t, os.WriteFile(filepath.Join(user, "spacedl.yml"), []byte("version: 0\n"), 0o644))
	require.Equal(t, filepath.Join(user, "spacedl.yml"), findConfig(user, cwd))
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "spacedl.yaml")
	cfg := model.DefaultConfig()
	require.NoError(t, writeDefault(path, cfg))

	loaded, err := model.LoadConfigFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, *loaded)
}
