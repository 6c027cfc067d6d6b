package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8080", cfg.ListenAddr)
	require.Equal(t, 4096, cfg.PageSize)
	require.Equal(t, 64, cfg.BufferFrames)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "@every 1s", cfg.DeadlockSweep)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagedb.yaml")
	content := `
listen_addr: ":9999"
data_dir: /tmp/custom
buffer_frames: 128
log:
  level: debug
  json: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, "/tmp/custom", cfg.DataDir)
	require.Equal(t, 128, cfg.BufferFrames)
	require.Equal(t, 4096, cfg.PageSize, "unset fields keep defaults")
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Log.JSON)
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagedb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("page_size: -1\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
