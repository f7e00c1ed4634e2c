package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/config/storage"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zkcb.yaml")
	content := `
log:
  level: debug
storage:
  backend: badger
  badger:
    path: /tmp/zkcb-test
protocol:
  scan_batch: 4
  epoch_length: 3s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, storage.BackendBadger, cfg.Storage.Backend)
	require.Equal(t, "/tmp/zkcb-test", cfg.Storage.Badger.Path)
	require.Equal(t, 4, cfg.Protocol.ScanBatch)
	require.Equal(t, 3*time.Second, cfg.Protocol.EpochLength)
	// 未覆盖的键保持默认值
	require.Equal(t, Default().Protocol.ObjectTreeDepth, cfg.Protocol.ObjectTreeDepth)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ZKCB_STORAGE_BACKEND", "redis")
	t.Setenv("ZKCB_STORAGE_REDIS_ADDR", "redis.local:6379")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, storage.BackendRedis, cfg.Storage.Backend)
	require.Equal(t, "redis.local:6379", cfg.Storage.Redis.Addr)
}

func TestValidate_Rejects(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "sqlite"
	cfg.Protocol.ScanBatch = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "storage")
	require.Contains(t, err.Error(), "protocol")

	cfg = Default()
	cfg.Storage.Memory.Shards = 3
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Level = "verbose"
	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "log")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
