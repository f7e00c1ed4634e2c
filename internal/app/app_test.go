package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/internal/core/object"
)

func writeConfig(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "zkcb.yaml")
	content := `
log:
  level: error
  to_console: false
  file_path: ""
storage:
  backend: memory
protocol:
  object_tree_depth: 4
  callback_tree_depth: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBootstrapApp(t *testing.T) {
	a, err := BootstrapApp(WithConfigFile(writeConfig(t)))
	require.NoError(t, err)

	c := a.Components()
	require.NotNil(t, c.Service)
	require.NotNil(t, c.ObjectLedger)
	require.Equal(t, 4, c.Config.Protocol.ObjectTreeDepth)

	// 服务签名的加入被对象账本接受
	com := object.FromUint64(77)
	auth, err := c.Service.ApproveJoin(t.Context(), com)
	require.NoError(t, err)
	require.NoError(t, c.ObjectLedger.JoinBul(t.Context(), com, auth))
	require.Equal(t, 1, c.ObjectLedger.Len())

	require.NoError(t, a.Stop())
}

func TestBootstrapApp_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("protocol:\n  scan_batch: 0\n"), 0o600))
	_, err := BootstrapApp(WithConfigFile(path))
	require.Error(t, err)
}
