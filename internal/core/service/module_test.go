package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"github.com/weisyn/zkcallback/internal/config/protocol"
)

func TestLoadOrCreateSigningKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "service.key")
	sk, err := LoadOrCreateSigningKey(path)
	require.NoError(t, err)

	again, err := LoadOrCreateSigningKey(path)
	require.NoError(t, err)
	require.Equal(t, sk.Bytes(), again.Bytes())

	ephemeral, err := LoadOrCreateSigningKey("")
	require.NoError(t, err)
	require.NotEqual(t, sk.Bytes(), ephemeral.Bytes())
}

func TestProvideService(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	opts := protocol.DefaultOptions()
	opts.ObjectTreeDepth = 4
	opts.CallbackTreeDepth = 4

	out, err := ProvideService(ModuleParams{Lifecycle: lc, Protocol: opts, Store: newMemory(t)})
	require.NoError(t, err)
	lc.RequireStart()

	// 对象账本只接受服务签名的加入
	com := out.Service.PublicKey().X
	auth, err := out.Service.ApproveJoin(t.Context(), com)
	require.NoError(t, err)
	require.NoError(t, out.ObjectLedger.JoinBul(t.Context(), com, auth))
	require.Error(t, out.ObjectLedger.JoinBul(t.Context(), out.Service.PublicKey().Y, nil))

	lc.RequireStop()
}
