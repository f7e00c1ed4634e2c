package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/storagetest"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KVStore {
		s, err := New(&storageconfig.BadgerOptions{InMemory: true}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	opts := &storageconfig.BadgerOptions{Path: t.TempDir(), SyncWrites: true}

	s, err := New(opts, nil)
	require.NoError(t, err)
	require.NoError(t, s.SetMany(ctx, map[string][]byte{
		"obj/leaf/0000000000000000": []byte("leaf"),
		"obj/nul/abc":               []byte{1},
	}))
	require.NoError(t, s.Close())

	s, err = New(opts, nil)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.Get(ctx, []byte("obj/leaf/0000000000000000"))
	require.NoError(t, err)
	require.Equal(t, []byte("leaf"), v)

	ok, err := s.SetIfAbsent(ctx, []byte("obj/nul/abc"), []byte{2})
	require.NoError(t, err)
	require.False(t, ok)
}
