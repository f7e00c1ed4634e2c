package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/storagetest"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.KVStore {
		s, err := New(&storageconfig.MemoryOptions{Shards: 4, MaxEntriesInWindow: 64, MaxEntrySize: 64}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestStore_Len(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, 0, s.Len())
	_, err = s.SetIfAbsent(t.Context(), []byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = s.SetIfAbsent(t.Context(), []byte("a"), []byte("2"))
	require.NoError(t, err)
	require.Equal(t, 1, s.Len())
}
