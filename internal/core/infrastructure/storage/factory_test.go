package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/memory"
)

func TestNew_SelectsBackend(t *testing.T) {
	s, err := New(nil, nil)
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, s)
	require.NoError(t, s.Close())

	opts := storageconfig.DefaultOptions()
	opts.Backend = storageconfig.BackendBadger
	opts.Badger.InMemory = true
	s, err = New(opts, nil)
	require.NoError(t, err)
	require.IsType(t, &badger.Store{}, s)
	require.NoError(t, s.Close())
}

func TestNew_RejectsUnknownBackend(t *testing.T) {
	opts := storageconfig.DefaultOptions()
	opts.Backend = "sqlite"
	_, err := New(opts, nil)
	require.Error(t, err)
}
