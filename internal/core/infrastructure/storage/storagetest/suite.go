// Package storagetest 提供 KVStore 实现共用的行为测试
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// Run 对 newStore 创建的存储执行全部行为测试；每个子测试使用新的存储
func Run(t *testing.T, newStore func(t *testing.T) storage.KVStore) {
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		v, err := s.Get(ctx, []byte("absent"))
		require.NoError(t, err)
		require.Nil(t, v)
		ok, err := s.Exists(ctx, []byte("absent"))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("SetGetOverwrite", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Set(ctx, []byte("k"), []byte("v1")))
		require.NoError(t, s.Set(ctx, []byte("k"), []byte("v2")))
		v, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), v)
		ok, err := s.Exists(ctx, []byte("k"))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("SetIfAbsent", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.SetIfAbsent(ctx, []byte("nul/1"), []byte("a"))
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.SetIfAbsent(ctx, []byte("nul/1"), []byte("b"))
		require.NoError(t, err)
		require.False(t, ok)
		v, err := s.Get(ctx, []byte("nul/1"))
		require.NoError(t, err)
		require.Equal(t, []byte("a"), v)
	})

	t.Run("SetIfAbsentConcurrent", func(t *testing.T) {
		s := newStore(t)
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.SetIfAbsent(ctx, []byte("race"), []byte(fmt.Sprint(i)))
				if err == nil && ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})

	t.Run("SetManyAndPrefixScan", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SetMany(ctx, map[string][]byte{
			"obj/leaf/0000000000000000": []byte("l0"),
			"obj/leaf/0000000000000001": []byte("l1"),
			"obj/root/0000000000000000": []byte("r0"),
			"cb/leaf/0000000000000000":  []byte("c0"),
		}))

		leaves, err := s.PrefixScan(ctx, []byte("obj/leaf/"))
		require.NoError(t, err)
		require.Equal(t, map[string][]byte{
			"obj/leaf/0000000000000000": []byte("l0"),
			"obj/leaf/0000000000000001": []byte("l1"),
		}, leaves)

		all, err := s.PrefixScan(ctx, []byte("obj/"))
		require.NoError(t, err)
		require.Len(t, all, 3)

		none, err := s.PrefixScan(ctx, []byte("zzz/"))
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("Closed", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())
		err := s.Set(ctx, []byte("k"), []byte("v"))
		require.Error(t, err)
	})
}
