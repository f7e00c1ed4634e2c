// Package redis 提供基于 Redis 的共享键值存储
//
// 🎯 多个服务进程共享同一组账本时使用。
// Key 格式：{keyPrefix}{账本键}，前缀用于命名空间隔离。
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// Store Redis 键值存储
type Store struct {
	client    redisClient
	keyPrefix string
	logger    log.Logger
	closed    atomic.Bool
}

var _ storage.KVStore = (*Store)(nil)

// New 连接 Redis 并创建存储
func New(opts *storageconfig.RedisOptions, logger log.Logger) (*Store, error) {
	client, err := newGoRedisClient(opts)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Infof("Redis存储已连接: addr=%s, db=%d, prefix=%s", opts.Addr, opts.DB, opts.KeyPrefix)
	}
	return newWithClient(client, opts.KeyPrefix, logger), nil
}

// newWithClient 使用给定客户端创建存储（测试注入 mock）
func newWithClient(client redisClient, keyPrefix string, logger log.Logger) *Store {
	return &Store{client: client, keyPrefix: keyPrefix, logger: logger}
}

func (s *Store) key(k []byte) string {
	return s.keyPrefix + string(k)
}

func (s *Store) check() error {
	if s.closed.Load() {
		return storage.ErrStoreClosed
	}
	return nil
}

// Get 实现 KVStore
func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	v, err := s.client.Get(ctx, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("redis获取键失败: %w", err)
	}
	return v, nil
}

// Set 实现 KVStore
func (s *Store) Set(ctx context.Context, key, value []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), value); err != nil {
		return fmt.Errorf("redis写入键失败: %w", err)
	}
	return nil
}

// SetMany 实现 KVStore
func (s *Store) SetMany(ctx context.Context, entries map[string][]byte) error {
	if err := s.check(); err != nil {
		return err
	}
	prefixed := make(map[string][]byte, len(entries))
	for k, v := range entries {
		prefixed[s.keyPrefix+k] = v
	}
	if err := s.client.MSet(ctx, prefixed); err != nil {
		return fmt.Errorf("redis批量写入失败: %w", err)
	}
	return nil
}

// SetIfAbsent 实现 KVStore（SETNX）
func (s *Store) SetIfAbsent(ctx context.Context, key, value []byte) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	ok, err := s.client.SetNX(ctx, s.key(key), value)
	if err != nil {
		return false, fmt.Errorf("redis条件写入失败: %w", err)
	}
	return ok, nil
}

// Exists 实现 KVStore
func (s *Store) Exists(ctx context.Context, key []byte) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	ok, err := s.client.Exists(ctx, s.key(key))
	if err != nil {
		return false, fmt.Errorf("redis检查键存在性失败: %w", err)
	}
	return ok, nil
}

// PrefixScan 实现 KVStore；返回的键已去掉命名空间前缀
func (s *Store) PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	keys, err := s.client.Scan(ctx, escapeGlob(s.key(prefix))+"*")
	if err != nil {
		return nil, fmt.Errorf("redis前缀扫描失败: %w", err)
	}
	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := s.client.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("redis获取键失败: %w", err)
		}
		if v != nil {
			result[strings.TrimPrefix(k, s.keyPrefix)] = v
		}
	}
	return result, nil
}

// Close 关闭连接
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}

// escapeGlob 转义 Redis glob 元字符
func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
