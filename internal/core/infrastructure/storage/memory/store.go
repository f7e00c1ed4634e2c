// Package memory 提供基于 BigCache 的内存键值存储
//
// ⚠️ 账本记录不能过期：生命周期窗口设为最大值并关闭清理协程。
// BigCache 不支持遍历键，前缀扫描依赖额外维护的键集合。
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// neverExpire BigCache 生命周期窗口（秒级精度下约 290 年）
const neverExpire = time.Duration(math.MaxInt64)

// Store 内存键值存储
type Store struct {
	cache  *bigcache.BigCache
	logger log.Logger

	mu     sync.RWMutex
	keySet map[string]struct{}
	closed bool
}

var _ storage.KVStore = (*Store)(nil)

// New 创建内存存储；opts 为 nil 时使用默认配置
func New(opts *storageconfig.MemoryOptions, logger log.Logger) (*Store, error) {
	if opts == nil {
		opts = &storageconfig.DefaultOptions().Memory
	}
	cfg := bigcache.DefaultConfig(neverExpire)
	cfg.CleanWindow = 0
	cfg.Shards = opts.Shards
	cfg.MaxEntriesInWindow = opts.MaxEntriesInWindow
	cfg.MaxEntrySize = opts.MaxEntrySize
	cfg.HardMaxCacheSize = opts.HardMaxCacheSizeMB
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("创建BigCache实例失败: %w", err)
	}
	return &Store{
		cache:  cache,
		logger: logger,
		keySet: make(map[string]struct{}),
	}, nil
}

// Get 实现 KVStore
func (s *Store) Get(_ context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStoreClosed
	}
	return s.get(string(key))
}

func (s *Store) get(key string) ([]byte, error) {
	v, err := s.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("获取缓存键[%s]失败: %w", key, err)
	}
	return v, nil
}

// Set 实现 KVStore
func (s *Store) Set(_ context.Context, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	return s.set(string(key), value)
}

func (s *Store) set(key string, value []byte) error {
	if err := s.cache.Set(key, value); err != nil {
		if s.logger != nil {
			s.logger.Warnf("设置缓存键[%s]失败: %v", key, err)
		}
		return err
	}
	s.keySet[key] = struct{}{}
	return nil
}

// SetMany 实现 KVStore；BigCache 无事务，持锁顺序写入
func (s *Store) SetMany(_ context.Context, entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStoreClosed
	}
	for k, v := range entries {
		if err := s.set(k, v); err != nil {
			return err
		}
	}
	return nil
}

// SetIfAbsent 实现 KVStore
func (s *Store) SetIfAbsent(_ context.Context, key, value []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, storage.ErrStoreClosed
	}
	if _, ok := s.keySet[string(key)]; ok {
		return false, nil
	}
	if err := s.set(string(key), value); err != nil {
		return false, err
	}
	return true, nil
}

// Exists 实现 KVStore
func (s *Store) Exists(_ context.Context, key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, storage.ErrStoreClosed
	}
	_, ok := s.keySet[string(key)]
	return ok, nil
}

// PrefixScan 实现 KVStore
func (s *Store) PrefixScan(_ context.Context, prefix []byte) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStoreClosed
	}

	keys := make([]string, 0)
	for k := range s.keySet {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	result := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := s.get(k)
		if err != nil {
			return nil, err
		}
		if v != nil {
			result[k] = v
		}
	}
	return result, nil
}

// Len 已写入的键数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keySet)
}

// Close 关闭缓存并释放资源
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.keySet = nil
	return s.cache.Close()
}
