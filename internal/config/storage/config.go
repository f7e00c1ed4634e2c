// Package storage 定义账本键值存储的配置
package storage

import (
	"fmt"
	"time"
)

// 存储后端类型
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// StorageOptions 存储配置选项
type StorageOptions struct {
	Backend string        `json:"backend" mapstructure:"backend"` // memory | badger | redis
	Memory  MemoryOptions `json:"memory" mapstructure:"memory"`
	Badger  BadgerOptions `json:"badger" mapstructure:"badger"`
	Redis   RedisOptions  `json:"redis" mapstructure:"redis"`
}

// MemoryOptions bigcache 内存存储配置
type MemoryOptions struct {
	Shards             int `json:"shards" mapstructure:"shards"`                                 // 分片数，必须为2的幂
	MaxEntriesInWindow int `json:"max_entries_in_window" mapstructure:"max_entries_in_window"`   // 初始容量估计
	MaxEntrySize       int `json:"max_entry_size" mapstructure:"max_entry_size"`                 // 单条目字节数估计
	HardMaxCacheSizeMB int `json:"hard_max_cache_size_mb" mapstructure:"hard_max_cache_size_mb"` // 0 表示不限制
}

// BadgerOptions BadgerDB存储配置
type BadgerOptions struct {
	Path       string `json:"path" mapstructure:"path"`               // 数据库存储路径
	InMemory   bool   `json:"in_memory" mapstructure:"in_memory"`     // 纯内存模式（测试）
	SyncWrites bool   `json:"sync_writes" mapstructure:"sync_writes"` // 是否同步写入
}

// RedisOptions Redis存储配置
type RedisOptions struct {
	Addr        string        `json:"addr" mapstructure:"addr"`
	Password    string        `json:"password" mapstructure:"password"`
	DB          int           `json:"db" mapstructure:"db"`
	KeyPrefix   string        `json:"key_prefix" mapstructure:"key_prefix"`
	PoolSize    int           `json:"pool_size" mapstructure:"pool_size"`
	DialTimeout time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
}

// DefaultOptions 创建默认存储配置
func DefaultOptions() *StorageOptions {
	return &StorageOptions{
		Backend: defaultBackend,
		Memory: MemoryOptions{
			Shards:             defaultMemoryShards,
			MaxEntriesInWindow: defaultMaxEntriesInWindow,
			MaxEntrySize:       defaultMaxEntrySize,
			HardMaxCacheSizeMB: defaultHardMaxCacheSizeMB,
		},
		Badger: BadgerOptions{
			Path:       defaultBadgerPath,
			SyncWrites: defaultSyncWrites,
		},
		Redis: RedisOptions{
			Addr:        defaultRedisAddr,
			KeyPrefix:   defaultRedisKeyPrefix,
			PoolSize:    defaultRedisPoolSize,
			DialTimeout: defaultRedisDialTimeout,
		},
	}
}

// Validate 校验存储配置
func (o *StorageOptions) Validate() error {
	switch o.Backend {
	case BackendMemory:
		if o.Memory.Shards <= 0 || o.Memory.Shards&(o.Memory.Shards-1) != 0 {
			return fmt.Errorf("memory.shards 必须为2的幂: %d", o.Memory.Shards)
		}
	case BackendBadger:
		if o.Badger.Path == "" && !o.Badger.InMemory {
			return fmt.Errorf("badger.path 不能为空")
		}
	case BackendRedis:
		if o.Redis.Addr == "" {
			return fmt.Errorf("redis.addr 不能为空")
		}
	default:
		return fmt.Errorf("未知的存储后端: %q", o.Backend)
	}
	return nil
}
