package storage

import "time"

const (
	defaultBackend = BackendMemory

	// bigcache
	defaultMemoryShards       = 64
	defaultMaxEntriesInWindow = 1 << 14
	defaultMaxEntrySize       = 512
	defaultHardMaxCacheSizeMB = 0

	// badger
	defaultBadgerPath = "./data/badger"
	defaultSyncWrites = true

	// redis
	defaultRedisAddr        = "127.0.0.1:6379"
	defaultRedisKeyPrefix   = "zkcb:"
	defaultRedisPoolSize    = 10
	defaultRedisDialTimeout = 5 * time.Second
)
