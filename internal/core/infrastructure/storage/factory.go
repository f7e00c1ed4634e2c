// Package storage 按配置创建账本使用的键值存储后端
package storage

import (
	"fmt"

	storageconfig "github.com/weisyn/zkcallback/internal/config/storage"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/badger"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/memory"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage/redis"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/storage"
)

// New 根据 Backend 选择并创建存储
func New(opts *storageconfig.StorageOptions, logger log.Logger) (storage.KVStore, error) {
	if opts == nil {
		opts = storageconfig.DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch opts.Backend {
	case storageconfig.BackendMemory:
		return memory.New(&opts.Memory, logger)
	case storageconfig.BackendBadger:
		return badger.New(&opts.Badger, logger)
	case storageconfig.BackendRedis:
		return redis.New(&opts.Redis, logger)
	default:
		return nil, fmt.Errorf("不支持的存储后端: %s", opts.Backend)
	}
}
