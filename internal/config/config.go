// Package config 提供应用配置的聚合、默认值与加载
//
// 配置来源优先级（高到低）：ZKCB_ 前缀环境变量 > 配置文件 > 默认值。
// 环境变量中的 "." 以 "_" 表示，例如 ZKCB_STORAGE_BACKEND=badger。
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	logconfig "github.com/weisyn/zkcallback/internal/config/log"
	"github.com/weisyn/zkcallback/internal/config/protocol"
	"github.com/weisyn/zkcallback/internal/config/storage"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "ZKCB"

// MetricsOptions 指标配置
type MetricsOptions struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// Config 应用配置根
type Config struct {
	Log      logconfig.LogOptions     `json:"log" mapstructure:"log"`
	Storage  storage.StorageOptions   `json:"storage" mapstructure:"storage"`
	Protocol protocol.ProtocolOptions `json:"protocol" mapstructure:"protocol"`
	Metrics  MetricsOptions           `json:"metrics" mapstructure:"metrics"`
}

// Default 创建全部使用默认值的配置
func Default() *Config {
	return &Config{
		Log:      *logconfig.DefaultOptions(),
		Storage:  *storage.DefaultOptions(),
		Protocol: *protocol.DefaultOptions(),
		Metrics:  MetricsOptions{Enabled: true},
	}
}

// Load 加载配置；path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验全部配置段
func (c *Config) Validate() error {
	var errs []error
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage: %w", err))
	}
	if err := c.Protocol.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("protocol: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置校验失败: %w", errors.Join(errs...))
	}
	return nil
}

// GetLog 获取日志配置
func (c *Config) GetLog() *logconfig.Config {
	return logconfig.New(&c.Log)
}

// GetStorage 获取存储配置
func (c *Config) GetStorage() *storage.StorageOptions {
	return &c.Storage
}

// GetProtocol 获取协议配置
func (c *Config) GetProtocol() *protocol.ProtocolOptions {
	return &c.Protocol
}

// setDefaults 为每个配置键登记默认值，未登记的键不会被环境变量覆盖
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.to_console", d.Log.ToConsole)
	v.SetDefault("log.file_path", d.Log.FilePath)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("log.enable_caller", d.Log.EnableCaller)
	v.SetDefault("log.enable_stacktrace", d.Log.EnableStacktrace)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.memory.shards", d.Storage.Memory.Shards)
	v.SetDefault("storage.memory.max_entries_in_window", d.Storage.Memory.MaxEntriesInWindow)
	v.SetDefault("storage.memory.max_entry_size", d.Storage.Memory.MaxEntrySize)
	v.SetDefault("storage.memory.hard_max_cache_size_mb", d.Storage.Memory.HardMaxCacheSizeMB)
	v.SetDefault("storage.badger.path", d.Storage.Badger.Path)
	v.SetDefault("storage.badger.in_memory", d.Storage.Badger.InMemory)
	v.SetDefault("storage.badger.sync_writes", d.Storage.Badger.SyncWrites)
	v.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.pool_size", d.Storage.Redis.PoolSize)
	v.SetDefault("storage.redis.dial_timeout", d.Storage.Redis.DialTimeout)

	v.SetDefault("protocol.object_tree_depth", d.Protocol.ObjectTreeDepth)
	v.SetDefault("protocol.callback_tree_depth", d.Protocol.CallbackTreeDepth)
	v.SetDefault("protocol.root_history", d.Protocol.RootHistory)
	v.SetDefault("protocol.scan_batch", d.Protocol.ScanBatch)
	v.SetDefault("protocol.epoch_length", d.Protocol.EpochLength)
	v.SetDefault("protocol.circuit_cache_size", d.Protocol.CircuitCacheSize)
	v.SetDefault("protocol.publish_retries", d.Protocol.PublishRetries)
	v.SetDefault("protocol.publish_retry_base", d.Protocol.PublishRetryBase)
	v.SetDefault("protocol.signing_key_file", d.Protocol.SigningKeyFile)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}
