// Package protocol 定义协议参数配置：累加器深度、扫描批宽、电路缓存与重试策略
package protocol

import (
	"fmt"
	"time"
)

// ProtocolOptions 协议参数配置
type ProtocolOptions struct {
	// === 累加器 ===
	ObjectTreeDepth   int `json:"object_tree_depth" mapstructure:"object_tree_depth"`     // 对象账本 Merkle 树深度
	CallbackTreeDepth int `json:"callback_tree_depth" mapstructure:"callback_tree_depth"` // 回调账本索引树深度
	RootHistory       int `json:"root_history" mapstructure:"root_history"`               // 保留的历史根数量

	// === 扫描 ===
	ScanBatch int `json:"scan_batch" mapstructure:"scan_batch"` // 单个扫描证明处理的票据数

	// === 时钟 ===
	EpochLength time.Duration `json:"epoch_length" mapstructure:"epoch_length"` // 一个 epoch 的时长

	// === 证明 ===
	CircuitCacheSize int `json:"circuit_cache_size" mapstructure:"circuit_cache_size"` // 编译电路与密钥缓存条目数

	// === 发布重试 ===
	PublishRetries   uint64        `json:"publish_retries" mapstructure:"publish_retries"`
	PublishRetryBase time.Duration `json:"publish_retry_base" mapstructure:"publish_retry_base"`

	// === 服务方 ===
	SigningKeyFile string `json:"signing_key_file" mapstructure:"signing_key_file"` // 为空时每次启动生成临时密钥
}

// DefaultOptions 创建默认协议配置
func DefaultOptions() *ProtocolOptions {
	return &ProtocolOptions{
		ObjectTreeDepth:   defaultObjectTreeDepth,
		CallbackTreeDepth: defaultCallbackTreeDepth,
		RootHistory:       defaultRootHistory,
		ScanBatch:         defaultScanBatch,
		EpochLength:       defaultEpochLength,
		CircuitCacheSize:  defaultCircuitCacheSize,
		PublishRetries:    defaultPublishRetries,
		PublishRetryBase:  defaultPublishRetryBase,
	}
}

// Validate 校验协议配置
func (o *ProtocolOptions) Validate() error {
	if o.ObjectTreeDepth < 1 || o.ObjectTreeDepth > maxTreeDepth {
		return fmt.Errorf("object_tree_depth 超出范围 [1,%d]: %d", maxTreeDepth, o.ObjectTreeDepth)
	}
	if o.CallbackTreeDepth < 1 || o.CallbackTreeDepth > maxTreeDepth {
		return fmt.Errorf("callback_tree_depth 超出范围 [1,%d]: %d", maxTreeDepth, o.CallbackTreeDepth)
	}
	if o.ScanBatch < 1 {
		return fmt.Errorf("scan_batch 必须为正数: %d", o.ScanBatch)
	}
	if o.RootHistory < 1 {
		return fmt.Errorf("root_history 必须为正数: %d", o.RootHistory)
	}
	if o.EpochLength <= 0 {
		return fmt.Errorf("epoch_length 必须为正数: %s", o.EpochLength)
	}
	if o.CircuitCacheSize < 1 {
		return fmt.Errorf("circuit_cache_size 必须为正数: %d", o.CircuitCacheSize)
	}
	return nil
}
