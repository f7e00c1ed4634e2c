// Package storage 定义账本持久化使用的键值存储接口
//
// 📋 **键值存储接口 (Key-Value Store Interface)**
//
// 账本只需要追加式写入与按前缀恢复：
// - 叶子、根历史、废止符等记录按 ASCII 前缀组织
// - SetIfAbsent 提供"首次写入"语义（废止符、已调用票据）
// - SetMany 在一个批次中写入一次追加产生的全部记录
package storage

import (
	"context"
	"errors"
)

// ErrStoreClosed 存储已关闭
var ErrStoreClosed = errors.New("storage: store closed")

// KVStore 键值存储接口
type KVStore interface {
	// Get 获取指定键的值；键不存在时返回 nil, nil
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Set 设置键值对，已存在时覆盖
	Set(ctx context.Context, key, value []byte) error

	// SetMany 原子地写入多个键值对
	SetMany(ctx context.Context, entries map[string][]byte) error

	// SetIfAbsent 仅当键不存在时写入；返回是否写入
	SetIfAbsent(ctx context.Context, key, value []byte) (bool, error)

	// Exists 检查键是否存在
	Exists(ctx context.Context, key []byte) (bool, error)

	// PrefixScan 返回所有以 prefix 开头的键值对
	PrefixScan(ctx context.Context, prefix []byte) (map[string][]byte, error)

	// Close 关闭存储
	Close() error
}
