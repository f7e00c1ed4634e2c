// Package clock provides the epoch clock interface used by the ledgers.
package clock

import "time"

// Clock 账本使用的纪元时钟
//
// 设计目标：
// - 确定性：测试中可手动推进纪元
// - 可替换：生产环境按墙钟时间划分纪元
type Clock interface {
	// Now 获取当前时间
	Now() time.Time

	// Epoch 获取当前纪元编号（单调不减）
	Epoch() uint64
}
