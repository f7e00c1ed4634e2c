package clock

import (
	"time"

	infraClock "github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
)

// SystemClock 使用系统真实时间，按固定时长划分纪元
type SystemClock struct {
	genesis     time.Time
	epochLength time.Duration
}

// NewSystemClock 创建系统时钟；epochLength <= 0 时按秒划分
func NewSystemClock(genesis time.Time, epochLength time.Duration) infraClock.Clock {
	if epochLength <= 0 {
		epochLength = time.Second
	}
	return &SystemClock{genesis: genesis, epochLength: epochLength}
}

func (c *SystemClock) Now() time.Time { return time.Now() }

// Epoch 自创世时间起经过的纪元数
func (c *SystemClock) Epoch() uint64 {
	d := time.Since(c.genesis)
	if d < 0 {
		return 0
	}
	return uint64(d / c.epochLength)
}
