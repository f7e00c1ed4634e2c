package clock

import (
	"sync"
	"time"

	infraClock "github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
)

// ManualClock 测试用时钟，纪元手动推进
type ManualClock struct {
	mu    sync.RWMutex
	now   time.Time
	epoch uint64
}

// NewManualClock 创建手动时钟
func NewManualClock(epoch uint64) *ManualClock {
	return &ManualClock{now: time.Unix(0, 0), epoch: epoch}
}

func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *ManualClock) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Set 设置纪元
func (c *ManualClock) Set(epoch uint64) {
	c.mu.Lock()
	c.epoch = epoch
	c.mu.Unlock()
}

// Advance 推进纪元
func (c *ManualClock) Advance(n uint64) {
	c.mu.Lock()
	c.epoch += n
	c.now = c.now.Add(time.Duration(n) * time.Second)
	c.mu.Unlock()
}

// Ensure接口实现满足 infraClock.Clock
var _ infraClock.Clock = (*ManualClock)(nil)
