// Package event 基于 asaskevich/EventBus 的事件总线实现
//
// 在底层总线之上增加：
// - 可选的按类型有界历史（CLI 演示与测试读取最近事件）
// - 发布计数，便于诊断
package event

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// DefaultHistorySize 默认每类事件保留的历史条数
const DefaultHistorySize = 64

// EventBus 事件总线
type EventBus struct {
	bus    evbus.Bus
	logger log.Logger

	historyMu   sync.RWMutex
	history     map[event.EventType][]interface{}
	historySize int

	published atomic.Uint64
}

var _ event.EventBus = (*EventBus)(nil)

// New 创建事件总线；historySize 为 0 时不记录历史
func New(logger log.Logger, historySize int) *EventBus {
	return &EventBus{
		bus:         evbus.New(),
		logger:      logger,
		history:     make(map[event.EventType][]interface{}),
		historySize: historySize,
	}
}

// Subscribe 实现订阅
func (eb *EventBus) Subscribe(eventType event.EventType, handler interface{}) error {
	return eb.bus.Subscribe(string(eventType), handler)
}

// SubscribeAsync 实现异步订阅
func (eb *EventBus) SubscribeAsync(eventType event.EventType, handler interface{}, transactional bool) error {
	return eb.bus.SubscribeAsync(string(eventType), handler, transactional)
}

// Unsubscribe 取消订阅
func (eb *EventBus) Unsubscribe(eventType event.EventType, handler interface{}) error {
	return eb.bus.Unsubscribe(string(eventType), handler)
}

// Publish 发布事件；首个参数作为历史记录
func (eb *EventBus) Publish(eventType event.EventType, args ...interface{}) {
	eb.published.Add(1)
	if eb.historySize > 0 && len(args) > 0 {
		eb.record(eventType, args[0])
	}
	if eb.logger != nil {
		eb.logger.Debugf("发布事件: type=%s", eventType)
	}
	eb.bus.Publish(string(eventType), args...)
}

func (eb *EventBus) record(eventType event.EventType, payload interface{}) {
	eb.historyMu.Lock()
	defer eb.historyMu.Unlock()
	h := append(eb.history[eventType], payload)
	if len(h) > eb.historySize {
		h = h[len(h)-eb.historySize:]
	}
	eb.history[eventType] = h
}

// History 返回指定类型最近的事件负载（旧到新）
func (eb *EventBus) History(eventType event.EventType) []interface{} {
	eb.historyMu.RLock()
	defer eb.historyMu.RUnlock()
	return append([]interface{}(nil), eb.history[eventType]...)
}

// Published 已发布事件总数
func (eb *EventBus) Published() uint64 {
	return eb.published.Load()
}

// HasCallback 检查是否有回调
func (eb *EventBus) HasCallback(eventType event.EventType) bool {
	return eb.bus.HasCallback(string(eventType))
}

// WaitAsync 等待异步处理完成
func (eb *EventBus) WaitAsync() {
	eb.bus.WaitAsync()
}
