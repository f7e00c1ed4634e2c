// Package event 定义协议组件之间的事件总线接口与事件类型
//
// 📋 **事件类型约定**：{组件}.{对象}.{动作}
// 事件负载由发布方所在包定义，订阅方按负载类型声明处理函数参数。
package event

// EventType 事件类型
type EventType string

// 账本事件
const (
	// EventTypeObjectAppended 对象账本追加了新承诺
	EventTypeObjectAppended EventType = "bulletin.object.appended"
	// EventTypeTicketCalled 回调账本记录了一次调用
	EventTypeTicketCalled EventType = "bulletin.callback.called"
)

// 服务事件
const (
	// EventTypeInteractionApproved 服务批准并存储了一次交互
	EventTypeInteractionApproved EventType = "service.interaction.approved"
	// EventTypeJoinApproved 服务批准了一个新对象加入
	EventTypeJoinApproved EventType = "service.join.approved"
)

// EventBus 事件总线接口
type EventBus interface {
	// Subscribe 同步订阅；handler 为任意函数，参数与 Publish 的 args 对应
	Subscribe(eventType EventType, handler interface{}) error

	// SubscribeAsync 异步订阅；transactional 为真时同一处理器串行执行
	SubscribeAsync(eventType EventType, handler interface{}, transactional bool) error

	// Unsubscribe 取消订阅
	Unsubscribe(eventType EventType, handler interface{}) error

	// Publish 发布事件
	Publish(eventType EventType, args ...interface{})

	// HasCallback 是否存在订阅者
	HasCallback(eventType EventType) bool

	// WaitAsync 等待所有异步处理器完成
	WaitAsync()
}
