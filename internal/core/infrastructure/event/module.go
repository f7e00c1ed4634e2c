package event

import (
	"context"

	"go.uber.org/fx"

	eventInterface "github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// ModuleInput 事件模块输入依赖
type ModuleInput struct {
	fx.In

	Logger    log.Logger `optional:"true"`
	Lifecycle fx.Lifecycle
}

// ModuleOutput 事件模块输出服务
type ModuleOutput struct {
	fx.Out

	EventBus eventInterface.EventBus
	Bus      *EventBus
}

// Module 返回事件模块
func Module() fx.Option {
	return fx.Module("event",
		fx.Provide(func(input ModuleInput) ModuleOutput {
			var logger log.Logger
			if input.Logger != nil {
				logger = input.Logger.With("module", "event")
			}
			bus := New(logger, DefaultHistorySize)
			// 停止时等待异步处理器，避免丢失尾部事件
			input.Lifecycle.Append(fx.Hook{
				OnStop: func(context.Context) error {
					bus.WaitAsync()
					return nil
				},
			})
			return ModuleOutput{EventBus: bus, Bus: bus}
		}),
	)
}
