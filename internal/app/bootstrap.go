package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	config "github.com/weisyn/zkcallback/internal/config"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/event"
	log "github.com/weisyn/zkcallback/internal/core/infrastructure/log"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/metrics"
	"github.com/weisyn/zkcallback/internal/core/infrastructure/storage"
	"github.com/weisyn/zkcallback/internal/core/service"
)

type fxOption = fx.Option

// Framework layers
const (
	// 基础设施层
	LayerInfrastructure = "infrastructure"
	// 协议层
	LayerProtocol = "protocol"
)

// startTimeout 启动超时
const startTimeout = 30 * time.Second

// Bootstrap 应用引导程序
type Bootstrap struct {
	opts  *options
	fxApp *fx.App
	comps Components
}

// NewBootstrap 创建引导程序
func NewBootstrap(opts *options) *Bootstrap {
	return &Bootstrap{
		opts: opts,
	}
}

// SetupInfrastructureLayer 设置基础设施层模块
func (b *Bootstrap) SetupInfrastructureLayer() []fx.Option {
	return []fx.Option{
		// 配置文件路径以命名值提供给 config 模块
		fx.Provide(fx.Annotate(func() string { return b.opts.configFilePath }, fx.ResultTags(`name:"config_path"`))),
		config.Module(),  // 1. 配置(不依赖其他)
		log.Module(),     // 2. 日志(依赖配置)
		metrics.Module(), // 3. 指标
		event.Module(),   // 4. 事件(依赖日志)
		storage.Module(), // 5. 存储(依赖配置和日志)
	}
}

// SetupProtocolLayer 设置协议层模块：账本、证明组件与服务方
func (b *Bootstrap) SetupProtocolLayer() []fx.Option {
	return []fx.Option{
		service.Module(),
	}
}

// SetupModules 设置所有应用模块
func (b *Bootstrap) SetupModules() []fx.Option {
	var all []fx.Option
	all = append(all, b.SetupInfrastructureLayer()...)
	all = append(all, b.SetupProtocolLayer()...)
	all = append(all, fx.Invoke(func(c Components) { b.comps = c }))
	return append(all, b.opts.extra...)
}

// CreateFxApp 创建并配置fx应用
func (b *Bootstrap) CreateFxApp() error {
	b.fxApp = fx.New(
		fx.Options(b.SetupModules()...),
		// 禁用fx内部日志
		fx.NopLogger,
	)
	if err := b.fxApp.Err(); err != nil {
		return fmt.Errorf("装配模块失败: %w", err)
	}
	return nil
}

// StartApp 启动应用程序
func (b *Bootstrap) StartApp(ctx context.Context) error {
	if err := b.fxApp.Start(ctx); err != nil {
		return fmt.Errorf("启动应用失败: %w", err)
	}
	return nil
}

// StopApp 停止应用程序
func (b *Bootstrap) StopApp(ctx context.Context) error {
	if err := b.fxApp.Stop(ctx); err != nil {
		return fmt.Errorf("停止应用失败: %w", err)
	}
	return nil
}

// BootstrapApp 执行完整的引导过程并返回应用实例
func BootstrapApp(options ...Option) (App, error) {
	bootstrap := NewBootstrap(newOptions(options...))
	if err := bootstrap.CreateFxApp(); err != nil {
		return nil, fmt.Errorf("创建应用失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := bootstrap.StartApp(ctx); err != nil {
		return nil, err
	}

	return &internalApp{bootstrap: bootstrap}, nil
}
