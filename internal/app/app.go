// Package app 用 fx 装配配置、日志、指标、事件、存储与服务方，
// 并把装配结果以 Components 暴露给命令行与集成测试。
package app

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	config "github.com/weisyn/zkcallback/internal/config"
	"github.com/weisyn/zkcallback/internal/core/bulletin"
	"github.com/weisyn/zkcallback/internal/core/service"
	"github.com/weisyn/zkcallback/internal/core/zkproof"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/clock"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/event"
	"github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// stopTimeout 停止超时
const stopTimeout = 10 * time.Second

// Components 装配完成的组件
type Components struct {
	fx.In

	Config         *config.Config
	Logger         log.Logger
	Registry       *prometheus.Registry
	Bus            event.EventBus
	Service        *service.Service
	ObjectLedger   *bulletin.ObjectLedger
	CallbackLedger *bulletin.CallbackLedger
	CircuitManager *zkproof.CircuitManager
	Prover         *zkproof.Prover
	Verifier       zkproof.Verifier
	Clock          clock.Clock
}

// App 应用接口
type App interface {
	// Components 返回装配完成的组件
	Components() *Components
	// Stop 停止应用并释放资源
	Stop() error
}

// internalApp 应用实现
type internalApp struct {
	bootstrap *Bootstrap
}

// Components 实现 App
func (a *internalApp) Components() *Components {
	return &a.bootstrap.comps
}

// Stop 实现 App
func (a *internalApp) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return a.bootstrap.StopApp(ctx)
}
