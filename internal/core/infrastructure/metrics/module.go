package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/weisyn/zkcallback/internal/config"
)

// ModuleParams 指标模块依赖
type ModuleParams struct {
	fx.In

	Options *config.MetricsOptions `optional:"true"`
}

// ModuleOutput 指标模块输出
type ModuleOutput struct {
	fx.Out

	Registry      *prometheus.Registry
	LedgerMetrics *LedgerMetrics
	ProofMetrics  *ProofMetrics
}

// Module 返回 metrics 模块的 fx.Option
//
// 提供：
// - *prometheus.Registry: 独立注册器（不使用全局默认注册器），附带 Go 运行时与进程采集器
// - *LedgerMetrics / *ProofMetrics：metrics.enabled 为 false 时为 nil（各组件对 nil 安全）
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideMetrics),
	)
}

// ProvideMetrics 创建注册器与全部指标
func ProvideMetrics(params ModuleParams) ModuleOutput {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if params.Options != nil && !params.Options.Enabled {
		return ModuleOutput{Registry: reg}
	}
	return ModuleOutput{
		Registry:      reg,
		LedgerMetrics: NewLedgerMetrics(reg),
		ProofMetrics:  NewProofMetrics(reg),
	}
}
