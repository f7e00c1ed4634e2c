package config

import (
	"go.uber.org/fx"

	logconfig "github.com/weisyn/zkcallback/internal/config/log"
	"github.com/weisyn/zkcallback/internal/config/protocol"
	"github.com/weisyn/zkcallback/internal/config/storage"
)

// ConfigParams 配置模块依赖参数
type ConfigParams struct {
	fx.In

	// Path 配置文件路径，未提供时只使用默认值与环境变量
	Path string `name:"config_path" optional:"true"`
}

// ConfigOutput 配置模块输出
type ConfigOutput struct {
	fx.Out

	Config   *Config
	Log      *logconfig.Config
	Storage  *storage.StorageOptions
	Protocol *protocol.ProtocolOptions
	Metrics  *MetricsOptions
}

// Module 返回配置模块
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(ProvideConfig),
	)
}

// ProvideConfig 加载配置并拆分各配置段
func ProvideConfig(params ConfigParams) (ConfigOutput, error) {
	cfg, err := Load(params.Path)
	if err != nil {
		return ConfigOutput{}, err
	}
	return ConfigOutput{
		Config:   cfg,
		Log:      cfg.GetLog(),
		Storage:  cfg.GetStorage(),
		Protocol: cfg.GetProtocol(),
		Metrics:  &cfg.Metrics,
	}, nil
}
