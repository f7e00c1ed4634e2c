package app

// Option 应用程序选项函数类型
type Option func(*options)

// options 应用程序选项
type options struct {
	// 配置文件路径，为空时只使用默认值与环境变量
	configFilePath string

	// 额外的 fx 选项（测试或演示命令注入）
	extra []fxOption
}

// WithConfigFile 设置配置文件路径
func WithConfigFile(configPath string) Option {
	return func(o *options) {
		o.configFilePath = configPath
	}
}

// WithFxOptions 追加 fx 选项，例如 fx.Invoke 或 fx.Replace
func WithFxOptions(opts ...fxOption) Option {
	return func(o *options) {
		o.extra = append(o.extra, opts...)
	}
}

func newOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
