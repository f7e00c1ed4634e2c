package log

import (
	"fmt"

	"go.uber.org/zap/zapcore"

	logiface "github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// LogOptions 日志配置选项
type LogOptions struct {
	// === 基础配置 ===
	Level     string `json:"level" mapstructure:"level"`           // 日志级别 (debug, info, warn, error)
	ToConsole bool   `json:"to_console" mapstructure:"to_console"` // 是否输出到控制台
	FilePath  string `json:"file_path" mapstructure:"file_path"`   // 日志文件路径，空表示不写文件

	// === 基础轮转配置 ===
	MaxSize    int  `json:"max_size" mapstructure:"max_size"`       // 单个日志文件最大大小(MB)
	MaxBackups int  `json:"max_backups" mapstructure:"max_backups"` // 最大备份文件数
	MaxAge     int  `json:"max_age" mapstructure:"max_age"`         // 日志文件最大保留天数
	Compress   bool `json:"compress" mapstructure:"compress"`       // 是否压缩历史日志文件

	// === 调试配置 ===
	EnableCaller     bool `json:"enable_caller" mapstructure:"enable_caller"`         // 是否启用调用者信息
	EnableStacktrace bool `json:"enable_stacktrace" mapstructure:"enable_stacktrace"` // 是否启用堆栈跟踪
}

// Validate 校验日志级别与输出配置
func (o *LogOptions) Validate() error {
	if _, ok := levelMap[logiface.LogLevel(o.Level)]; !ok {
		return fmt.Errorf("未知日志级别: %q", o.Level)
	}
	if o.FilePath != "" && o.MaxSize <= 0 {
		return fmt.Errorf("max_size 必须为正数: %d", o.MaxSize)
	}
	return nil
}

// Config 日志配置实现
type Config struct {
	options *LogOptions
}

// New 创建日志配置；options 为 nil 时使用默认值
func New(options *LogOptions) *Config {
	if options == nil {
		options = DefaultOptions()
	}
	return &Config{options: options}
}

// DefaultOptions 创建默认日志配置
func DefaultOptions() *LogOptions {
	return &LogOptions{
		Level:            defaultLogLevel,
		ToConsole:        defaultToConsole,
		FilePath:         defaultFilePath,
		MaxSize:          defaultMaxSize,
		MaxBackups:       defaultMaxBackups,
		MaxAge:           defaultMaxAge,
		Compress:         defaultCompress,
		EnableCaller:     defaultEnableCaller,
		EnableStacktrace: defaultEnableStacktrace,
	}
}

// GetOptions 获取完整的日志配置选项
func (c *Config) GetOptions() *LogOptions {
	return c.options
}

// GetZapLevel 获取zap日志级别
func (c *Config) GetZapLevel() zapcore.Level {
	if level, exists := levelMap[logiface.LogLevel(c.options.Level)]; exists {
		return level
	}
	return zapcore.InfoLevel
}

// IsConsoleEnabled 是否启用控制台输出
func (c *Config) IsConsoleEnabled() bool {
	return c.options.ToConsole
}

// GetFilePath 获取日志文件路径
func (c *Config) GetFilePath() string {
	return c.options.FilePath
}

// GetMaxSize 获取单个文件最大大小(MB)
func (c *Config) GetMaxSize() int {
	return c.options.MaxSize
}

// GetMaxBackups 获取最大备份文件数
func (c *Config) GetMaxBackups() int {
	return c.options.MaxBackups
}

// GetMaxAge 获取最大保留天数
func (c *Config) GetMaxAge() int {
	return c.options.MaxAge
}

// IsCompressionEnabled 是否启用压缩
func (c *Config) IsCompressionEnabled() bool {
	return c.options.Compress
}

// IsCallerEnabled 是否启用调用者信息
func (c *Config) IsCallerEnabled() bool {
	return c.options.EnableCaller
}

// IsStacktraceEnabled 是否启用堆栈跟踪
func (c *Config) IsStacktraceEnabled() bool {
	return c.options.EnableStacktrace
}

// encoderConfig 文件与控制台共用的字段布局
func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
	}
}

// CreateFileEncoder 创建文件编码器（JSON）
func (c *Config) CreateFileEncoder() zapcore.Encoder {
	return zapcore.NewJSONEncoder(encoderConfig())
}

// CreateConsoleEncoder 创建控制台编码器
func (c *Config) CreateConsoleEncoder() zapcore.Encoder {
	ec := encoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(ec)
}
