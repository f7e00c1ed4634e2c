package log

import (
	"go.uber.org/zap/zapcore"

	logiface "github.com/weisyn/zkcallback/pkg/interfaces/infrastructure/log"
)

// 日志配置默认值
const (
	// defaultLogLevel 默认日志级别
	defaultLogLevel = string(logiface.InfoLevel)

	// defaultToConsole 默认启用控制台输出
	defaultToConsole = true

	// defaultFilePath 默认不写文件，CLI 演示只需要控制台
	defaultFilePath = ""

	// defaultMaxSize 单个日志文件最大大小(MB)
	defaultMaxSize = 100

	// defaultMaxBackups 最大备份文件数
	defaultMaxBackups = 10

	// defaultMaxAge 日志文件最大保留天数
	defaultMaxAge = 30

	// defaultCompress 默认压缩历史日志
	defaultCompress = true

	// defaultEnableCaller 默认启用调用者信息
	defaultEnableCaller = true

	// defaultEnableStacktrace 对Error级别启用堆栈跟踪
	defaultEnableStacktrace = true
)

// levelMap 日志级别映射
var levelMap = map[logiface.LogLevel]zapcore.Level{
	logiface.DebugLevel: zapcore.DebugLevel,
	logiface.InfoLevel:  zapcore.InfoLevel,
	logiface.WarnLevel:  zapcore.WarnLevel,
	logiface.ErrorLevel: zapcore.ErrorLevel,
}
