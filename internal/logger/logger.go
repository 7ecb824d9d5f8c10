// Package logger 基于zap的日志系统。
// 主日志按配置输出到控制台和轮转文件，error.log单独落盘方便现场取证；
// 各模块可独立调级，排查串口问题时只放开hardware的debug即可。
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu sync.RWMutex

	// root 供调用方直接持有，helpers给包级便捷函数用（多一层调用栈）
	root    *zap.Logger
	helpers *zap.Logger

	moduleLoggers map[string]*zap.Logger

	fallbackOnce sync.Once
	fallback     *zap.Logger

	sinks logSinks
)

// logSinks Init时构建一次的输出端，主日志器与模块日志器共用
type logSinks struct {
	consoleEncoder zapcore.Encoder
	fileEncoder    zapcore.Encoder
	console        zapcore.WriteSyncer
	file           zapcore.WriteSyncer
	errorFile      zapcore.WriteSyncer
}

// Init 初始化日志系统。重复调用会重建日志器
func Init(cfg *config.LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if err := buildSinks(cfg); err != nil {
		return err
	}

	root = newLogger(parseLevel(cfg.Level))
	helpers = root.WithOptions(zap.AddCallerSkip(1))

	moduleLoggers = make(map[string]*zap.Logger, len(cfg.Modules))
	for module, levelName := range cfg.Modules {
		moduleLoggers[module] = newLogger(parseLevel(levelName)).Named(module)
	}

	return nil
}

// buildSinks 构建编码器与输出端，调用方需持有mu
func buildSinks(cfg *config.LogConfig) error {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// 落盘的日志不带ANSI颜色，采集端按行解析
	if cfg.Format == "json" {
		sinks.consoleEncoder = zapcore.NewJSONEncoder(encCfg)
		sinks.fileEncoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		colorCfg := encCfg
		colorCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		sinks.consoleEncoder = zapcore.NewConsoleEncoder(colorCfg)
		sinks.fileEncoder = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks.console = nil
	sinks.file = nil
	sinks.errorFile = nil

	if cfg.Output == "stdout" || cfg.Output == "both" {
		sinks.console = zapcore.AddSync(os.Stdout)
	}

	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
			return err
		}

		sinks.file = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, cfg.File.Filename),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		})

		// error级别单独落盘，现场取证不用翻全量日志
		sinks.errorFile = zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, "error.log"),
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			Compress:   cfg.File.Compress,
		})
	}

	return nil
}

// newLogger 按级别组装输出核心，调用方需持有mu
func newLogger(level zapcore.Level) *zap.Logger {
	var cores []zapcore.Core
	if sinks.console != nil {
		cores = append(cores, zapcore.NewCore(sinks.consoleEncoder, sinks.console, level))
	}
	if sinks.file != nil {
		cores = append(cores, zapcore.NewCore(sinks.fileEncoder, sinks.file, level))
	}
	if sinks.errorFile != nil {
		cores = append(cores, zapcore.NewCore(sinks.fileEncoder, sinks.errorFile, zapcore.ErrorLevel))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// parseLevel 解析日志级别，未知值按info处理
func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func fallbackLogger() *zap.Logger {
	fallbackOnce.Do(func() {
		fallback, _ = zap.NewProduction()
	})
	return fallback
}

// GetLogger 获取主日志器，未初始化时返回zap生产默认配置
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if root == nil {
		return fallbackLogger()
	}
	return root
}

// GetModuleLogger 获取模块日志器，未单独配级的模块用主日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if moduleLogger, ok := moduleLoggers[module]; ok {
		return moduleLogger
	}
	if root == nil {
		return fallbackLogger()
	}
	return root
}

func helperLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if helpers == nil {
		return fallbackLogger()
	}
	return helpers
}

// Sync 刷新日志缓冲区，进程退出前调用
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if root != nil {
		return root.Sync()
	}
	return nil
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	helperLogger().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	helperLogger().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	helperLogger().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	helperLogger().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	helperLogger().Fatal(msg, fields...)
}

// LogMQTTMessage 记录MQTT收发报文
func LogMQTTMessage(topic string, action string, payload interface{}) {
	GetModuleLogger("mqtt").Info("mqtt_message",
		zap.String("topic", topic),
		zap.String("action", action), // "publish" / "receive"
		zap.Any("payload", payload),
	)
}
