package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 全进程共用一个实例。这里不提供 Fatal, 要不要退出由调用方自己定。
var log *zap.Logger

func init() {
	log = zap.New(consoleCore(), zap.AddCaller(), zap.AddCallerSkip(1))
}

// 控制台单行彩色输出, 采集侧按行收
func consoleCore() zapcore.Core {
	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		NameKey:      "logger",
		CallerKey:    "caller",
		MessageKey:   "msg",
		LineEnding:   zapcore.DefaultLineEnding,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.CapitalColorLevelEncoder, // 彩色等级
		EncodeCaller: zapcore.ShortCallerEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stdout),
		levelFromEnv(),
	)
}

// LOG_LEVEL 环境变量控制输出等级, 默认 debug
func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

// Sync 进程退出前刷缓冲
func Sync() { _ = log.Sync() }

// 快捷方法
func Info(msg string, fields ...zap.Field) { log.Info(msg, fields...) }
func Infof(format string, args ...interface{}) {
	log.Info(fmt.Sprintf(format, args...))
}
func Warn(msg string, fields ...zap.Field) { log.Warn(msg, fields...) }
func Warnf(format string, args ...interface{}) {
	log.Warn(fmt.Sprintf(format, args...))
}
func Error(msg string, fields ...zap.Field) { log.Error(msg, fields...) }

func Errorf(format string, args ...interface{}) {
	log.Error(fmt.Sprintf(format, args...))
}

func Debug(msg string, fields ...zap.Field) { log.Debug(msg, fields...) }
func Debugf(format string, args ...interface{}) {
	log.Debug(fmt.Sprintf(format, args...))
}
