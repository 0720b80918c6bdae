package logging

import (
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the application logger: an ectologger front with a zap sink.
// The returned flush function should be deferred from main.
func New(appName, level string, pretty bool) (ectologger.Logger, func()) {
	cfg := zap.NewProductionConfig()
	if pretty {
		cfg = zap.NewDevelopmentConfig()
	}
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	zlog, err := cfg.Build(zap.Fields(zap.String("app", appName)))
	if err != nil {
		zlog = zap.NewNop()
	}

	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		zlog.Log(zapLevel(msg.Level), "log", zap.Any("entry", msg))
	})

	return logger, func() { _ = zlog.Sync() }
}

// zapLevel carries the message's severity through to the zap sink, so level
// filtering and alerting see errors as errors.
func zapLevel(level any) zapcore.Level {
	switch strings.ToLower(fmt.Sprint(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal", "panic":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
