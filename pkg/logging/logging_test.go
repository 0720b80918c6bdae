package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestZapLevelMapping(t *testing.T) {
	tests := []struct {
		level    any
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"ERROR", zapcore.ErrorLevel},
		{"fatal", zapcore.ErrorLevel},
		{"something-else", zapcore.InfoLevel},
		{nil, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, zapLevel(tt.level), "level %v", tt.level)
	}
}

func TestNewReturnsUsableLogger(t *testing.T) {
	logger, flush := New("test", "debug", false)
	defer flush()

	logger.Info("info message")
	logger.Error("error message")
}
