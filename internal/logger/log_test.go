package logger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{logger: zap.New(core)}, logs
}

func TestWithFieldsAndLevels(t *testing.T) {
	l, logs := observed(zapcore.InfoLevel)

	child := l.WithFields(NewField("component", "feed"))
	child.Debug("hidden")
	child.Info("connected", NewField("url", "ws://x"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "connected", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "feed", ctx["component"])
	assert.Equal(t, "ws://x", ctx["url"])
}

func TestError_AttachesStackTrace(t *testing.T) {
	l, logs := observed(zapcore.DebugLevel)

	l.Error(errors.Wrap(errors.New("dial refused"), "dial"), NewField("attempt", 3))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "dial: dial refused", entry.Message)
	assert.Contains(t, entry.Stack, "TestError_AttachesStackTrace")
}

func TestLevel_zapLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, DebugLevel.zapLevel())
	assert.Equal(t, zapcore.WarnLevel, WarnLevel.zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ErrorLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, Level("bogus").zapLevel())
}
