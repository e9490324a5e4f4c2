package logger

import (
	"testing"

	"github.com/sanosuguru/go-reservation-engine/internal/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_Development(t *testing.T) {
	logger := NewLogger("development", "")
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_Production(t *testing.T) {
	logger := NewLogger("production", "")
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_WithLevel(t *testing.T) {
	logger := NewLogger("development", "warn")
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLogger_WithEnvLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	logger := NewLogger("development", "")
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestNewLogger_WithInvalidLogLevel(t *testing.T) {
	// 無効なレベルでも正常に動作することを確認
	logger := NewLogger("development", "invalid_level")
	require.NotNil(t, logger)
}

func TestSet(t *testing.T) {
	originalLogger := Get()
	defer Set(originalLogger) // テスト後に元に戻す

	newLogger := zap.NewNop()
	Set(newLogger)

	assert.Equal(t, newLogger, Get())
}

func TestPackageFunctions(t *testing.T) {
	originalLogger := Get()
	defer Set(originalLogger)

	core, logs := observer.New(zapcore.DebugLevel)
	Set(zap.New(core))

	Debug("debug message")
	Info("info message", zap.String("unit_id", "A1"))
	Warn("warn message")
	Error("error message")
	With(zap.String("k", "v")).Info("with message")

	require.Equal(t, 5, logs.Len())
	entries := logs.All()
	assert.Equal(t, "info message", entries[1].Message)
	assert.Equal(t, "A1", entries[1].ContextMap()["unit_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	assert.Equal(t, "v", entries[4].ContextMap()["k"])
}

func TestErr(t *testing.T) {
	assert.Nil(t, Err(nil))

	err := errs.Mark(errs.New("seat taken"), errs.ErrConflict)
	fields := Err(err)
	require.Len(t, fields, 2)
	assert.Equal(t, "error_code", fields[1].Key)
	assert.Equal(t, "CONFLICT", fields[1].String)
}

func TestErrWithStack(t *testing.T) {
	fields := ErrWithStack(errs.New("boom"))
	require.Len(t, fields, 3)
	assert.Equal(t, "stack", fields[2].Key)
}

func TestSync(t *testing.T) {
	// Syncはエラーを返す可能性があるが、パニックしないことを確認
	assert.NotPanics(t, func() {
		_ = Sync()
	})
}
