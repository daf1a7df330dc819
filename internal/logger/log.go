package logger

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with the field helpers used across the service.
type Logger struct {
	logger *zap.Logger
}

// Field holds key-value to be written to log.
type Field struct {
	Key   string
	Value any
}

// Level represents the severity level of the log.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"

	messageKey = "message"
)

func (level Level) zapLevel() zapcore.Level {
	switch level {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New creates a production JSON logger at the given level.
func New(level Level) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.MessageKey = messageKey
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{logger: l}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{logger: zap.NewNop()}
}

// NewField returns Field with given key and value.
func NewField(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// GetZap returns the underlying zap logger.
func (l *Logger) GetZap() *zap.Logger {
	return l.logger
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}

func (l *Logger) Debug(message string, fields ...Field) {
	l.logger.Debug(message, convertFields(fields...)...)
}

func (l *Logger) Info(message string, fields ...Field) {
	l.logger.Info(message, convertFields(fields...)...)
}

func (l *Logger) Warn(message string, fields ...Field) {
	l.logger.Warn(message, convertFields(fields...)...)
}

// Error logs err at error level. Errors carrying a pkg/errors stack trace get
// it attached in place of zap's own caller stack.
func (l *Logger) Error(err error, fields ...Field) {
	ce := l.logger.Check(zapcore.ErrorLevel, err.Error())
	if ce == nil {
		return
	}
	if st, ok := err.(stackTracer); ok {
		ce.Stack = strings.TrimSpace(fmt.Sprintf("%+v", st.StackTrace()))
	}
	ce.Write(convertFields(fields...)...)
}

// WithFields returns a child logger with additional fields.
func (l *Logger) WithFields(fields ...Field) *Logger {
	return &Logger{logger: l.logger.With(convertFields(fields...)...)}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func convertFields(fields ...Field) []zapcore.Field {
	zapFields := make([]zapcore.Field, 0, len(fields))
	for _, field := range fields {
		zapFields = append(zapFields, zap.Any(field.Key, field.Value))
	}
	return zapFields
}
