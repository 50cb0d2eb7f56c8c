package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 日志接口
type Logger interface {
	Debugf(ctx context.Context, format string, args ...interface{})
	Infof(ctx context.Context, format string, args ...interface{})
	Warnf(ctx context.Context, format string, args ...interface{})
	Errorf(ctx context.Context, format string, args ...interface{})
	Zap() *zap.Logger
	Sync() error
}

type ctxKey string

const (
	keyRunID   ctxKey = "run_id"
	keyEventID ctxKey = "event_id"
)

// WithRunID 在 Context 中写入本次同步运行 ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID 读取运行 ID
func RunID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(keyRunID).(string)
	return v
}

// WithEventID 在 Context 中写入事件 ID
func WithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, keyEventID, eventID)
}

// ZapLogger Zap 日志实现
type ZapLogger struct {
	logger *zap.Logger
}

// New 创建 Zap 日志实例
// level: debug/info/warn/error; encoding: json/console
func New(level, encoding string) (Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}
	if encoding != "console" {
		encoding = "json"
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{logger: logger}, nil
}

// NewNop 空日志（测试用）
func NewNop() Logger {
	return &ZapLogger{logger: zap.NewNop()}
}

// FromZap 包装已有 zap.Logger
func FromZap(l *zap.Logger) Logger {
	return &ZapLogger{logger: l}
}

// extractFields 从 Context 提取日志字段
func (l *ZapLogger) extractFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 2)
	if runID, ok := ctx.Value(keyRunID).(string); ok && runID != "" {
		fields = append(fields, zap.String("run_id", runID))
	}
	if eventID, ok := ctx.Value(keyEventID).(string); ok && eventID != "" {
		fields = append(fields, zap.String("event_id", eventID))
	}
	return fields
}

func (l *ZapLogger) Debugf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

func (l *ZapLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

func (l *ZapLogger) Warnf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

func (l *ZapLogger) Errorf(ctx context.Context, format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), l.extractFields(ctx)...)
}

// Zap 返回底层 zap.Logger
func (l *ZapLogger) Zap() *zap.Logger {
	return l.logger
}

// Sync 同步日志缓冲区
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}
