package logger

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ezmail/pkg/config"
	"ezmail/pkg/trace"
)

var Log *zap.Logger

// NewLogger 根据配置创建 logger，同时设置全局 Log
func NewLogger(cfg config.LogConfig) *zap.Logger {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err == nil {
			zc.Level = zap.NewAtomicLevelAt(level)
		}
	}

	l, err := zc.Build()
	if err != nil {
		panic(err)
	}
	if cfg.Service != "" {
		l = l.With(zap.String("service", cfg.Service))
	}
	Log = l
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
