package infra

import (
	"context"
	"errors"
	"time"

	"prompthub/internal/middleware"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

// GormZapLogger GORM 日志适配器（输出到 Zap，自动附带 request_id/trace_id）
type GormZapLogger struct {
	ZapLogger                 *zap.Logger
	LogLevel                  gormLogger.LogLevel
	SlowThreshold             time.Duration
	IgnoreRecordNotFoundError bool
}

// LogMode 设置日志级别
func (l *GormZapLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info 日志
func (l *GormZapLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Info {
		l.ctxLogger(ctx).Sugar().Infof(msg, data...)
	}
}

// Warn 日志
func (l *GormZapLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Warn {
		l.ctxLogger(ctx).Sugar().Warnf(msg, data...)
	}
}

// Error 日志
func (l *GormZapLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormLogger.Error {
		l.ctxLogger(ctx).Sugar().Errorf(msg, data...)
	}
}

// Trace SQL 执行日志，按错误 > 慢查询 > 普通的优先级取一档输出
func (l *GormZapLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	notFoundIgnored := errors.Is(err, gormLogger.ErrRecordNotFound) && l.IgnoreRecordNotFoundError

	switch {
	case err != nil && !notFoundIgnored:
		l.ctxLogger(ctx).Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case l.SlowThreshold > 0 && elapsed > l.SlowThreshold:
		l.ctxLogger(ctx).Warn("SQL 慢查询", fields...)
	case l.LogLevel >= gormLogger.Info:
		l.ctxLogger(ctx).Debug("SQL 执行", fields...)
	}
}

// ctxLogger 从上下文提取 request_id/trace_id 字段。
// 键由 middleware.RequestIDMiddleware 写入；worker 消费路径的上下文
// 没有这些键，降级为裸 Logger。
func (l *GormZapLogger) ctxLogger(ctx context.Context) *zap.Logger {
	log := l.ZapLogger
	if ctx == nil {
		return log
	}
	if requestID := middleware.GetRequestID(ctx); requestID != "" {
		log = log.With(zap.String("request_id", requestID))
	}
	if traceID := middleware.GetTraceID(ctx); traceID != "" {
		log = log.With(zap.String("trace_id", traceID))
	}
	return log
}
