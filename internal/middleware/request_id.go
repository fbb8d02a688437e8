package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 上下文键
type contextKey string

const (
	// RequestIDKey 请求 ID 上下文键
	RequestIDKey contextKey = "request_id"
	// TraceIDKey 追踪 ID 上下文键
	TraceIDKey contextKey = "trace_id"
)

// HTTP 头常量
const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// RequestIDMiddleware 请求 ID 中间件。
// 为每个请求生成唯一的请求 ID；调用方可通过 X-Trace-ID 头把自己的分布式
// 追踪标识透传进来，执行接口会将其落到执行日志上。
// Trace ID 只透传不生成：没有追踪标识的执行不参与链路聚合。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		stamp(c, RequestIDKey, HeaderRequestID, requestID)

		if traceID := c.GetHeader(HeaderTraceID); traceID != "" {
			stamp(c, TraceIDKey, HeaderTraceID, traceID)
		}

		c.Next()
	}
}

// stamp 把标识同时写进 Gin 键、请求上下文和响应头。
// Gin 键给 handler 层用，请求上下文给 gorm 日志这类深层组件用。
func stamp(c *gin.Context, key contextKey, header, value string) {
	c.Set(string(key), value)
	c.Request = c.Request.WithContext(
		context.WithValue(c.Request.Context(), key, value))
	c.Header(header, value)
}

// GetRequestID 从上下文获取请求 ID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// GetTraceID 从上下文获取调用方透传的追踪 ID
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// GetRequestIDFromGin 从 Gin 上下文获取请求 ID
func GetRequestIDFromGin(c *gin.Context) string {
	id, _ := c.Get(string(RequestIDKey))
	s, _ := id.(string)
	return s
}

// GetTraceIDFromGin 从 Gin 上下文获取追踪 ID
func GetTraceIDFromGin(c *gin.Context) string {
	id, _ := c.Get(string(TraceIDKey))
	s, _ := id.(string)
	return s
}
