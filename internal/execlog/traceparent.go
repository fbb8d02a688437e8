package execlog

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var traceParentPropagator = propagation.TraceContext{}

// ParseTraceParent 解析 W3C traceparent 头，返回其中的 32 位十六进制 traceId。
// 头格式: {version}-{trace-id:32hex}-{parent-id:16hex}-{trace-flags}；
// 也接受不带分段的裸 32 位小写十六进制 traceId（部分调用方只透传 id 本身）。
// 解析失败返回空串；原始头由调用方自行保留。
func ParseTraceParent(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	// TraceIDFromHex 只认 32 位小写十六进制且拒绝全零，正好是裸 id 的校验规则
	if id, err := trace.TraceIDFromHex(header); err == nil {
		return id.String()
	}

	carrier := propagation.MapCarrier{"traceparent": header}
	ctx := traceParentPropagator.Extract(context.Background(), carrier)

	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
