package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRequestIDRouter(capture *map[string]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/echo", func(c *gin.Context) {
		*capture = map[string]string{
			"gin_request_id": GetRequestIDFromGin(c),
			"gin_trace_id":   GetTraceIDFromGin(c),
			"ctx_request_id": GetRequestID(c.Request.Context()),
			"ctx_trace_id":   GetTraceID(c.Request.Context()),
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var got map[string]string
	r := newRequestIDRouter(&got)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/echo", nil))

	if got["gin_request_id"] == "" {
		t.Fatal("request id should be generated when header absent")
	}
	// Gin 键与请求上下文要看到同一个值
	if got["gin_request_id"] != got["ctx_request_id"] {
		t.Errorf("gin key %q and context value %q diverge", got["gin_request_id"], got["ctx_request_id"])
	}
	if resp.Header().Get(HeaderRequestID) != got["gin_request_id"] {
		t.Error("response header should echo the generated request id")
	}
}

func TestRequestIDMiddlewarePassesThroughHeaders(t *testing.T) {
	var got map[string]string
	r := newRequestIDRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/echo", nil)
	req.Header.Set(HeaderRequestID, "req-given")
	req.Header.Set(HeaderTraceID, "trace-given")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if got["gin_request_id"] != "req-given" {
		t.Errorf("expected upstream request id to pass through, got %q", got["gin_request_id"])
	}
	if got["ctx_trace_id"] != "trace-given" {
		t.Errorf("expected trace id in request context, got %q", got["ctx_trace_id"])
	}
	if resp.Header().Get(HeaderTraceID) != "trace-given" {
		t.Error("response header should echo the trace id")
	}
}

func TestRequestIDMiddlewareDoesNotInventTraceID(t *testing.T) {
	var got map[string]string
	r := newRequestIDRouter(&got)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/echo", nil))

	// 没带追踪头的请求不该凭空多出 trace id
	if got["gin_trace_id"] != "" || got["ctx_trace_id"] != "" {
		t.Errorf("trace id should stay empty, got gin=%q ctx=%q", got["gin_trace_id"], got["ctx_trace_id"])
	}
	if resp.Header().Get(HeaderTraceID) != "" {
		t.Error("no trace header in, no trace header out")
	}
}
