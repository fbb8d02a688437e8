package executions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"prompthub/internal/ai"
	"prompthub/internal/execlog"
	"prompthub/internal/middleware"
	"prompthub/internal/objectstore"
	"prompthub/internal/project"
	"prompthub/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type stubPrompts struct {
	pv *project.PromptVersion
}

func (s *stubPrompts) GetVersion(_ context.Context, tenantID, promptID int64, version int) (*project.PromptVersion, error) {
	if s.pv == nil || s.pv.PromptID != promptID {
		return nil, project.ErrPromptNotFound
	}
	return s.pv, nil
}

type stubProvider struct {
	result *ai.Result
	err    error
}

func (s *stubProvider) Generate(context.Context, *ai.Request) (*ai.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type stubProviders struct {
	provider ai.Provider
}

func (s *stubProviders) ProviderFor(string) (ai.Provider, error) {
	return s.provider, nil
}

type stubQueue struct {
	payloads []tasks.LogFinalizePayload
}

func (s *stubQueue) EnqueueLogFinalize(_ context.Context, payload tasks.LogFinalizePayload) error {
	s.payloads = append(s.payloads, payload)
	return nil
}

var executionRouterSeq int

func newExecutionRouter(t *testing.T) (*gin.Engine, *stubQueue, *stubProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	executionRouterSeq++
	dsn := fmt.Sprintf("file:execution_handler_%d?mode=memory&cache=shared", executionRouterSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&execlog.ExecutionLog{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	queue := &stubQueue{}
	factory := execlog.NewFactory(
		execlog.NewRepository(db),
		execlog.NewArtifactStore(objectstore.NewMemoryStore(), nil),
		queue,
		zaptest.NewLogger(t),
	)

	prompts := &stubPrompts{pv: &project.PromptVersion{
		ID:       1,
		TenantID: 7,
		PromptID: 100,
		Version:  2,
		Content:  "Summarize: {{.topic}}",
		Model:    "gpt-4o-mini",
	}}
	provider := &stubProvider{result: &ai.Result{
		Content:    "done",
		Model:      "gpt-4o-mini",
		DurationMs: 12,
	}}
	providers := &stubProviders{provider: provider}

	runner := ai.NewRunner(prompts, providers, factory, zaptest.NewLogger(t))
	handler := NewExecutionHandler(runner)

	router := gin.New()
	group := router.Group("/api")
	group.Use(middleware.GinTenantContextMiddleware(nil, zaptest.NewLogger(t)))
	group.Use(middleware.RequestIDMiddleware())
	group.POST("/prompts/:id/execute", handler.Execute)

	return router, queue, provider
}

// decodeExecuteData 解包统一响应信封里的 data 字段
func decodeExecuteData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, w.Body.String())
	}
	if !envelope.Success {
		t.Fatalf("期望成功响应, body=%s", w.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("解析 data 失败: %v", err)
	}
}

func postExecute(t *testing.T, router *gin.Engine, promptID string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("编码请求体失败: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/prompts/"+promptID+"/execute", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "7")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestExecutionHandlerSuccess(t *testing.T) {
	router, queue, _ := newExecutionRouter(t)

	w := postExecute(t, router, "100", gin.H{
		"projectId": 1,
		"variables": gin.H{"topic": "queues"},
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ai.ExecuteResponse
	decodeExecuteData(t, w, &resp)
	if resp.LogID == 0 {
		t.Fatal("期望返回落库后的日志 ID")
	}
	assert.Equal(t, "done", resp.Result.Content)

	if len(queue.payloads) != 1 {
		t.Fatalf("期望投递一条收尾消息，实际 %d", len(queue.payloads))
	}
	assert.Equal(t, resp.LogID, queue.payloads[0].LogID)
}

func TestExecutionHandlerTraceHeaderFallback(t *testing.T) {
	router, queue, _ := newExecutionRouter(t)

	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	w := postExecute(t, router, "100", gin.H{
		"projectId": 1,
		"variables": gin.H{"topic": "tracing"},
	}, map[string]string{"X-Trace-ID": traceparent})
	assert.Equal(t, http.StatusOK, w.Code)

	if len(queue.payloads) != 1 {
		t.Fatalf("期望投递一条收尾消息，实际 %d", len(queue.payloads))
	}
}

func TestExecutionHandlerPromptNotFound(t *testing.T) {
	router, _, _ := newExecutionRouter(t)

	w := postExecute(t, router, "999", gin.H{"projectId": 1}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"code":2010`)
}

func TestExecutionHandlerBadRequest(t *testing.T) {
	router, _, _ := newExecutionRouter(t)

	// projectId 缺失
	w := postExecute(t, router, "100", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 提示词 ID 非数字
	w = postExecute(t, router, "abc", gin.H{"projectId": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecutionHandlerProviderFailure(t *testing.T) {
	router, queue, provider := newExecutionRouter(t)
	provider.err = errors.New("upstream returned 503")

	w := postExecute(t, router, "100", gin.H{
		"projectId": 1,
		"variables": gin.H{"topic": "outage"},
	}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	// 提供商错误文本原样透出，并标记为模型调用失败
	assert.Contains(t, w.Body.String(), `"code":3001`)
	assert.Contains(t, w.Body.String(), "upstream returned 503")

	// 失败的执行同样要投递收尾消息
	if len(queue.payloads) != 1 {
		t.Fatalf("期望投递一条收尾消息，实际 %d", len(queue.payloads))
	}
}

func TestExecutionHandlerSilentSkipsQueue(t *testing.T) {
	router, queue, _ := newExecutionRouter(t)

	w := postExecute(t, router, "100", gin.H{
		"projectId": 1,
		"silent":    true,
	}, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp ai.ExecuteResponse
	decodeExecuteData(t, w, &resp)
	assert.Equal(t, int64(0), resp.LogID)
	assert.Empty(t, queue.payloads)
}
