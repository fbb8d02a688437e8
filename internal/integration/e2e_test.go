package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"prompthub/api"
	"prompthub/internal/ai"
	"prompthub/internal/cache"
	"prompthub/internal/execlog"
	"prompthub/internal/infra/queue"
	"prompthub/internal/logger"
	"prompthub/internal/middleware"
	"prompthub/internal/objectstore"
	"prompthub/internal/project"
	"prompthub/internal/search"
	"prompthub/internal/traces"
	"prompthub/internal/worker/handlers"
	"prompthub/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

const testTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

// captureQueue 进程内队列替身：收下收尾消息，由测试主动驱动消费
type captureQueue struct {
	mu       sync.Mutex
	payloads []tasks.LogFinalizePayload
}

var _ queue.Client = (*captureQueue)(nil)

func (q *captureQueue) EnqueueLogFinalize(_ context.Context, payload tasks.LogFinalizePayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.payloads = append(q.payloads, payload)
	return nil
}

func (q *captureQueue) EnqueueLogFinalizeBatch(ctx context.Context, payloads []tasks.LogFinalizePayload) error {
	for _, p := range payloads {
		if err := q.EnqueueLogFinalize(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (q *captureQueue) Close() error { return nil }

// drain 取走当前积压的全部消息
func (q *captureQueue) drain() []tasks.LogFinalizePayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.payloads
	q.payloads = nil
	return out
}

// scriptedProviders 返回固定结果的提供商，执行路径不出网络
type scriptedProviders struct {
	result ai.Result
}

func (s *scriptedProviders) ProviderFor(string) (ai.Provider, error) {
	return providerFunc(func(context.Context, *ai.Request) (*ai.Result, error) {
		r := s.result
		return &r, nil
	}), nil
}

type providerFunc func(ctx context.Context, req *ai.Request) (*ai.Result, error)

func (f providerFunc) Generate(ctx context.Context, req *ai.Request) (*ai.Result, error) {
	return f(ctx, req)
}

// pipelineHarness 进程内组装的完整服务：真实路由、真实存储、
// 队列用替身捕获，消费端由测试逐条驱动
type pipelineHarness struct {
	router    *gin.Engine
	queue     *captureQueue
	finalizer *handlers.LogFinalizeHandler
	store     *objectstore.MemoryStore
}

var harnessSeq int

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := logger.Init("error", "json", "stderr"); err != nil {
		t.Fatalf("初始化日志失败: %v", err)
	}

	harnessSeq++
	dsn := fmt.Sprintf("file:integration_%d?mode=memory&cache=shared", harnessSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	err = db.AutoMigrate(
		&project.Project{}, &project.Prompt{}, &project.PromptVersion{},
		&execlog.ExecutionLog{}, &search.SearchIndexEntry{}, &traces.Trace{},
	)
	if err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	log := zaptest.NewLogger(t)
	store := objectstore.NewMemoryStore()
	capture := &captureQueue{}

	container := &api.AppContainer{
		DB:          db,
		ObjectStore: store,
		QueueClient: capture,
	}
	container.LogRepo = execlog.NewRepository(db)
	container.ArtifactStore = execlog.NewArtifactStore(store, log)
	container.LoggerFactory = execlog.NewFactory(container.LogRepo, container.ArtifactStore, capture, log)
	container.SearchRepo = search.NewRepository(db, log)
	container.TraceRepo = traces.NewRepository(db)
	container.Aggregator = traces.NewAggregator(container.TraceRepo, 5, log)
	container.VersionCache = cache.NewVersionCache(64, 0)
	container.ProjectService = project.NewService(db, log, container.VersionCache,
		container.LogRepo, container.SearchRepo, container.TraceRepo)

	providers := &scriptedProviders{result: ai.Result{
		Content:    "scripted reply",
		Model:      "gpt-4o-mini",
		Usage:      ai.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
		DurationMs: 42,
		Raw:        json.RawMessage(`{"id":"resp-1"}`),
	}}
	container.Runner = ai.NewRunner(container.ProjectService, providers, container.LoggerFactory, log)

	container.FinalizeHandler = handlers.NewLogFinalizeHandler(
		container.LogRepo, container.ArtifactStore, container.SearchRepo, container.Aggregator, log)

	container.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(container.RateLimiter.Stop)

	router := gin.New()
	api.RegisterRoutes(router, container, api.InitHandlers(container))

	return &pipelineHarness{
		router:    router,
		queue:     capture,
		finalizer: container.FinalizeHandler,
		store:     store,
	}
}

func (h *pipelineHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "7")
	req.Header.Set("X-Caller-ID", "integration-test")

	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

// consumeAll 把积压的收尾消息全部喂给消费端
func (h *pipelineHarness) consumeAll(t *testing.T) int {
	t.Helper()
	pending := h.queue.drain()
	for _, p := range pending {
		data, err := json.Marshal(p)
		require.NoError(t, err)
		task := asynq.NewTask(tasks.TypeLogFinalize, data)
		require.NoError(t, h.finalizer.HandleLogFinalize(context.Background(), task))
	}
	return len(pending)
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	envelope := struct {
		Data json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, w.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		t.Fatalf("解析 data 失败: %v, data=%s", err, string(envelope.Data))
	}
}

// TestPipelineEndToEnd 全链路：建项目/提示词/版本 → 执行 → 消费收尾消息
// → 变量可搜、链路聚合可查、产物可读 → 删项目后全部级联清空
func TestPipelineEndToEnd(t *testing.T) {
	h := newPipelineHarness(t)

	// 1. 项目
	w := h.do(t, http.MethodPost, "/api/v1/projects", map[string]any{"name": "e2e"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var proj project.Project
	decodeData(t, w, &proj)
	require.NotZero(t, proj.ID)

	// 2. 提示词
	w = h.do(t, http.MethodPost, "/api/v1/prompts", map[string]any{
		"projectId": proj.ID,
		"name":      "greeting",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var prompt project.Prompt
	decodeData(t, w, &prompt)

	// 3. 版本
	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/versions", prompt.ID), map[string]any{
		"content": "Say hello to {{.user.name}} about {{.topic}}",
		"model":   "gpt-4o-mini",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// 4. 执行两次，同一链路
	execBody := map[string]any{
		"projectId": proj.ID,
		"variables": map[string]any{
			"user":  map[string]any{"name": "Ada"},
			"topic": "queues",
		},
		"traceId": testTraceID,
	}
	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/execute", prompt.ID), execBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var execResp struct {
		LogID  int64 `json:"logId"`
		Result struct {
			Content string `json:"content"`
		} `json:"result"`
	}
	decodeData(t, w, &execResp)
	require.NotZero(t, execResp.LogID)
	assert.Equal(t, "scripted reply", execResp.Result.Content)

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/execute", prompt.ID), execBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 5. 消费收尾消息
	assert.Equal(t, 2, h.consumeAll(t))

	// 6. 日志列表
	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/logs?project_id=%d", proj.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logList struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeData(t, w, &logList)
	assert.Equal(t, int64(2), logList.Pagination.Total)

	// 7. 渲染后的输入产物可读
	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/logs/%d/artifacts/input", execResp.LogID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Say hello to Ada about queues")

	// 8. 嵌套变量被展开成点号路径，可全文检索
	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/search/variables?project_id=%d&q=Ada", proj.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var varsResp struct {
		Count   int                       `json:"count"`
		Entries []search.SearchIndexEntry `json:"entries"`
	}
	decodeData(t, w, &varsResp)
	require.Equal(t, 2, varsResp.Count)
	assert.Equal(t, "user.name", varsResp.Entries[0].VariablePath)

	// 9. 按变量路径反查日志
	w = h.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/search/logs?project_id=%d&path=user.name&value=Ada", proj.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logsResp struct {
		Count int `json:"count"`
	}
	decodeData(t, w, &logsResp)
	assert.Equal(t, 2, logsResp.Count)

	// 10. 链路聚合：两次执行合并进同一行
	w = h.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/projects/%d/traces/%s", proj.ID, testTraceID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var trace traces.Trace
	decodeData(t, w, &trace)
	assert.Equal(t, int64(2), trace.TotalLogs)
	assert.Equal(t, testTraceID, trace.TraceID)

	// 11. 删除项目，全部级联清空
	w = h.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", proj.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/logs?project_id=%d", proj.ID), nil)
	decodeData(t, w, &logList)
	assert.Equal(t, int64(0), logList.Pagination.Total)

	w = h.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/projects/%d/traces/%s", proj.ID, testTraceID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/search/variables?project_id=%d&q=Ada", proj.ID), nil)
	decodeData(t, w, &varsResp)
	assert.Equal(t, 0, varsResp.Count)
}

// TestPipelineFailedExecutionStillFinalized 失败执行同样落摘要行并走收尾流程
func TestPipelineFailedExecutionStillFinalized(t *testing.T) {
	h := newPipelineHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/projects", map[string]any{"name": "e2e-fail"})
	require.Equal(t, http.StatusCreated, w.Code)
	var proj project.Project
	decodeData(t, w, &proj)

	w = h.do(t, http.MethodPost, "/api/v1/prompts", map[string]any{
		"projectId": proj.ID,
		"name":      "broken",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var prompt project.Prompt
	decodeData(t, w, &prompt)

	// 模板引用未提供的函数，渲染阶段必然失败
	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/versions", prompt.ID), map[string]any{
		"content": "{{fail .x}}",
		"model":   "gpt-4o-mini",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/execute", prompt.ID), map[string]any{
		"projectId": proj.ID,
		"variables": map[string]any{"x": 1},
	})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	// 失败执行也有收尾消息，消费后摘要行可查且标记失败
	require.Equal(t, 1, h.consumeAll(t))

	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/logs?project_id=%d&success=false", proj.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logList struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeData(t, w, &logList)
	assert.Equal(t, int64(1), logList.Pagination.Total)
}

// TestPipelineSilentExecutionLeavesNoTrace 静默执行不落任何持久化痕迹
func TestPipelineSilentExecutionLeavesNoTrace(t *testing.T) {
	h := newPipelineHarness(t)

	w := h.do(t, http.MethodPost, "/api/v1/projects", map[string]any{"name": "e2e-silent"})
	require.Equal(t, http.StatusCreated, w.Code)
	var proj project.Project
	decodeData(t, w, &proj)

	w = h.do(t, http.MethodPost, "/api/v1/prompts", map[string]any{
		"projectId": proj.ID,
		"name":      "quiet",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var prompt project.Prompt
	decodeData(t, w, &prompt)

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/versions", prompt.ID), map[string]any{
		"content": "ping {{.n}}",
		"model":   "gpt-4o-mini",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = h.do(t, http.MethodPost, fmt.Sprintf("/api/v1/prompts/%d/execute", prompt.ID), map[string]any{
		"projectId": proj.ID,
		"variables": map[string]any{"n": 1},
		"silent":    true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var execResp struct {
		LogID int64 `json:"logId"`
	}
	decodeData(t, w, &execResp)
	assert.Zero(t, execResp.LogID)

	assert.Equal(t, 0, h.consumeAll(t))
	assert.Equal(t, 0, h.store.Len())

	w = h.do(t, http.MethodGet, fmt.Sprintf("/api/v1/logs?project_id=%d", proj.ID), nil)
	var logList struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	decodeData(t, w, &logList)
	assert.Equal(t, int64(0), logList.Pagination.Total)
}
