package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"prompthub/internal/execlog"
	"prompthub/internal/objectstore"
	"prompthub/internal/project"
	"prompthub/internal/worker/tasks"
)

type fakePrompts struct {
	pv           *project.PromptVersion
	err          error
	gotVersion   int
	gotPromptID  int64
	gotTenantID  int64
}

func (f *fakePrompts) GetVersion(ctx context.Context, tenantID, promptID int64, version int) (*project.PromptVersion, error) {
	f.gotTenantID = tenantID
	f.gotPromptID = promptID
	f.gotVersion = version
	if f.err != nil {
		return nil, f.err
	}
	return f.pv, nil
}

type fakeProvider struct {
	result *Result
	err    error
	gotReq *Request
}

func (f *fakeProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeProviders struct {
	provider Provider
	err      error
	gotModel string
}

func (f *fakeProviders) ProviderFor(model string) (Provider, error) {
	f.gotModel = model
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

type fakeQueue struct {
	payloads []tasks.LogFinalizePayload
	err      error
}

func (f *fakeQueue) EnqueueLogFinalize(ctx context.Context, payload tasks.LogFinalizePayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

type runnerHarness struct {
	runner   *Runner
	prompts  *fakePrompts
	provider *fakeProvider
	queue    *fakeQueue
	store    *objectstore.MemoryStore
	db       *gorm.DB
}

func promptVersion() *project.PromptVersion {
	return &project.PromptVersion{
		ID:           1,
		TenantID:     1,
		PromptID:     100,
		Version:      3,
		Content:      "Summarize for {{.userId}}: {{.topic}}",
		SystemPrompt: "You are a concise assistant.",
		Model:        "gpt-4o-mini",
		Temperature:  0.2,
		MaxTokens:    256,
	}
}

func newRunnerHarness(t *testing.T) *runnerHarness {
	t.Helper()
	dsn := fmt.Sprintf("file:executor_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&execlog.ExecutionLog{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	store := objectstore.NewMemoryStore()
	queue := &fakeQueue{}
	factory := execlog.NewFactory(
		execlog.NewRepository(db),
		execlog.NewArtifactStore(store, nil),
		queue,
		nil,
	)

	provider := &fakeProvider{result: &Result{
		Content:    "the summary",
		Model:      "gpt-4o-mini",
		Usage:      Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		DurationMs: 42,
		Raw:        json.RawMessage(`{"id":"resp-1"}`),
	}}
	prompts := &fakePrompts{pv: promptVersion()}

	return &runnerHarness{
		runner:   NewRunner(prompts, &fakeProviders{provider: provider}, factory, zaptest.NewLogger(t)),
		prompts:  prompts,
		provider: provider,
		queue:    queue,
		store:    store,
		db:       db,
	}
}

func executeRequest() ExecuteRequest {
	return ExecuteRequest{
		TenantID:  1,
		ProjectID: 10,
		PromptID:  100,
		Version:   0, // 最新版本
		Variables: map[string]any{"userId": "u-1", "topic": "queues"},
	}
}

func TestRunnerExecuteSuccess(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)

	resp, err := h.runner.Execute(ctx, executeRequest())
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if resp.LogID == 0 {
		t.Fatalf("expected persisted log id")
	}
	if resp.Result.Content != "the summary" {
		t.Errorf("unexpected content: %s", resp.Result.Content)
	}

	// 渲染结果进入提供商请求
	if h.provider.gotReq == nil {
		t.Fatalf("provider not invoked")
	}
	userMsg := h.provider.gotReq.Messages[len(h.provider.gotReq.Messages)-1]
	if userMsg.Content != "Summarize for u-1: queues" {
		t.Errorf("unexpected rendered prompt: %q", userMsg.Content)
	}
	if h.provider.gotReq.Messages[0].Role != "system" {
		t.Errorf("expected system prompt first, got %q", h.provider.gotReq.Messages[0].Role)
	}

	// 摘要行带解析后的版本号与耗时
	var record execlog.ExecutionLog
	if err := h.db.First(&record, "id = ?", resp.LogID).Error; err != nil {
		t.Fatalf("record not found: %v", err)
	}
	if !record.IsSuccess {
		t.Errorf("expected success record")
	}
	if record.Version != 3 {
		t.Errorf("expected resolved version 3, got %d", record.Version)
	}
	if record.DurationMs == nil || *record.DurationMs != 42 {
		t.Errorf("expected durationMs 42, got %v", record.DurationMs)
	}

	// 全部产物落盘
	for _, name := range []string{
		execlog.ArtifactMetadata,
		execlog.ArtifactInput,
		execlog.ArtifactOutput,
		execlog.ArtifactResult,
		execlog.ArtifactResponse,
		execlog.ArtifactVariables,
	} {
		if _, err := h.store.Get(ctx, execlog.ArtifactKey(record.LogPath, name)); err != nil {
			t.Errorf("artifact %s missing: %v", name, err)
		}
	}

	// 恰好一条收尾消息
	if len(h.queue.payloads) != 1 {
		t.Fatalf("expected 1 finalize message, got %d", len(h.queue.payloads))
	}
	if h.queue.payloads[0].LogID != resp.LogID {
		t.Errorf("finalize message references wrong log: %+v", h.queue.payloads[0])
	}
}

func TestRunnerProviderErrorPassesThroughUnmodified(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	providerErr := errors.New("upstream exploded")
	h.provider.err = providerErr

	_, err := h.runner.Execute(ctx, executeRequest())
	if !errors.Is(err, providerErr) {
		t.Fatalf("provider error must pass through unmodified, got %v", err)
	}

	// 失败同样落行、同样触发收尾消息
	var record execlog.ExecutionLog
	if err := h.db.First(&record, "tenant_id = ?", 1).Error; err != nil {
		t.Fatalf("error record not found: %v", err)
	}
	if record.IsSuccess {
		t.Errorf("expected failure record")
	}
	if record.ErrorMessage != "upstream exploded" {
		t.Errorf("unexpected error message: %q", record.ErrorMessage)
	}
	if record.DurationMs == nil {
		t.Errorf("expected elapsed duration on failure record")
	}
	if len(h.queue.payloads) != 1 {
		t.Fatalf("expected finalize message after failure, got %d", len(h.queue.payloads))
	}
}

func TestRunnerTemplateErrorIsRecorded(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.prompts.pv.Content = "Summarize {{.topic" // 残缺模板

	_, err := h.runner.Execute(ctx, executeRequest())
	if err == nil {
		t.Fatalf("expected template error")
	}
	if !strings.Contains(err.Error(), "failed to parse template") {
		t.Errorf("unexpected error: %v", err)
	}

	var record execlog.ExecutionLog
	if dbErr := h.db.First(&record, "tenant_id = ?", 1).Error; dbErr != nil {
		t.Fatalf("error record not found: %v", dbErr)
	}
	if record.IsSuccess {
		t.Errorf("expected failure record")
	}
}

func TestRunnerSilentSkipsPersistence(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)

	req := executeRequest()
	req.Silent = true
	resp, err := h.runner.Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if resp.LogID != 0 {
		t.Errorf("silent execution must not persist, got log id %d", resp.LogID)
	}
	if resp.Result.Content != "the summary" {
		t.Errorf("unexpected content: %s", resp.Result.Content)
	}

	var count int64
	h.db.Model(&execlog.ExecutionLog{}).Count(&count)
	if count != 0 {
		t.Errorf("expected no rows, got %d", count)
	}
	if len(h.queue.payloads) != 0 {
		t.Errorf("expected no finalize messages, got %d", len(h.queue.payloads))
	}
	if h.store.Len() != 0 {
		t.Errorf("expected no artifacts, got %d", h.store.Len())
	}
}

func TestRunnerEnqueueFailurePropagatesOnSuccess(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.queue.err = errors.New("redis down")

	_, err := h.runner.Execute(ctx, executeRequest())
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Fatalf("enqueue failure must propagate, got %v", err)
	}
}

func TestRunnerPromptVersionNotFound(t *testing.T) {
	ctx := context.Background()
	h := newRunnerHarness(t)
	h.prompts.err = project.ErrVersionNotFound

	_, err := h.runner.Execute(ctx, executeRequest())
	if !errors.Is(err, project.ErrVersionNotFound) {
		t.Fatalf("expected ErrVersionNotFound, got %v", err)
	}

	var count int64
	h.db.Model(&execlog.ExecutionLog{}).Count(&count)
	if count != 0 {
		t.Errorf("no record should exist when prompt missing, got %d", count)
	}
}

func TestRenderPromptSubstitutesVariables(t *testing.T) {
	pv := promptVersion()
	out, err := renderPrompt(pv, map[string]any{"userId": "42", "topic": "tracing"})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if out != "Summarize for 42: tracing" {
		t.Errorf("unexpected render output: %q", out)
	}
}
