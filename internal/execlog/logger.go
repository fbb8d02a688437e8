package execlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"prompthub/internal/worker/tasks"

	"go.uber.org/zap"
)

// ErrNoOutcome Finish 在 LogSuccess/LogError 之前被调用
var ErrNoOutcome = errors.New("execution outcome not recorded")

// ErrEnqueueFailed 收尾消息投递失败，通常意味着队列后端不可用
var ErrEnqueueFailed = errors.New("finalize message enqueue failed")

// Queue 收尾消息投递端口，由 infra/queue 的客户端实现
type Queue interface {
	EnqueueLogFinalize(ctx context.Context, payload tasks.LogFinalizePayload) error
}

// Logger 执行日志记录器。提供方适配器在一次执行内按顺序驱动:
// SetContext → LogInput/LogVariables/... → LogSuccess 或 LogError → Finish。
// 产物写入全部尽力而为；汇总行插入与收尾消息投递失败必须上抛。
type Logger interface {
	SetContext(ctx context.Context, cc CallContext)
	LogInput(ctx context.Context, payload any)
	LogOutput(ctx context.Context, payload any)
	LogVariables(ctx context.Context, variables map[string]any)
	LogResult(ctx context.Context, payload any)
	LogResponse(ctx context.Context, payload any)
	LogSuccess(ctx context.Context, outcome Outcome) error
	LogError(ctx context.Context, outcome Outcome) error
	Finish(ctx context.Context) error
	Record() *ExecutionLog
}

// Outcome 执行结果的落库字段。
// 内嵌的 CallContext 中非零字段逐项覆盖 SetContext 绑定的值。
type Outcome struct {
	CallContext
	DurationMs   *int64
	ErrorMessage string
}

// executionMetadata metadata 产物的内容
type executionMetadata struct {
	TenantID   int64  `json:"tenantId"`
	ProjectID  int64  `json:"projectId"`
	PromptID   int64  `json:"promptId"`
	Version    int    `json:"version"`
	Sequence   int64  `json:"sequence"`
	TraceID    string `json:"traceId,omitempty"`
	RawTraceID string `json:"rawTraceId,omitempty"`
	RecordedAt string `json:"recordedAt"`
}

// Recorder 真实记录器。一次执行创建一个，内部状态按调用顺序推进，
// 非并发安全。Finish 设计为在响应返回后延迟执行，不占用请求路径。
type Recorder struct {
	repo      *Repository
	artifacts *ArtifactStore
	queue     Queue
	log       *zap.Logger

	cc       CallContext
	traceID  string
	sequence int64
	logPath  string
	record   *ExecutionLog
	finished bool
}

// NewRecorder 创建一次执行用的记录器
func NewRecorder(repo *Repository, artifacts *ArtifactStore, q Queue, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{
		repo:      repo,
		artifacts: artifacts,
		queue:     q,
		log:       log,
	}
}

// SetContext 绑定本次执行的标识符，并尽力写入 metadata 产物
func (r *Recorder) SetContext(ctx context.Context, cc CallContext) {
	r.cc = cc
	r.traceID = ParseTraceParent(cc.RawTraceID)
	if r.sequence == 0 {
		r.sequence = time.Now().UnixNano()
	}

	if path := r.ensureLogPath(); path != "" {
		r.artifacts.TryWrite(ctx, path, ArtifactMetadata, executionMetadata{
			TenantID:   cc.TenantID,
			ProjectID:  cc.ProjectID,
			PromptID:   cc.PromptID,
			Version:    cc.Version,
			Sequence:   r.sequence,
			TraceID:    r.traceID,
			RawTraceID: cc.RawTraceID,
			RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ensureLogPath 返回产物目录前缀；标识符不全时返回空串
func (r *Recorder) ensureLogPath() string {
	if r.logPath != "" {
		return r.logPath
	}
	if r.cc.Validate() != nil {
		return ""
	}
	if r.sequence == 0 {
		r.sequence = time.Now().UnixNano()
	}
	r.logPath = BuildLogPath(r.cc.TenantID, r.cc.ProjectID, r.cc.PromptID, r.cc.Version, r.sequence, time.Now())
	return r.logPath
}

// writeArtifact 产物写入统一入口，尽力而为
func (r *Recorder) writeArtifact(ctx context.Context, name string, payload any) {
	path := r.ensureLogPath()
	if path == "" {
		r.log.Warn("跳过产物写入: 执行上下文未绑定", zap.String("artifact", name))
		return
	}
	r.artifacts.TryWrite(ctx, path, name, payload)
}

// LogInput 记录输入产物
func (r *Recorder) LogInput(ctx context.Context, payload any) {
	r.writeArtifact(ctx, ArtifactInput, payload)
}

// LogOutput 记录输出产物
func (r *Recorder) LogOutput(ctx context.Context, payload any) {
	r.writeArtifact(ctx, ArtifactOutput, payload)
}

// LogVariables 记录变量产物，消费端据此建立搜索索引
func (r *Recorder) LogVariables(ctx context.Context, variables map[string]any) {
	r.writeArtifact(ctx, ArtifactVariables, variables)
}

// LogResult 记录结果产物
func (r *Recorder) LogResult(ctx context.Context, payload any) {
	r.writeArtifact(ctx, ArtifactResult, payload)
}

// LogResponse 记录提供方原始响应产物
func (r *Recorder) LogResponse(ctx context.Context, payload any) {
	r.writeArtifact(ctx, ArtifactResponse, payload)
}

// LogSuccess 落库一条成功记录
func (r *Recorder) LogSuccess(ctx context.Context, outcome Outcome) error {
	return r.recordOutcome(ctx, true, outcome)
}

// LogError 落库一条失败记录
func (r *Recorder) LogError(ctx context.Context, outcome Outcome) error {
	return r.recordOutcome(ctx, false, outcome)
}

func (r *Recorder) recordOutcome(ctx context.Context, success bool, outcome Outcome) error {
	if r.record != nil {
		return fmt.Errorf("execution outcome already recorded (log %d)", r.record.ID)
	}

	final := r.cc.Merge(outcome.CallContext)
	if err := final.Validate(); err != nil {
		return err
	}
	r.cc = final

	record := &ExecutionLog{
		TenantID:     final.TenantID,
		ProjectID:    final.ProjectID,
		PromptID:     final.PromptID,
		Version:      final.Version,
		IsSuccess:    success,
		ErrorMessage: outcome.ErrorMessage,
		DurationMs:   outcome.DurationMs,
		TraceID:      ParseTraceParent(final.RawTraceID),
		RawTraceID:   final.RawTraceID,
		LogPath:      r.ensureLogPath(),
	}

	if err := r.repo.Create(ctx, record); err != nil {
		return err
	}
	r.record = record
	return nil
}

// Finish 投递收尾消息，每次执行恰好调用一次。
// 投递失败上抛，由调用方决定重试；收尾消息是变量索引和链路聚合的唯一触发源。
func (r *Recorder) Finish(ctx context.Context) error {
	if r.record == nil {
		return ErrNoOutcome
	}
	if r.finished {
		return fmt.Errorf("finish already called for log %d", r.record.ID)
	}

	payload := tasks.LogFinalizePayload{
		TenantID:  r.record.TenantID,
		ProjectID: r.record.ProjectID,
		PromptID:  r.record.PromptID,
		Version:   r.record.Version,
		LogID:     r.record.ID,
	}
	if err := r.queue.EnqueueLogFinalize(ctx, payload); err != nil {
		return fmt.Errorf("%w: log %d: %w", ErrEnqueueFailed, r.record.ID, err)
	}
	r.finished = true

	r.log.Debug("收尾消息已投递",
		zap.Int64("log_id", r.record.ID),
		zap.Int64("tenant_id", r.record.TenantID),
	)
	return nil
}

// Record 返回已落库的汇总行，LogSuccess/LogError 之前为 nil
func (r *Recorder) Record() *ExecutionLog {
	return r.record
}

// Factory 按执行创建记录器
type Factory struct {
	repo      *Repository
	artifacts *ArtifactStore
	queue     Queue
	log       *zap.Logger
}

// NewFactory 创建记录器工厂
func NewFactory(repo *Repository, artifacts *ArtifactStore, q Queue, log *zap.Logger) *Factory {
	return &Factory{repo: repo, artifacts: artifacts, queue: q, log: log}
}

// Recorder 创建一次执行用的真实记录器
func (f *Factory) Recorder() *Recorder {
	return NewRecorder(f.repo, f.artifacts, f.queue, f.log)
}

// Nop 返回无操作记录器
func (f *Factory) Nop() Logger {
	return NopLogger{}
}
