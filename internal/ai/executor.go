package ai

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"prompthub/internal/execlog"
	"prompthub/internal/metrics"
	"prompthub/internal/project"

	"go.uber.org/zap"
)

// PromptSource 提示词版本来源，version 传 0 表示最新版本
type PromptSource interface {
	GetVersion(ctx context.Context, tenantID, promptID int64, version int) (*project.PromptVersion, error)
}

// ProviderSource 按模型获取执行提供商
type ProviderSource interface {
	ProviderFor(model string) (Provider, error)
}

// ProviderFor 实现 ProviderSource
func (f *ClientFactory) ProviderFor(model string) (Provider, error) {
	client, err := f.ClientFor(model)
	if err != nil {
		return nil, err
	}
	return NewClientProvider(client), nil
}

// LoggerFactory 执行日志记录器来源
type LoggerFactory interface {
	Recorder() *execlog.Recorder
	Nop() execlog.Logger
}

// ExecuteRequest 提示词执行请求
type ExecuteRequest struct {
	TenantID  int64          `json:"tenantId"`
	ProjectID int64          `json:"projectId"`
	PromptID  int64          `json:"promptId"`
	Version   int            `json:"version"`   // 0 表示最新版本
	Variables map[string]any `json:"variables"` // 模板变量

	// 调用方透传的 traceparent 头，用于跨服务链路归并
	RawTraceID string `json:"rawTraceId,omitempty"`

	// 静默执行：跳过持久化日志，仅保留执行本身
	Silent bool `json:"silent,omitempty"`
}

// ExecuteResponse 提示词执行结果
type ExecuteResponse struct {
	LogID  int64   `json:"logId,omitempty"` // 静默执行时为 0
	Result *Result `json:"result"`
}

// Runner 驱动一次完整的提示词执行：取版本、渲染、调用提供商，
// 全程通过执行日志记录器归档产物并落摘要行
type Runner struct {
	prompts   PromptSource
	providers ProviderSource
	logs      LoggerFactory
	log       *zap.Logger
}

// NewRunner 创建执行服务
func NewRunner(prompts PromptSource, providers ProviderSource, logs LoggerFactory, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		prompts:   prompts,
		providers: providers,
		logs:      logs,
		log:       log,
	}
}

// Execute 执行一次提示词调用。
// 提供商错误经 LogError 归档后原样上抛，日志层绝不掩盖原始失败；
// 摘要行落库与收尾消息投递的失败则必须上抛给调用方。
func (r *Runner) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	pv, err := r.prompts.GetVersion(ctx, req.TenantID, req.PromptID, req.Version)
	if err != nil {
		return nil, err
	}

	var resp *ExecuteResponse
	err = metrics.RecordExecution(pv.Model, req.TenantID, func() error {
		var execErr error
		resp, execErr = r.execute(ctx, req, pv)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *Runner) execute(ctx context.Context, req ExecuteRequest, pv *project.PromptVersion) (*ExecuteResponse, error) {
	var logger execlog.Logger
	if req.Silent {
		logger = r.logs.Nop()
	} else {
		logger = r.logs.Recorder()
	}

	logger.SetContext(ctx, execlog.CallContext{
		TenantID:   req.TenantID,
		ProjectID:  req.ProjectID,
		PromptID:   req.PromptID,
		Version:    pv.Version,
		RawTraceID: req.RawTraceID,
	})
	logger.LogVariables(ctx, req.Variables)

	started := time.Now()
	result, err := r.run(ctx, logger, pv, req.Variables)
	if err != nil {
		elapsed := time.Since(started).Milliseconds()
		if logErr := logger.LogError(ctx, execlog.Outcome{
			ErrorMessage: err.Error(),
			DurationMs:   &elapsed,
		}); logErr != nil {
			r.log.Error("执行失败记录落库失败",
				zap.Int64("promptId", req.PromptID),
				zap.Error(logErr),
			)
		}
		if finishErr := logger.Finish(ctx); finishErr != nil {
			r.log.Error("收尾消息投递失败",
				zap.Int64("promptId", req.PromptID),
				zap.Error(finishErr),
			)
		}
		// 上抛原始错误，文本不改写
		return nil, err
	}

	if err := logger.LogSuccess(ctx, execlog.Outcome{DurationMs: &result.DurationMs}); err != nil {
		return nil, err
	}
	if err := logger.Finish(ctx); err != nil {
		return nil, err
	}

	resp := &ExecuteResponse{Result: result}
	if record := logger.Record(); record != nil {
		resp.LogID = record.ID
	}
	return resp, nil
}

// run 渲染模板并调用提供商，沿途归档输入与输出产物
func (r *Runner) run(ctx context.Context, logger execlog.Logger, pv *project.PromptVersion, vars map[string]any) (*Result, error) {
	rendered, err := renderPrompt(pv, vars)
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, 2)
	if pv.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: pv.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: rendered})
	logger.LogInput(ctx, messages)

	provider, err := r.providers.ProviderFor(pv.Model)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	result, err := provider.Generate(ctx, &Request{
		Messages:    messages,
		Temperature: pv.Temperature,
		MaxTokens:   pv.MaxTokens,
		TopP:        pv.TopP,
	})
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	logger.LogOutput(ctx, result.Content)
	logger.LogResult(ctx, result)
	if len(result.Raw) > 0 {
		logger.LogResponse(ctx, result.Raw)
	}
	metrics.RecordExecutionTokens(result.Model, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	return result, nil
}

// renderPrompt 渲染 Go text/template 格式的提示词模板
func renderPrompt(pv *project.PromptVersion, vars map[string]any) (string, error) {
	tmpl, err := template.New(fmt.Sprintf("prompt_%d_v%d", pv.PromptID, pv.Version)).Parse(pv.Content)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
