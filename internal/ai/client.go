package ai

import (
	"context"
	"encoding/json"
	"time"

	"prompthub/pkg/aiinterface"
)

// aiinterface 的常用类型别名。客户端实现放在子包（如 openai），
// 子包依赖 pkg/aiinterface 而不是反过来依赖这里。
type (
	Message               = aiinterface.Message
	ChatCompletionRequest = aiinterface.ChatCompletionRequest
	Usage                 = aiinterface.Usage
	ModelClient           = aiinterface.ModelClient
	ClientConfig          = aiinterface.ClientConfig
)

// Request 一次提示词执行请求
type Request struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"maxTokens"`
	TopP        float64   `json:"topP"`
}

// Result 归一化的提供商执行结果
type Result struct {
	Content    string `json:"content"`
	Model      string `json:"model"`
	Usage      Usage  `json:"usage"`
	DurationMs int64  `json:"durationMs"`

	// 上游原始响应，仅用于产物归档
	Raw json.RawMessage `json:"-"`
}

// Provider 提示词执行提供商抽象
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Result, error)
}

// ProviderError 提供商调用或路由失败。
// Error 文本保持提供商返回的原样，外层只用它区分失败类别。
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// ClientProvider 把 ModelClient 适配为 Provider，补充耗时测量与原始响应留存
type ClientProvider struct {
	client ModelClient
}

// NewClientProvider 创建提供商适配器
func NewClientProvider(client ModelClient) *ClientProvider {
	return &ClientProvider{client: client}
}

// Generate 执行一次补全，耗时覆盖含重试在内的整个上游调用
func (p *ClientProvider) Generate(ctx context.Context, req *Request) (*Result, error) {
	started := time.Now()
	resp, err := p.client.ChatCompletion(ctx, &ChatCompletionRequest{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return nil, err
	}

	raw, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		raw = nil
	}

	return &Result{
		Content:    resp.Content,
		Model:      resp.Model,
		Usage:      resp.Usage,
		DurationMs: time.Since(started).Milliseconds(),
		Raw:        raw,
	}, nil
}
