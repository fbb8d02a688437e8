package openai

import (
	"context"
	"strings"
	"time"

	"prompthub/pkg/aiinterface"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器。
// 也覆盖各类 OpenAI 兼容网关，BaseURL 换掉即可。
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	cc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cc.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		cc.OrgID = config.OrgID
	}

	retries := config.MaxRetries
	if retries == 0 {
		retries = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(cc),
		modelID:    config.Model,
		maxRetries: retries,
	}, nil
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    toOpenAIMessages(req.Messages),
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
	}

	resp, err := c.completeWithRetry(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	content := resp.Choices[0].Message.Content
	usage := aiinterface.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	// 个别兼容网关不回填 usage，本地估算兜底
	if usage.TotalTokens == 0 {
		usage = estimateUsage(req.Messages, content, c.modelID)
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: content,
		Usage:   usage,
	}, nil
}

// completeWithRetry 指数退避重试，仅对网络类与 5xx 错误生效。
// 退避期间尊重 ctx 取消，不做无谓等待。
func (c *Client) completeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) || attempt == c.maxRetries {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return openai.ChatCompletionResponse{}, classifyError(ctx.Err())
		}
	}
	return openai.ChatCompletionResponse{}, classifyError(lastErr)
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// Close 关闭客户端
func (c *Client) Close() error {
	// OpenAI 客户端无需显式关闭
	return nil
}

func toOpenAIMessages(messages []aiinterface.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		out[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return out
}

// estimateUsage 基于 tiktoken 估算 Token 使用量
func estimateUsage(messages []aiinterface.Message, completion string, model string) aiinterface.Usage {
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tkm, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return aiinterface.Usage{}
		}
	}

	promptTokens := 0
	for _, msg := range messages {
		// 简单估算：content tokens + role overhead
		promptTokens += len(tkm.Encode(msg.Content, nil, nil)) + 4
	}
	completionTokens := len(tkm.Encode(completion, nil, nil))

	return aiinterface.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}
}

var retryableHints = []string{"timeout", "connection", "rate limit", "500", "502", "503", "504"}

// isRetryable 靠错误文本做粗粒度判断，SDK 没有稳定的错误类型
func isRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range retryableHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

// errorKinds 按优先级排列，先命中先归类
var errorKinds = []struct {
	hints []string
	kind  aiinterface.ErrorType
}{
	{[]string{"401", "403"}, aiinterface.ErrorTypeAuth},
	{[]string{"rate limit", "429"}, aiinterface.ErrorTypeRateLimit},
	{[]string{"400", "invalid"}, aiinterface.ErrorTypeInvalidParams},
	{[]string{"500", "502", "503"}, aiinterface.ErrorTypeServerError},
	{[]string{"timeout", "connection"}, aiinterface.ErrorTypeNetwork},
}

// classifyError 把 SDK 错误归类为统一的客户端错误
func classifyError(err error) *aiinterface.ClientError {
	msg := strings.ToLower(err.Error())

	kind := aiinterface.ErrorTypeUnknown
	for _, ek := range errorKinds {
		matched := false
		for _, hint := range ek.hints {
			if strings.Contains(msg, hint) {
				matched = true
				break
			}
		}
		if matched {
			kind = ek.kind
			break
		}
	}

	return &aiinterface.ClientError{
		Type:    kind,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
