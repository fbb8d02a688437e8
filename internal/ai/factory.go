package ai

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"prompthub/internal/ai/openai"
	"prompthub/internal/config"
)

// ClientFactory 模型客户端工厂，按模型缓存已创建的客户端
type ClientFactory struct {
	cfg     config.AIConfig
	clients map[string]ModelClient // 客户端缓存
	mu      sync.RWMutex
}

// NewClientFactory 创建客户端工厂
func NewClientFactory(cfg config.AIConfig) *ClientFactory {
	return &ClientFactory{
		cfg:     cfg,
		clients: make(map[string]ModelClient),
	}
}

// ClientFor 获取指定模型的客户端，model 为空时使用配置默认模型
func (f *ClientFactory) ClientFor(model string) (ModelClient, error) {
	if model == "" {
		model = f.cfg.OpenAI.Model
	}
	if model == "" {
		return nil, fmt.Errorf("未指定模型且无默认模型配置")
	}

	cacheKey := "openai:" + model
	f.mu.RLock()
	if client, ok := f.clients[cacheKey]; ok {
		f.mu.RUnlock()
		return client, nil
	}
	f.mu.RUnlock()

	apiKey := f.cfg.OpenAI.APIKey
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}

	client, err := newClient("openai", &ClientConfig{
		Provider:   "openai",
		APIKey:     apiKey,
		BaseURL:    f.cfg.OpenAI.BaseURL,
		OrgID:      f.cfg.OpenAI.OrgID,
		Model:      model,
		MaxRetries: f.cfg.OpenAI.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("创建客户端失败: %w", err)
	}

	f.mu.Lock()
	f.clients[cacheKey] = client
	f.mu.Unlock()

	return client, nil
}

// newClient 按提供商名构造客户端
func newClient(provider string, cc *ClientConfig) (ModelClient, error) {
	switch provider {
	case "", "openai", "deepseek", "qwen":
		// Deepseek/Qwen 走 OpenAI 兼容协议，仅 BaseURL 不同
		return openai.NewClient(cc)
	default:
		return nil, fmt.Errorf("不支持的提供商: %s", provider)
	}
}

// Close 关闭并清空缓存的客户端
func (f *ClientFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, client := range f.clients {
		_ = client.Close()
	}
	f.clients = make(map[string]ModelClient)
}
