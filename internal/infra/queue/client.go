package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"prompthub/internal/config"
	"prompthub/internal/infra"
	"prompthub/internal/metrics"
	"prompthub/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueLogFinalize(ctx context.Context, payload tasks.LogFinalizePayload) error
	EnqueueLogFinalizeBatch(ctx context.Context, payloads []tasks.LogFinalizePayload) error
	Close() error
}

type asynqClient struct {
	client   *asynq.Client
	pipeline config.PipelineConfig
}

// NewClient 创建任务队列客户端
func NewClient(redisCfg config.RedisConfig, pipelineCfg config.PipelineConfig) Client {
	client := asynq.NewClient(infra.AsynqRedisOpt(&redisCfg))
	return &asynqClient{client: client, pipeline: pipelineCfg}
}

func (c *asynqClient) EnqueueLogFinalize(ctx context.Context, payload tasks.LogFinalizePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeLogFinalize, data)

	// 投递失败必须上抛：收尾消息是索引/聚合的唯一触发源
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(c.pipeline.MaxRetryCount()),
		asynq.Timeout(c.pipeline.TaskTimeoutDuration()),
		asynq.Queue(c.pipeline.QueueName()),
	)
	if err != nil {
		metrics.FinalizeEnqueuesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("enqueue task failed: %w", err)
	}

	metrics.FinalizeEnqueuesTotal.WithLabelValues("ok").Inc()
	return nil
}

func (c *asynqClient) EnqueueLogFinalizeBatch(ctx context.Context, payloads []tasks.LogFinalizePayload) error {
	for i, p := range payloads {
		if err := c.EnqueueLogFinalize(ctx, p); err != nil {
			return fmt.Errorf("enqueue batch item %d/%d failed: %w", i+1, len(payloads), err)
		}
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
