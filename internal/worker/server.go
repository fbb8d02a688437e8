package worker

import (
	"context"

	"prompthub/internal/config"
	"prompthub/internal/infra"
	"prompthub/internal/worker/handlers"
	"prompthub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Server 收尾消息消费端。处理失败的消息由 asynq 按退避重试，
// 重试耗尽进入死信队列，不会丢。
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

func NewServer(
	redisCfg config.RedisConfig,
	pipelineCfg config.PipelineConfig,
	finalizeHandler *handlers.LogFinalizeHandler,
	logger *zap.Logger,
) *Server {
	srv := asynq.NewServer(
		infra.AsynqRedisOpt(&redisCfg),
		asynq.Config{
			Concurrency: pipelineCfg.WorkerConcurrency(),
			Queues: map[string]int{
				pipelineCfg.QueueName(): 6, // 收尾消息优先级高
				"default":               1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeLogFinalize, finalizeHandler.HandleLogFinalize)

	return &Server{
		server: srv,
		mux:    mux,
		logger: logger,
	}
}

// Run 阻塞运行，直到 Shutdown 被调用
func (s *Server) Run() error {
	s.logger.Info("队列消费端启动中...")
	return s.server.Run(s.mux)
}

// Shutdown 停止消费并等待在途消息处理完
func (s *Server) Shutdown() {
	s.logger.Info("队列消费端停止中...")
	s.server.Shutdown()
}
