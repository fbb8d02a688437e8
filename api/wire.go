package api

import (
	"fmt"
	"strings"
	"time"

	executionhandlers "prompthub/api/handlers/executions"
	loghandlers "prompthub/api/handlers/execlogs"
	projecthandlers "prompthub/api/handlers/projects"
	tracehandlers "prompthub/api/handlers/traces"
	"prompthub/internal/ai"
	"prompthub/internal/cache"
	"prompthub/internal/config"
	"prompthub/internal/execlog"
	"prompthub/internal/infra"
	"prompthub/internal/infra/queue"
	"prompthub/internal/logger"
	"prompthub/internal/metrics"
	"prompthub/internal/middleware"
	"prompthub/internal/objectstore"
	"prompthub/internal/project"
	"prompthub/internal/search"
	"prompthub/internal/traces"
	"prompthub/internal/worker"
	"prompthub/internal/worker/handlers"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ============================================================================
// 应用容器 - 依赖注入
// ============================================================================

// 版本缓存参数。已发布版本不可变，TTL 仅兜底项目删除后的残留条目
const (
	versionCacheCapacity = 4096
	versionCacheTTL      = 30 * time.Minute
)

// AppContainer 应用服务容器，集中管理依赖注入
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Redis       redis.UniversalClient
	Config      *config.Config
	ObjectStore objectstore.Store

	// 执行日志管道
	QueueClient   queue.Client
	LogRepo       *execlog.Repository
	ArtifactStore *execlog.ArtifactStore
	LoggerFactory *execlog.Factory

	// 变量索引与链路聚合
	SearchRepo *search.Repository
	TraceRepo  *traces.Repository
	Aggregator *traces.Aggregator

	// 项目与提示词
	ProjectService *project.Service
	VersionCache   *cache.VersionCache

	// 模型执行
	ClientFactory *ai.ClientFactory
	Runner        *ai.Runner

	// 后台 Worker
	FinalizeHandler *handlers.LogFinalizeHandler
	WorkerServer    *worker.Server

	// 接口限流与系统指标采集
	RateLimiter  *middleware.RateLimiter
	SysCollector *metrics.SystemCollector
}

// InitContainer 初始化应用容器
// 依赖顺序: 对象存储/Redis → 日志管道 → 项目服务 → 执行服务 → Worker
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{
		DB:     db,
		Config: cfg,
	}

	redisCfg := normalizeRedisConfig(cfg.Redis)

	container.initRedis(&redisCfg)
	if err := container.initObjectStore(cfg); err != nil {
		return nil, err
	}
	container.initPipeline(redisCfg, cfg.Pipeline)
	container.initProjects()
	container.initExecution(cfg)
	container.initWorker(redisCfg, cfg.Pipeline)

	container.RateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	logger.Info("应用容器初始化完成")
	return container, nil
}

// initRedis 初始化 Redis 连接。
// 连接失败只降级告警: 队列客户端与 Worker 持有独立连接，
// 这里的客户端仅用于就绪探针。
func (c *AppContainer) initRedis(redisCfg *config.RedisConfig) {
	rdb, err := infra.InitRedis(redisCfg)
	if err != nil {
		logger.Warn("Redis 连接失败，就绪探针将报告降级", zap.Error(err))
		return
	}
	c.Redis = rdb
}

// initObjectStore 按配置初始化产物存储
func (c *AppContainer) initObjectStore(cfg *config.Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.ObjectStore.Driver))
	switch driver {
	case "", "memory":
		c.ObjectStore = objectstore.NewMemoryStore()
		logger.Warn("产物存储使用内存实现，进程重启后数据丢失（仅限开发环境）")
	case "s3":
		store, err := objectstore.NewS3Store(cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("初始化 S3 产物存储失败: %w", err)
		}
		c.ObjectStore = store
		logger.Info("产物存储初始化完成",
			zap.String("driver", "s3"),
			zap.String("bucket", cfg.ObjectStore.Bucket),
		)
	default:
		return fmt.Errorf("不支持的产物存储驱动: %s (可选: s3, memory)", driver)
	}
	return nil
}

// initPipeline 组装执行日志管道: 摘要行仓库、产物归档、收尾消息队列、
// 变量索引与链路聚合
func (c *AppContainer) initPipeline(redisCfg config.RedisConfig, pipelineCfg config.PipelineConfig) {
	log := logger.Get()

	c.QueueClient = queue.NewClient(redisCfg, pipelineCfg)
	c.LogRepo = execlog.NewRepository(c.DB)
	c.ArtifactStore = execlog.NewArtifactStore(c.ObjectStore, log)
	c.LoggerFactory = execlog.NewFactory(c.LogRepo, c.ArtifactStore, c.QueueClient, log)

	c.SearchRepo = search.NewRepository(c.DB, log)
	c.TraceRepo = traces.NewRepository(c.DB)
	c.Aggregator = traces.NewAggregator(c.TraceRepo, pipelineCfg.MergeAttempts(), log)
}

// initProjects 初始化项目服务。
// 日志仓库、搜索索引与链路聚合注册为级联清理方，项目删除时一并清空。
func (c *AppContainer) initProjects() {
	c.VersionCache = cache.NewVersionCache(versionCacheCapacity, versionCacheTTL)
	c.ProjectService = project.NewService(c.DB, logger.Get(), c.VersionCache,
		c.LogRepo, c.SearchRepo, c.TraceRepo)
}

// initExecution 初始化模型执行服务
func (c *AppContainer) initExecution(cfg *config.Config) {
	c.ClientFactory = ai.NewClientFactory(cfg.AI)
	c.Runner = ai.NewRunner(c.ProjectService, c.ClientFactory, c.LoggerFactory, logger.Get())
}

// initWorker 初始化队列消费端
func (c *AppContainer) initWorker(redisCfg config.RedisConfig, pipelineCfg config.PipelineConfig) {
	log := logger.Get()

	c.FinalizeHandler = handlers.NewLogFinalizeHandler(
		c.LogRepo,
		c.ArtifactStore,
		c.SearchRepo,
		c.Aggregator,
		log,
	)
	c.WorkerServer = worker.NewServer(redisCfg, pipelineCfg, c.FinalizeHandler, log)
}

// Close 释放容器持有的连接与后台协程
func (c *AppContainer) Close() {
	if c.RateLimiter != nil {
		c.RateLimiter.Stop()
	}
	if c.SysCollector != nil {
		c.SysCollector.Stop()
	}
	if c.ClientFactory != nil {
		c.ClientFactory.Close()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Error("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Error("关闭 Redis 连接失败", zap.Error(err))
		}
	}
}

// ============================================================================
// Handler 初始化
// ============================================================================

// Handlers API Handler 集合
type Handlers struct {
	Project   *projecthandlers.ProjectHandler
	Prompt    *projecthandlers.PromptHandler
	Execution *executionhandlers.ExecutionHandler
	Log       *loghandlers.LogHandler
	Trace     *tracehandlers.TraceHandler
}

// InitHandlers 初始化所有 API Handler
func InitHandlers(container *AppContainer) *Handlers {
	return &Handlers{
		Project:   projecthandlers.NewProjectHandler(container.ProjectService),
		Prompt:    projecthandlers.NewPromptHandler(container.ProjectService),
		Execution: executionhandlers.NewExecutionHandler(container.Runner),
		Log:       loghandlers.NewLogHandler(container.LogRepo, container.ArtifactStore, container.SearchRepo),
		Trace:     tracehandlers.NewTraceHandler(container.TraceRepo),
	}
}
