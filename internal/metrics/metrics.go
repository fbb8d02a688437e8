package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompthub_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets, // 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节）
	// 执行接口会带完整变量表，体积分布值得单独看
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompthub_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: prometheus.ExponentialBuckets(100, 10, 5), // 100B ~ 1MB
		},
		[]string{"method", "path"},
	)

	// APIResponseSize API 响应体大小（字节）
	APIResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompthub_api_response_size_bytes",
			Help:    "API 响应体大小分布",
			Buckets: prometheus.ExponentialBuckets(100, 10, 5),
		},
		[]string{"method", "path"},
	)
)

// 提示词执行指标
var (
	// ExecutionsTotal 执行总数
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_executions_total",
			Help: "提示词执行总数",
		},
		[]string{"model", "status", "tenant_id"},
	)

	// ExecutionDuration 执行耗时（秒），含提供方调用与重试
	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompthub_execution_duration_seconds",
			Help:    "提示词执行耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	// ExecutionTokens 执行 Token 数量
	ExecutionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_execution_tokens_total",
			Help: "提示词执行 Token 总数",
		},
		[]string{"model", "type"}, // type: prompt, completion
	)
)

// 异步收尾流水线指标
var (
	// FinalizeTasksTotal 收尾消息处理总数
	FinalizeTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_finalize_tasks_total",
			Help: "执行收尾消息处理总数",
		},
		[]string{"status"}, // status: ok, retry
	)

	// FinalizeTaskDuration 收尾消息处理耗时（秒）
	FinalizeTaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prompthub_finalize_task_duration_seconds",
			Help:    "执行收尾消息处理耗时分布",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	// VariablesIndexedTotal 写入检索索引的变量行总数
	VariablesIndexedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompthub_variables_indexed_total",
			Help: "写入检索索引的变量行总数",
		},
	)

	// FinalizeEnqueuesTotal 收尾消息投递总数
	FinalizeEnqueuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_finalize_enqueues_total",
			Help: "执行收尾消息投递总数",
		},
		[]string{"status"}, // status: ok, error
	)
)

// 追踪聚合指标
var (
	// TraceMergesTotal 追踪合并总数
	TraceMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_trace_merges_total",
			Help: "追踪聚合合并总数",
		},
		[]string{"outcome"}, // outcome: created, merged, exhausted
	)

	// TraceMergeConflictsTotal 乐观并发冲突次数（含重试成功的回合）
	TraceMergeConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prompthub_trace_merge_conflicts_total",
			Help: "追踪聚合乐观并发冲突次数",
		},
	)
)

// 产物存储指标
var (
	// ArtifactWritesTotal 执行产物写入总数
	ArtifactWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_artifact_writes_total",
			Help: "执行产物写入总数",
		},
		[]string{"name", "status"}, // name: metadata/input/output/result/response/variables
	)
)

// 缓存指标
var (
	// CacheHitsTotal 缓存命中总数
	CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_cache_hits_total",
			Help: "缓存命中总数",
		},
		[]string{"cache"}, // cache: version
	)

	// CacheMissesTotal 缓存未命中总数
	CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompthub_cache_misses_total",
			Help: "缓存未命中总数",
		},
		[]string{"cache"},
	)
)

// 数据库指标
var (
	// DBConnections 数据库连接数
	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prompthub_db_connections",
			Help: "数据库连接数",
		},
		[]string{"state"}, // state: open, in_use, idle
	)
)

// 系统指标
var (
	// BuildInfo 构建信息
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prompthub_build_info",
			Help: "PromptHub 构建信息",
		},
		[]string{"version", "go_version", "commit"},
	)
)

// RecordBuildInfo 记录构建信息
func RecordBuildInfo(version, goVersion, commit string) {
	BuildInfo.WithLabelValues(version, goVersion, commit).Set(1)
}
