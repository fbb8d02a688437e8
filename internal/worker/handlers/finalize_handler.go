package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"prompthub/internal/execlog"
	"prompthub/internal/metrics"
	"prompthub/internal/objectstore"
	"prompthub/internal/search"
	"prompthub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// LogStore 执行日志摘要行读取抽象，便于注入 mock
type LogStore interface {
	GetByID(ctx context.Context, tenantID, id int64) (*execlog.ExecutionLog, error)
}

// ArtifactReader 执行产物读取抽象
type ArtifactReader interface {
	Read(ctx context.Context, logPath, name string) ([]byte, error)
}

// VariableIndex 搜索索引批量写入抽象（实现内部已降级为尽力而为）
type VariableIndex interface {
	InsertBatch(ctx context.Context, entries []search.SearchIndexEntry)
}

// TraceMerger 链路聚合合并抽象
type TraceMerger interface {
	Merge(ctx context.Context, tenantID, projectID int64, traceID string, durationMs int64, logAt time.Time) error
}

// LogFinalizeHandler 处理执行日志收尾消息：索引变量并合并链路聚合。
// 队列语义是至少一次且不保证顺序，处理过程必须可重入。
type LogFinalizeHandler struct {
	logs      LogStore
	artifacts ArtifactReader
	index     VariableIndex
	merger    TraceMerger
	logger    *zap.Logger
}

func NewLogFinalizeHandler(
	logs LogStore,
	artifacts ArtifactReader,
	index VariableIndex,
	merger TraceMerger,
	logger *zap.Logger,
) *LogFinalizeHandler {
	return &LogFinalizeHandler{
		logs:      logs,
		artifacts: artifacts,
		index:     index,
		merger:    merger,
		logger:    logger,
	}
}

func (h *LogFinalizeHandler) HandleLogFinalize(ctx context.Context, t *asynq.Task) (err error) {
	start := time.Now()
	defer func() {
		metrics.FinalizeTaskDuration.Observe(time.Since(start).Seconds())
		status := "ok"
		if err != nil {
			status = "retry"
		}
		metrics.FinalizeTasksTotal.WithLabelValues(status).Inc()
	}()

	var p tasks.LogFinalizePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	// 摘要行缺失可能是写可见性竞争，按可重试处理而非永久失败
	record, err := h.logs.GetByID(ctx, p.TenantID, p.LogID)
	if err != nil {
		if errors.Is(err, execlog.ErrRecordNotFound) {
			return fmt.Errorf("log %d not visible yet: %w", p.LogID, err)
		}
		h.logger.Error("读取执行日志失败",
			zap.Int64("log_id", p.LogID),
			zap.Error(err),
		)
		return err
	}

	// 变量索引是可重建的旁路数据，失败不阻塞 ack
	h.indexVariables(ctx, record)

	// 链路聚合是事实数据：进程内冲突重试耗尽后交还队列重新投递
	if record.TraceID != "" {
		var durationMs int64
		if record.DurationMs != nil {
			durationMs = *record.DurationMs
		}
		if err := h.merger.Merge(ctx, record.TenantID, record.ProjectID, record.TraceID, durationMs, record.CreatedAt); err != nil {
			h.logger.Error("链路聚合合并失败",
				zap.Int64("log_id", record.ID),
				zap.String("trace_id", record.TraceID),
				zap.Error(err),
			)
			return err
		}
	}

	h.logger.Debug("执行日志收尾完成", zap.Int64("log_id", record.ID))
	return nil
}

// indexVariables 读取变量产物并写入搜索索引，任何失败只记日志
func (h *LogFinalizeHandler) indexVariables(ctx context.Context, record *execlog.ExecutionLog) {
	if record.LogPath == "" {
		return
	}

	data, err := h.artifacts.Read(ctx, record.LogPath, execlog.ArtifactVariables)
	if err != nil {
		// 没有变量产物的执行很常见，直接跳过
		if !errors.Is(err, objectstore.ErrNotFound) {
			h.logger.Warn("读取变量产物失败",
				zap.Int64("log_id", record.ID),
				zap.String("log_path", record.LogPath),
				zap.Error(err),
			)
		}
		return
	}

	vars, err := search.DecodeVariables(data)
	if err != nil {
		h.logger.Warn("变量产物解析失败",
			zap.Int64("log_id", record.ID),
			zap.String("log_path", record.LogPath),
			zap.Error(err),
		)
		return
	}

	entries := search.BuildEntries(record.TenantID, record.ProjectID, record.PromptID, record.ID, search.Flatten(vars))
	if len(entries) == 0 {
		return
	}
	h.index.InsertBatch(ctx, entries)
	metrics.VariablesIndexedTotal.Add(float64(len(entries)))

	h.logger.Debug("执行变量已索引",
		zap.Int64("log_id", record.ID),
		zap.Int("entries", len(entries)),
	)
}
