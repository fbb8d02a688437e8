package traces

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"prompthub/internal/metrics"
)

// ErrMergeConflict 版本冲突重试次数耗尽，调用方应让消息重新投递
var ErrMergeConflict = errors.New("trace merge conflict")

// Aggregator 把单次执行的耗时合并进所属链路的聚合行
//
// 同一 traceId 的多条收尾消息可能被不同 worker 并发处理，
// 盲目的读-改-写会丢失更新；这里用版本号条件更新代替分布式锁，
// 冲突时整体重读重算，在进程内有界重试
type Aggregator struct {
	repo     *Repository
	attempts int
	log      *zap.Logger
}

// NewAggregator 创建链路聚合器，attempts 为进程内冲突重试上限
func NewAggregator(repo *Repository, attempts int, log *zap.Logger) *Aggregator {
	if attempts <= 0 {
		attempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{repo: repo, attempts: attempts, log: log}
}

// Merge 合并一次执行：不存在则创建，存在则累加并推进时间窗口
// 消息间不保证顺序（同一 traceId 也不保证），正确性不依赖到达次序
func (a *Aggregator) Merge(ctx context.Context, tenantID, projectID int64, traceID string, durationMs int64, logAt time.Time) error {
	for attempt := 1; attempt <= a.attempts; attempt++ {
		done, err := a.mergeOnce(ctx, tenantID, projectID, traceID, durationMs, logAt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		metrics.TraceMergeConflictsTotal.Inc()
		a.log.Debug("链路聚合版本冲突，重读重试",
			zap.String("traceId", traceID),
			zap.Int64("tenantId", tenantID),
			zap.Int("attempt", attempt))
	}
	metrics.TraceMergesTotal.WithLabelValues("exhausted").Inc()
	return fmt.Errorf("%w: traceId=%s attempts=%d", ErrMergeConflict, traceID, a.attempts)
}

// mergeOnce 执行一轮读-算-条件写，返回 false 表示撞上并发写需要重试
func (a *Aggregator) mergeOnce(ctx context.Context, tenantID, projectID int64, traceID string, durationMs int64, logAt time.Time) (bool, error) {
	existing, err := a.repo.GetByTraceID(ctx, tenantID, projectID, traceID)
	if errors.Is(err, ErrTraceNotFound) {
		trace := &Trace{
			TenantID:        tenantID,
			ProjectID:       projectID,
			TraceID:         traceID,
			TotalLogs:       1,
			TotalDurationMs: durationMs,
			FirstLogAt:      logAt,
			LastLogAt:       logAt,
			Version:         1,
		}
		if createErr := a.repo.create(ctx, trace); createErr != nil {
			// 另一个 worker 抢先创建，回到循环重读后走更新路径
			if isDuplicateKey(createErr) {
				return false, nil
			}
			return false, fmt.Errorf("创建链路聚合失败: %w", createErr)
		}
		metrics.TraceMergesTotal.WithLabelValues("created").Inc()
		return true, nil
	}
	if err != nil {
		return false, err
	}

	merged := *existing
	merged.TotalLogs++
	merged.TotalDurationMs += durationMs
	if logAt.Before(merged.FirstLogAt) {
		merged.FirstLogAt = logAt
	}
	if logAt.After(merged.LastLogAt) {
		merged.LastLogAt = logAt
	}

	done, err := a.repo.casUpdate(ctx, &merged, existing.Version)
	if done {
		metrics.TraceMergesTotal.WithLabelValues("merged").Inc()
	}
	return done, err
}
