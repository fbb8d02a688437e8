package traces

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"prompthub/internal/common"
)

// ErrTraceNotFound 链路聚合行不存在
var ErrTraceNotFound = errors.New("trace not found")

// Repository 链路聚合数据访问层
type Repository struct {
	*common.BaseService
}

// NewRepository 创建链路聚合仓储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{BaseService: common.NewBaseService(db)}
}

// GetByTraceID 按 (租户, 项目, traceId) 读取聚合行
func (r *Repository) GetByTraceID(ctx context.Context, tenantID, projectID int64, traceID string) (*Trace, error) {
	var trace Trace
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID)).
		Where("trace_id = ?", traceID).
		First(&trace).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTraceNotFound
		}
		return nil, fmt.Errorf("查询链路聚合失败: %w", err)
	}
	return &trace, nil
}

// ListByProject 按项目分页列出链路，最近活跃的在前
func (r *Repository) ListByProject(ctx context.Context, tenantID, projectID int64, page common.PaginationRequest) ([]Trace, int64, error) {
	query := r.GetDBWithContext(ctx).Model(&Trace{}).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计链路数失败: %w", err)
	}

	var items []Trace
	err := r.ApplyPagination(query.Order("last_log_at DESC, id DESC"), page.Page, page.GetPageSize()).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询链路列表失败: %w", err)
	}
	return items, total, nil
}

// DeleteByProject 删除项目下的全部链路聚合（项目删除级联）
func (r *Repository) DeleteByProject(ctx context.Context, tenantID, projectID int64) error {
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID)).
		Delete(&Trace{}).Error
	if err != nil {
		return fmt.Errorf("删除项目链路聚合失败: %w", err)
	}
	return nil
}

// create 插入新聚合行；并发首插由唯一索引裁决
func (r *Repository) create(ctx context.Context, trace *Trace) error {
	return r.GetDBWithContext(ctx).Create(trace).Error
}

// casUpdate 条件更新：仅当版本号未被他人推进时写回
// 返回 false 表示版本已变化，调用方需重读重算
func (r *Repository) casUpdate(ctx context.Context, trace *Trace, prevVersion int64) (bool, error) {
	result := r.GetDBWithContext(ctx).Model(&Trace{}).
		Where("id = ? AND version = ?", trace.ID, prevVersion).
		Updates(map[string]interface{}{
			"total_logs":        trace.TotalLogs,
			"total_duration_ms": trace.TotalDurationMs,
			"first_log_at":      trace.FirstLogAt,
			"last_log_at":       trace.LastLogAt,
			"version":           prevVersion + 1,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("更新链路聚合失败: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// isDuplicateKey 判断唯一索引冲突（两个 worker 同时首次创建同一链路）
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
