package execlog

import (
	"context"
	"errors"
	"fmt"

	"prompthub/internal/common"

	"gorm.io/gorm"
)

// ErrRecordNotFound 执行日志不存在
var ErrRecordNotFound = errors.New("execution log not found")

// Repository 执行日志存储
type Repository struct {
	*common.BaseService
}

// NewRepository 创建执行日志存储
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{BaseService: common.NewBaseService(db)}
}

// Create 插入汇总行。汇总行是系统的事实源，写入失败必须上抛。
func (r *Repository) Create(ctx context.Context, record *ExecutionLog) error {
	if err := r.GetDBWithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create execution log: %w", err)
	}
	return nil
}

// GetByID 按 (tenantId, id) 读取单条日志
func (r *Repository) GetByID(ctx context.Context, tenantID, id int64) (*ExecutionLog, error) {
	var record ExecutionLog
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("query execution log %d: %w", id, err)
	}
	return &record, nil
}

// ListFilter 日志列表过滤条件
type ListFilter struct {
	ProjectID int64
	PromptID  int64
	TraceID   string
	IsSuccess *bool
	DateRange *common.DateRange
	common.PaginationRequest
}

// List 按租户分页查询执行日志，最新在前
func (r *Repository) List(ctx context.Context, tenantID int64, filter ListFilter) ([]ExecutionLog, int64, error) {
	query := r.GetDBWithContext(ctx).Model(&ExecutionLog{}).Scopes(common.ByTenant(tenantID))
	if filter.ProjectID > 0 {
		query = query.Scopes(common.ByProject(filter.ProjectID))
	}
	if filter.PromptID > 0 {
		query = query.Where("prompt_id = ?", filter.PromptID)
	}
	if filter.TraceID != "" {
		query = query.Where("trace_id = ?", filter.TraceID)
	}
	if filter.IsSuccess != nil {
		query = query.Where("is_success = ?", *filter.IsSuccess)
	}
	query = r.ApplyDateRangeFilter(query, "created_at", filter.DateRange)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count execution logs: %w", err)
	}

	var records []ExecutionLog
	err := r.ApplyPagination(query.Order("created_at DESC, id DESC"), filter.Page, filter.GetPageSize()).
		Find(&records).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list execution logs: %w", err)
	}
	return records, total, nil
}

// FindByIDList 按租户批量读取指定 ID 的日志，保持最新在前
func (r *Repository) FindByIDList(ctx context.Context, tenantID int64, ids []int64) ([]ExecutionLog, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var records []ExecutionLog
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id IN ?", ids).
		Order("created_at DESC, id DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find execution logs by ids: %w", err)
	}
	return records, nil
}

// Delete 删除单条日志
func (r *Repository) Delete(ctx context.Context, tenantID, id int64) error {
	result := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", id).
		Delete(&ExecutionLog{})
	if result.Error != nil {
		return fmt.Errorf("delete execution log %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// DeleteByProject 删除项目下的全部日志（项目删除级联）
func (r *Repository) DeleteByProject(ctx context.Context, tenantID, projectID int64) error {
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID)).
		Delete(&ExecutionLog{}).Error
	if err != nil {
		return fmt.Errorf("delete execution logs of project %d: %w", projectID, err)
	}
	return nil
}
