package search

import (
	"context"
	"fmt"
	"time"

	"prompthub/internal/common"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 变量条件匹配方式
const (
	OperatorContains = "contains"
	OperatorNotEmpty = "notEmpty"
)

// Repository 搜索索引存储。
// 索引行是可以从产物重建的副通道，写入一律尽力而为；
// 查询与级联删除正常上抛错误。
type Repository struct {
	*common.BaseService
	log *zap.Logger
}

// NewRepository 创建搜索索引存储
func NewRepository(db *gorm.DB, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{BaseService: common.NewBaseService(db), log: log}
}

// Insert 尽力而为追加单行: 失败只记日志，不上抛
func (r *Repository) Insert(ctx context.Context, entry *SearchIndexEntry) {
	if err := r.GetDBWithContext(ctx).Create(entry).Error; err != nil {
		r.log.Warn("搜索索引写入失败",
			zap.Int64("log_id", entry.LogID),
			zap.String("variable_path", entry.VariablePath),
			zap.Error(err),
		)
	}
}

// InsertBatch 尽力而为批量追加: 失败只记日志，不上抛
func (r *Repository) InsertBatch(ctx context.Context, entries []SearchIndexEntry) {
	if len(entries) == 0 {
		return
	}
	if err := r.BatchCreate(ctx, &entries, 200); err != nil {
		r.log.Warn("搜索索引批量写入失败",
			zap.Int("count", len(entries)),
			zap.Int64("log_id", entries[0].LogID),
			zap.Error(err),
		)
	}
}

// Search 在 variableValue 上做文本匹配。
// 租户与项目边界由 SQL 等值条件强制，绝不依赖匹配文本自身收窄范围。
func (r *Repository) Search(ctx context.Context, tenantID, projectID int64, query string, limit int) ([]SearchIndexEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	q := r.GetDBWithContext(ctx).
		Model(&SearchIndexEntry{}).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID))
	q = r.ApplyKeywordSearch(q, query, []string{"variable_value"})

	var entries []SearchIndexEntry
	err := q.Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("search index entries: %w", err)
	}
	return entries, nil
}

// LogIDsByVariable 按变量条件查询命中的日志 ID，去重且最新在前。
// contains: 在指定 variablePath 下做文本匹配；
// notEmpty: 忽略 searchValue，返回记录过该路径的全部日志。
func (r *Repository) LogIDsByVariable(ctx context.Context, tenantID, projectID int64, variablePath, searchValue, operator string) ([]int64, error) {
	q := r.GetDBWithContext(ctx).
		Model(&SearchIndexEntry{}).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID)).
		Where("variable_path = ?", variablePath)

	switch operator {
	case OperatorNotEmpty:
		// 纯存在性检查
	case OperatorContains, "":
		q = q.Where("variable_value LIKE ?", "%"+searchValue+"%")
	default:
		return nil, fmt.Errorf("unsupported variable search operator %q", operator)
	}

	var rows []struct {
		LogID    int64
		LastSeen time.Time
	}
	err := q.Select("log_id, MAX(created_at) AS last_seen").
		Group("log_id").
		Order("last_seen DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("search log ids by variable: %w", err)
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.LogID)
	}
	return ids, nil
}

// DeleteByLogID 删除一条日志的全部索引行（日志删除级联）
func (r *Repository) DeleteByLogID(ctx context.Context, tenantID, logID int64) error {
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("log_id = ?", logID).
		Delete(&SearchIndexEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete index entries of log %d: %w", logID, err)
	}
	return nil
}

// DeleteByProject 删除项目下的全部索引行（项目删除级联）
func (r *Repository) DeleteByProject(ctx context.Context, tenantID, projectID int64) error {
	err := r.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID)).
		Delete(&SearchIndexEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete index entries of project %d: %w", projectID, err)
	}
	return nil
}
