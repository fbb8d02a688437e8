package common

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// BaseService 存储层基类，各业务 Repository/Service 嵌入复用。
// 租户与项目边界用 scopes.go 里的 Scope 表达，这里只收敛
// 查询构造和写入的公共部分。
type BaseService struct {
	DB *gorm.DB
}

// NewBaseService 创建BaseService实例
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{DB: db}
}

// ============================================================================
// 查询构造
// ============================================================================

// ApplyPagination 应用分页条件
// page 从 1 开始；pageSize 钳制到 [1, MaxPageSize]
func (s *BaseService) ApplyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if page < 1 {
		page = 1
	}
	switch {
	case pageSize < 1:
		pageSize = DefaultPageSize
	case pageSize > MaxPageSize:
		pageSize = MaxPageSize
	}

	return query.Offset((page - 1) * pageSize).Limit(pageSize)
}

// ApplyKeywordSearch 在指定列上做 LIKE 模糊匹配，多列之间取 OR。
// 列名只能来自调用方写死的列表，不能透传请求参数。
func (s *BaseService) ApplyKeywordSearch(query *gorm.DB, keyword string, fields []string) *gorm.DB {
	if keyword == "" || len(fields) == 0 {
		return query
	}

	pattern := "%" + keyword + "%"
	conditions := make([]string, len(fields))
	args := make([]interface{}, len(fields))
	for i, field := range fields {
		conditions[i] = fmt.Sprintf("%s LIKE ?", field)
		args[i] = pattern
	}

	return query.Where("("+strings.Join(conditions, " OR ")+")", args...)
}

// ApplyDateRangeFilter 按时间列过滤半开或闭区间。
// dateRange 为 nil 或两端都是零值时不加条件；fieldName 同样只能写死。
func (s *BaseService) ApplyDateRangeFilter(query *gorm.DB, fieldName string, dateRange *DateRange) *gorm.DB {
	if dateRange == nil {
		return query
	}

	if !dateRange.Start.IsZero() {
		query = query.Where(fmt.Sprintf("%s >= ?", fieldName), dateRange.Start)
	}

	if !dateRange.End.IsZero() {
		query = query.Where(fmt.Sprintf("%s <= ?", fieldName), dateRange.End)
	}

	return query
}

// ============================================================================
// 写入与事务
// ============================================================================

// Create 插入单条记录
func (s *BaseService) Create(ctx context.Context, model interface{}) error {
	return s.DB.WithContext(ctx).Create(model).Error
}

// BatchCreate 分批插入，batchSize 不合法时按 100 分批
func (s *BaseService) BatchCreate(ctx context.Context, models interface{}, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	return s.DB.WithContext(ctx).CreateInBatches(models, batchSize).Error
}

// Transaction 在单个数据库事务里执行 fn
func (s *BaseService) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}

// ============================================================================
// 工具方法
// ============================================================================

// GetDB 获取数据库实例
func (s *BaseService) GetDB() *gorm.DB {
	return s.DB
}

// GetDBWithContext 获取带上下文的数据库实例
func (s *BaseService) GetDBWithContext(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx)
}
