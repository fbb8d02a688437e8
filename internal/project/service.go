package project

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"prompthub/internal/cache"
	"prompthub/internal/common"

	"go.uber.org/zap"
)

var (
	// ErrProjectNotFound 项目不存在或不属于该租户
	ErrProjectNotFound = errors.New("project not found")
	// ErrPromptNotFound 提示词不存在或不属于该租户
	ErrPromptNotFound = errors.New("prompt not found")
	// ErrVersionNotFound 提示词版本不存在
	ErrVersionNotFound = errors.New("prompt version not found")
)

// CascadeCleaner 项目删除时的级联清理协作方（执行日志、搜索索引、链路聚合）
type CascadeCleaner interface {
	DeleteByProject(ctx context.Context, tenantID, projectID int64) error
}

// Service 项目与提示词的持久化服务
type Service struct {
	*common.BaseService
	cleaners []CascadeCleaner
	versions *cache.VersionCache
	log      *zap.Logger
}

// NewService 创建项目服务，versions 传 nil 时不启用版本缓存
func NewService(db *gorm.DB, log *zap.Logger, versions *cache.VersionCache, cleaners ...CascadeCleaner) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		BaseService: common.NewBaseService(db),
		cleaners:    cleaners,
		versions:    versions,
		log:         log,
	}
}

// ============ 项目 ============

// CreateProject 创建项目
func (s *Service) CreateProject(ctx context.Context, p *Project) error {
	if err := s.Create(ctx, p); err != nil {
		return fmt.Errorf("创建项目失败: %w", err)
	}
	return nil
}

// GetProject 获取项目（租户隔离）
func (s *Service) GetProject(ctx context.Context, tenantID, id int64) (*Project, error) {
	var p Project
	err := s.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	return &p, nil
}

// ListProjects 分页列出租户项目
func (s *Service) ListProjects(ctx context.Context, tenantID int64, page common.PaginationRequest) ([]Project, int64, error) {
	query := s.GetDBWithContext(ctx).Model(&Project{}).Scopes(common.ByTenant(tenantID))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计项目数失败: %w", err)
	}

	var items []Project
	err := s.ApplyPagination(query.Order("created_at DESC, id DESC"), page.Page, page.GetPageSize()).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询项目列表失败: %w", err)
	}
	return items, total, nil
}

// DeleteProject 删除项目及其提示词，并级联清理日志、索引与链路聚合。
// 先跑清理协作方再删行：清理失败时项目保留，删除可安全重试。
func (s *Service) DeleteProject(ctx context.Context, tenantID, id int64) error {
	if _, err := s.GetProject(ctx, tenantID, id); err != nil {
		return err
	}

	for _, cleaner := range s.cleaners {
		if err := cleaner.DeleteByProject(ctx, tenantID, id); err != nil {
			return fmt.Errorf("级联清理失败: %w", err)
		}
	}

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		promptIDs := tx.Model(&Prompt{}).Select("id").
			Where("tenant_id = ? AND project_id = ?", tenantID, id)
		if err := tx.Where("tenant_id = ? AND prompt_id IN (?)", tenantID, promptIDs).
			Delete(&PromptVersion{}).Error; err != nil {
			return fmt.Errorf("删除提示词版本失败: %w", err)
		}
		if err := tx.Where("tenant_id = ? AND project_id = ?", tenantID, id).
			Delete(&Prompt{}).Error; err != nil {
			return fmt.Errorf("删除提示词失败: %w", err)
		}
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).
			Delete(&Project{}).Error; err != nil {
			return fmt.Errorf("删除项目失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 缓存键按 (租户, 提示词, 版本) 组织，无法按项目枚举，整体清空兜底
	if s.versions != nil {
		s.versions.Purge()
	}
	return nil
}

// ============ 提示词 ============

// CreatePrompt 在项目下创建提示词
func (s *Service) CreatePrompt(ctx context.Context, p *Prompt) error {
	if _, err := s.GetProject(ctx, p.TenantID, p.ProjectID); err != nil {
		return err
	}
	if err := s.Create(ctx, p); err != nil {
		return fmt.Errorf("创建提示词失败: %w", err)
	}
	return nil
}

// GetPrompt 获取提示词（租户隔离）
func (s *Service) GetPrompt(ctx context.Context, tenantID, id int64) (*Prompt, error) {
	var p Prompt
	err := s.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromptNotFound
		}
		return nil, fmt.Errorf("查询提示词失败: %w", err)
	}
	return &p, nil
}

// ListPrompts 分页列出项目下的提示词
func (s *Service) ListPrompts(ctx context.Context, tenantID, projectID int64, page common.PaginationRequest) ([]Prompt, int64, error) {
	query := s.GetDBWithContext(ctx).Model(&Prompt{}).
		Scopes(common.ByTenant(tenantID), common.ByProject(projectID))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计提示词数失败: %w", err)
	}

	var items []Prompt
	err := s.ApplyPagination(query.Order("created_at DESC, id DESC"), page.Page, page.GetPageSize()).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询提示词列表失败: %w", err)
	}
	return items, total, nil
}

// ============ 版本 ============

// PublishVersion 发布新版本：版本号单调递增，同步推进提示词的最新版本号
func (s *Service) PublishVersion(ctx context.Context, version *PromptVersion) error {
	prompt, err := s.GetPrompt(ctx, version.TenantID, version.PromptID)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(tx *gorm.DB) error {
		version.Version = prompt.LatestVersion + 1
		if err := tx.Create(version).Error; err != nil {
			return fmt.Errorf("创建提示词版本失败: %w", err)
		}
		result := tx.Model(&Prompt{}).
			Where("tenant_id = ? AND id = ? AND latest_version = ?", version.TenantID, version.PromptID, prompt.LatestVersion).
			Update("latest_version", version.Version)
		if result.Error != nil {
			return fmt.Errorf("更新最新版本号失败: %w", result.Error)
		}
		// 并发发布撞号时回滚，由调用方重试
		if result.RowsAffected == 0 {
			return fmt.Errorf("提示词 %d 版本号被并发推进", version.PromptID)
		}
		return nil
	})
}

// GetVersion 获取指定版本，version 传 0 时返回最新已发布版本。
// 最新版本号要查提示词行才知道，不缓存；具体版本号不可变，读取走缓存。
func (s *Service) GetVersion(ctx context.Context, tenantID, promptID int64, version int) (*PromptVersion, error) {
	if version <= 0 {
		prompt, err := s.GetPrompt(ctx, tenantID, promptID)
		if err != nil {
			return nil, err
		}
		if prompt.LatestVersion == 0 {
			return nil, ErrVersionNotFound
		}
		version = prompt.LatestVersion
	}

	key := cache.VersionKey(tenantID, promptID, version)
	if s.versions != nil {
		if cached, ok := s.versions.Get(key); ok {
			if v, ok := cached.(*PromptVersion); ok {
				return v, nil
			}
		}
	}

	var v PromptVersion
	err := s.GetDBWithContext(ctx).
		Scopes(common.ByTenant(tenantID)).
		Where("prompt_id = ? AND version = ?", promptID, version).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("查询提示词版本失败: %w", err)
	}

	if s.versions != nil {
		s.versions.Set(key, &v)
	}
	return &v, nil
}
