package project

import (
	"gorm.io/datatypes"

	"prompthub/internal/common"
)

// Project 项目：提示词与执行日志的租户内组织单元
type Project struct {
	ID       int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID int64 `json:"tenantId" gorm:"not null;index:idx_projects_tenant"`

	Name        string `json:"name" gorm:"size:200;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	// 项目级可调开关（归档保留天数、默认模型等）
	Settings datatypes.JSON `json:"settings,omitempty"`

	common.TimestampModel
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}

// Prompt 提示词：一组带版本的模板
type Prompt struct {
	ID        int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  int64 `json:"tenantId" gorm:"not null;index:idx_prompts_tenant_project,priority:1"`
	ProjectID int64 `json:"projectId" gorm:"not null;index:idx_prompts_tenant_project,priority:2"`

	Name        string `json:"name" gorm:"size:200;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	// 最新已发布版本号，0 表示尚未发布
	LatestVersion int `json:"latestVersion" gorm:"not null;default:0"`

	common.TimestampModel
}

// TableName 指定表名
func (Prompt) TableName() string {
	return "prompts"
}

// PromptVersion 提示词版本：不可变的模板快照与调用参数
type PromptVersion struct {
	ID       int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID int64 `json:"tenantId" gorm:"not null;uniqueIndex:uniq_prompt_versions,priority:1"`
	PromptID int64 `json:"promptId" gorm:"not null;uniqueIndex:uniq_prompt_versions,priority:2"`
	Version  int   `json:"version" gorm:"not null;uniqueIndex:uniq_prompt_versions,priority:3"`

	// Go text/template 格式的用户消息模板
	Content string `json:"content" gorm:"type:text;not null"`
	// 可选的系统提示词
	SystemPrompt string `json:"systemPrompt,omitempty" gorm:"type:text"`

	// 调用参数
	Model       string  `json:"model" gorm:"size:100;not null"`
	Temperature float64 `json:"temperature" gorm:"not null;default:0"`
	MaxTokens   int     `json:"maxTokens" gorm:"not null;default:0"`
	TopP        float64 `json:"topP" gorm:"not null;default:0"`

	// 版本附加信息（发布说明、评测结论等）
	Metadata datatypes.JSON `json:"metadata,omitempty"`

	common.TimestampModel
}

// TableName 指定表名
func (PromptVersion) TableName() string {
	return "prompt_versions"
}
