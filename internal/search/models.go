package search

import "time"

// SearchIndexEntry 变量搜索索引行。一条执行日志的 variables 产物
// 拍平后产生多行；只追加，仅按日志或项目级联批量删除。
type SearchIndexEntry struct {
	ID        int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  int64 `json:"tenantId" gorm:"not null;index:idx_search_entries_scope,priority:1"`
	ProjectID int64 `json:"projectId" gorm:"not null;index:idx_search_entries_scope,priority:2"`
	PromptID  int64 `json:"promptId" gorm:"not null"`
	LogID     int64 `json:"logId" gorm:"not null;index"`

	VariablePath  string `json:"variablePath" gorm:"size:512;not null;index:idx_search_entries_scope,priority:3"`
	VariableValue string `json:"variableValue" gorm:"type:text;not null"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 指定表名
func (SearchIndexEntry) TableName() string {
	return "search_index_entries"
}
