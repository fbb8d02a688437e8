package traces

import (
	"time"
)

// Trace 链路聚合行：同一 traceId 下所有执行的汇总
// 系统中唯一存在并发写入者的实体，仅靠乐观并发（version 条件更新）保护
type Trace struct {
	ID        int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  int64  `json:"tenantId" gorm:"not null;uniqueIndex:uniq_traces_scope,priority:1"`
	ProjectID int64  `json:"projectId" gorm:"not null;uniqueIndex:uniq_traces_scope,priority:2"`
	TraceID   string `json:"traceId" gorm:"size:32;not null;uniqueIndex:uniq_traces_scope,priority:3"`

	// 聚合指标
	TotalLogs       int64 `json:"totalLogs" gorm:"not null;default:0"`
	TotalDurationMs int64 `json:"totalDurationMs" gorm:"not null;default:0"`

	// 时间窗口：跨消息不保证顺序，取 min/max 而非首末到达
	FirstLogAt time.Time `json:"firstLogAt" gorm:"not null"`
	LastLogAt  time.Time `json:"lastLogAt" gorm:"not null"`

	// 乐观锁版本号，条件更新的比较对象
	Version int64 `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Trace) TableName() string {
	return "traces"
}
