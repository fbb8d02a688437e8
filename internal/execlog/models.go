package execlog

import (
	"fmt"
	"time"
)

// ExecutionLog 一次提示词执行的汇总行。
// 成功或失败时插入一次，此后不可变；队列消费端只读取，不回写。
// 唯一定位方式是 (tenant_id, id)。
type ExecutionLog struct {
	ID        int64 `json:"id" gorm:"primaryKey;autoIncrement"`
	TenantID  int64 `json:"tenantId" gorm:"not null;index:idx_execution_logs_tenant_created,priority:1"`
	ProjectID int64 `json:"projectId" gorm:"not null;index"`
	PromptID  int64 `json:"promptId" gorm:"not null;index"`
	Version   int   `json:"version" gorm:"not null"`

	// 执行结果
	IsSuccess    bool   `json:"isSuccess" gorm:"not null"`
	ErrorMessage string `json:"errorMessage,omitempty" gorm:"type:text"`
	DurationMs   *int64 `json:"durationMs,omitempty"`

	// 分布式追踪: traceId 为解析出的 32 位十六进制，rawTraceId 保留原始头
	TraceID    string `json:"traceId,omitempty" gorm:"size:32;index"`
	RawTraceID string `json:"rawTraceId,omitempty" gorm:"size:128"`

	// 产物目录前缀，产物缺失时为空
	LogPath string `json:"logPath,omitempty" gorm:"size:512"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index:idx_execution_logs_tenant_created,priority:2"`
}

// TableName 指定表名
func (ExecutionLog) TableName() string {
	return "execution_logs"
}

// 产物名称
const (
	ArtifactMetadata  = "metadata"
	ArtifactInput     = "input"
	ArtifactOutput    = "output"
	ArtifactResult    = "result"
	ArtifactResponse  = "response"
	ArtifactVariables = "variables"
)

// BuildLogPath 构造一次执行的产物目录前缀
// 布局: logs/{tenantId}/{yyyy-mm-dd}/{projectId}/{promptId}/{version}/{sequence}
func BuildLogPath(tenantID, projectID, promptID int64, version int, sequence int64, at time.Time) string {
	return fmt.Sprintf("logs/%d/%s/%d/%d/%d/%d",
		tenantID, at.UTC().Format("2006-01-02"), projectID, promptID, version, sequence)
}

// ArtifactKey 产物对象的完整存储 key
func ArtifactKey(logPath, name string) string {
	return fmt.Sprintf("%s/%s.json", logPath, name)
}
