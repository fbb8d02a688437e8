package tasks

// Task Types
const (
	TypeLogFinalize = "execlog:finalize"
)

// LogFinalizePayload 执行日志收尾任务载荷
// 只携带标识符，日志正文已写入数据库/对象存储，不随消息传输
type LogFinalizePayload struct {
	TenantID  int64 `json:"tenantId"`
	ProjectID int64 `json:"projectId"`
	PromptID  int64 `json:"promptId"`
	Version   int   `json:"version"`
	LogID     int64 `json:"logId"`
}
