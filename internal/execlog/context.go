package execlog

import (
	"errors"
	"fmt"
)

// ErrMissingContext 记录执行结果时缺少必备标识符。
// 这是调用方的编程错误，必须同步上抛，不允许吞掉。
var ErrMissingContext = errors.New("execution log context is incomplete")

// CallContext 一次执行绑定的标识符集合。
// SetContext 绑定一次后，后续调用无需重复传递；
// LogSuccess/LogError 可携带显式字段逐项覆盖。
type CallContext struct {
	TenantID   int64
	ProjectID  int64
	PromptID   int64
	Version    int
	RawTraceID string
}

// Merge 显式字段优先的合并: override 中的非零字段覆盖 c 中的对应字段。
// 覆盖规则集中在这一个函数里，便于审计。
func (c CallContext) Merge(override CallContext) CallContext {
	out := c
	if override.TenantID > 0 {
		out.TenantID = override.TenantID
	}
	if override.ProjectID > 0 {
		out.ProjectID = override.ProjectID
	}
	if override.PromptID > 0 {
		out.PromptID = override.PromptID
	}
	if override.Version > 0 {
		out.Version = override.Version
	}
	if override.RawTraceID != "" {
		out.RawTraceID = override.RawTraceID
	}
	return out
}

// Validate 校验落库必备的标识符是否齐全
func (c CallContext) Validate() error {
	if c.TenantID <= 0 || c.ProjectID <= 0 || c.PromptID <= 0 || c.Version <= 0 {
		return fmt.Errorf("%w: tenantId=%d projectId=%d promptId=%d version=%d",
			ErrMissingContext, c.TenantID, c.ProjectID, c.PromptID, c.Version)
	}
	return nil
}
