package executions

import (
	"errors"
	"strconv"

	"prompthub/internal/ai"
	"prompthub/internal/common"
	"prompthub/internal/execlog"
	"prompthub/internal/middleware"
	"prompthub/internal/project"

	"github.com/gin-gonic/gin"
)

// ExecutionHandler 提示词执行 Handler
type ExecutionHandler struct {
	runner *ai.Runner
}

// NewExecutionHandler 创建 ExecutionHandler 实例
func NewExecutionHandler(runner *ai.Runner) *ExecutionHandler {
	return &ExecutionHandler{runner: runner}
}

type executeRequest struct {
	ProjectID int64          `json:"projectId" binding:"required"`
	Version   int            `json:"version"` // 0 表示最新版本
	Variables map[string]any `json:"variables"`
	TraceID   string         `json:"traceId"`
	Silent    bool           `json:"silent"`
}

// Execute 执行一次提示词调用
// POST /api/prompts/:id/execute
// Body: {"projectId": 1, "version": 0, "variables": {"topic": "AI"}, "traceId": "...", "silent": false}
func (h *ExecutionHandler) Execute(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	promptID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || promptID <= 0 {
		common.ResponseBadRequest(c, "无效的提示词 ID: "+c.Param("id"))
		return
	}

	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	// 追踪标识优先取请求体，其次取网关透传的 X-Trace-ID 头
	rawTraceID := req.TraceID
	if rawTraceID == "" {
		rawTraceID = middleware.GetTraceIDFromGin(c)
	}

	resp, err := h.runner.Execute(c.Request.Context(), ai.ExecuteRequest{
		TenantID:   tenantID,
		ProjectID:  req.ProjectID,
		PromptID:   promptID,
		Version:    req.Version,
		Variables:  req.Variables,
		RawTraceID: rawTraceID,
		Silent:     req.Silent,
	})
	if err != nil {
		h.respondExecuteError(c, err)
		return
	}

	common.ResponseSuccess(c, resp)
}

// respondExecuteError 把执行失败映射到业务错误码，错误文本一律原样返回
func (h *ExecutionHandler) respondExecuteError(c *gin.Context, err error) {
	var providerErr *ai.ProviderError

	switch {
	case errors.Is(err, project.ErrPromptNotFound):
		common.ResponseError(c, common.CodePromptNotFound, err.Error())
	case errors.Is(err, project.ErrVersionNotFound):
		common.ResponseError(c, common.CodeVersionNotFound, err.Error())
	case errors.As(err, &providerErr):
		common.ResponseError(c, common.CodeProviderFailed, err.Error())
	case errors.Is(err, execlog.ErrEnqueueFailed):
		common.ResponseError(c, common.CodeEnqueueFailed, err.Error())
	case errors.Is(err, execlog.ErrMissingContext):
		common.ResponseError(c, common.CodeMissingLogFields, err.Error())
	default:
		common.ResponseServerError(c, err.Error())
	}
}
