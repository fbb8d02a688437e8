package traces

import (
	"errors"
	"strconv"

	"prompthub/internal/common"
	"prompthub/internal/middleware"
	"prompthub/internal/traces"

	"github.com/gin-gonic/gin"
)

// TraceHandler 链路聚合查询 Handler
type TraceHandler struct {
	repo *traces.Repository
}

// NewTraceHandler 创建 TraceHandler 实例
func NewTraceHandler(repo *traces.Repository) *TraceHandler {
	return &TraceHandler{repo: repo}
}

// ListTraces 分页查询项目下的链路聚合
// GET /api/projects/:id/traces?page=1&page_size=20
func (h *TraceHandler) ListTraces(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || projectID <= 0 {
		common.ResponseBadRequest(c, "无效的项目 ID: "+c.Param("id"))
		return
	}

	page := common.DefaultPagination()
	if v := c.Query("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			page.Page = p
		}
	}
	if v := c.Query("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			page.PageSize = ps
		}
	}

	items, total, err := h.repo.ListByProject(c.Request.Context(), tenantID, projectID, page)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseList(c, items, total, &page)
}

// GetTrace 按链路标识查询聚合统计
// GET /api/projects/:id/traces/:traceId
func (h *TraceHandler) GetTrace(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	projectID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || projectID <= 0 {
		common.ResponseBadRequest(c, "无效的项目 ID: "+c.Param("id"))
		return
	}

	traceID := c.Param("traceId")
	if traceID == "" {
		common.ResponseBadRequest(c, "缺少链路标识")
		return
	}

	trace, err := h.repo.GetByTraceID(c.Request.Context(), tenantID, projectID, traceID)
	if err != nil {
		if errors.Is(err, traces.ErrTraceNotFound) {
			common.ResponseError(c, common.CodeTraceNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, trace)
}
