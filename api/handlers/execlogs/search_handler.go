package execlogs

import (
	"strconv"

	"prompthub/internal/common"
	"prompthub/internal/middleware"
	"prompthub/internal/search"

	"github.com/gin-gonic/gin"
)

// SearchVariables 在变量值上做文本匹配，返回命中的索引行
// GET /api/search/variables?project_id=1&q=alice&limit=50
func (h *LogHandler) SearchVariables(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		common.ResponseBadRequest(c, "缺少或无效的 project_id 参数")
		return
	}

	query := c.Query("q")
	if query == "" {
		common.ResponseBadRequest(c, "缺少搜索关键词 q")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	entries, err := h.index.Search(c.Request.Context(), tenantID, projectID, query, limit)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// SearchLogs 按变量条件检索执行日志，最新在前
// GET /api/search/logs?project_id=1&path=input.userId&value=alice&op=contains
func (h *LogHandler) SearchLogs(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		common.ResponseBadRequest(c, "缺少或无效的 project_id 参数")
		return
	}

	variablePath := c.Query("path")
	if variablePath == "" {
		common.ResponseBadRequest(c, "缺少变量路径 path")
		return
	}

	operator := c.DefaultQuery("op", search.OperatorContains)
	searchValue := c.Query("value")
	if operator == search.OperatorContains && searchValue == "" {
		common.ResponseBadRequest(c, "contains 检索需要 value 参数")
		return
	}

	ids, err := h.index.LogIDsByVariable(c.Request.Context(), tenantID, projectID, variablePath, searchValue, operator)
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	records, err := h.repo.FindByIDList(c.Request.Context(), tenantID, ids)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, gin.H{
		"logs":  records,
		"count": len(records),
	})
}
