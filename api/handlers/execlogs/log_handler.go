package execlogs

import (
	"errors"
	"strconv"
	"time"

	"prompthub/internal/common"
	"prompthub/internal/execlog"
	"prompthub/internal/middleware"
	"prompthub/internal/objectstore"
	"prompthub/internal/search"

	"github.com/gin-gonic/gin"
)

// 可通过接口读取的产物名称
var readableArtifacts = map[string]bool{
	execlog.ArtifactMetadata:  true,
	execlog.ArtifactInput:     true,
	execlog.ArtifactOutput:    true,
	execlog.ArtifactResult:    true,
	execlog.ArtifactResponse:  true,
	execlog.ArtifactVariables: true,
}

// LogHandler 执行日志查询与管理 Handler
type LogHandler struct {
	repo      *execlog.Repository
	artifacts *execlog.ArtifactStore
	index     *search.Repository
}

// NewLogHandler 创建 LogHandler 实例
func NewLogHandler(repo *execlog.Repository, artifacts *execlog.ArtifactStore, index *search.Repository) *LogHandler {
	return &LogHandler{
		repo:      repo,
		artifacts: artifacts,
		index:     index,
	}
}

// ListLogs 分页查询执行日志
// GET /api/logs?project_id=1&prompt_id=2&trace_id=xxx&success=true&since=2026-08-01T00:00:00Z&page=1&page_size=20
func (h *LogHandler) ListLogs(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	filter := execlog.ListFilter{
		TraceID:           c.Query("trace_id"),
		PaginationRequest: parsePagination(c),
	}
	if v := c.Query("project_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.ProjectID = id
		}
	}
	if v := c.Query("prompt_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.PromptID = id
		}
	}
	if v := c.Query("success"); v != "" {
		if ok, err := strconv.ParseBool(v); err == nil {
			filter.IsSuccess = &ok
		}
	}
	if dr := parseDateRange(c); dr != nil {
		filter.DateRange = dr
	}

	records, total, err := h.repo.List(c.Request.Context(), tenantID, filter)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseList(c, records, total, &filter.PaginationRequest)
}

// GetLog 查询单条执行日志摘要
// GET /api/logs/:id
func (h *LogHandler) GetLog(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	record, err := h.repo.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, execlog.ErrRecordNotFound) {
			common.ResponseError(c, common.CodeLogNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, record)
}

// GetArtifact 读取执行产物快照
// GET /api/logs/:id/artifacts/:name
func (h *LogHandler) GetArtifact(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	name := c.Param("name")
	if !readableArtifacts[name] {
		common.ResponseBadRequest(c, "未知的产物名称: "+name)
		return
	}

	record, err := h.repo.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, execlog.ErrRecordNotFound) {
			common.ResponseError(c, common.CodeLogNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}
	if record.LogPath == "" {
		common.ResponseNotFound(c, "该日志没有关联产物")
		return
	}

	data, err := h.artifacts.Read(c.Request.Context(), record.LogPath, name)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			common.ResponseNotFound(c, "产物不存在: "+name)
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	c.Data(200, "application/json; charset=utf-8", data)
}

// DeleteLog 删除日志及其产物和变量索引
// DELETE /api/logs/:id
func (h *LogHandler) DeleteLog(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	record, err := h.repo.GetByID(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, execlog.ErrRecordNotFound) {
			common.ResponseError(c, common.CodeLogNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	// 产物先删：失败时摘要行保留，可重试
	if record.LogPath != "" {
		if err := h.artifacts.DeleteAll(c.Request.Context(), record.LogPath); err != nil {
			common.ResponseServerError(c, "删除产物失败: "+err.Error())
			return
		}
	}
	if err := h.index.DeleteByLogID(c.Request.Context(), tenantID, id); err != nil {
		common.ResponseServerError(c, "删除变量索引失败: "+err.Error())
		return
	}
	if err := h.repo.Delete(c.Request.Context(), tenantID, id); err != nil && !errors.Is(err, execlog.ErrRecordNotFound) {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccessMessage(c, "日志删除成功", nil)
}

// parseIDParam 解析路径中的数字 ID
func parseIDParam(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("无效的 " + name + " 参数: " + raw)
	}
	return id, nil
}

// parseDateRange 解析 since/until 查询参数，RFC3339 格式，格式错误的值忽略
func parseDateRange(c *gin.Context) *common.DateRange {
	var dr common.DateRange
	if v := c.Query("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			dr.Start = t
		}
	}
	if v := c.Query("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			dr.End = t
		}
	}
	if dr.Start.IsZero() && dr.End.IsZero() {
		return nil
	}
	return &dr
}

// parsePagination 解析分页查询参数
func parsePagination(c *gin.Context) common.PaginationRequest {
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
	return page
}
