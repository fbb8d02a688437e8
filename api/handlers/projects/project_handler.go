package projects

import (
	"errors"
	"strconv"

	"prompthub/internal/common"
	"prompthub/internal/middleware"
	"prompthub/internal/project"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 项目管理 Handler
type ProjectHandler struct {
	service *project.Service
}

// NewProjectHandler 创建 ProjectHandler 实例
func NewProjectHandler(service *project.Service) *ProjectHandler {
	return &ProjectHandler{service: service}
}

type createProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// ListProjects 查询项目列表
// GET /api/projects?page=1&page_size=20
func (h *ProjectHandler) ListProjects(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	page := parsePagination(c)

	items, total, err := h.service.ListProjects(c.Request.Context(), tenantID, page)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseList(c, items, total, &page)
}

// CreateProject 创建项目
// POST /api/projects
func (h *ProjectHandler) CreateProject(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	p := &project.Project{
		TenantID:    tenantID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.service.CreateProject(c.Request.Context(), p); err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseCreated(c, p)
}

// GetProject 查询单个项目
// GET /api/projects/:id
func (h *ProjectHandler) GetProject(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	p, err := h.service.GetProject(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			common.ResponseError(c, common.CodeProjectNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, p)
}

// DeleteProject 删除项目并级联清理执行日志、变量索引与链路聚合
// DELETE /api/projects/:id
func (h *ProjectHandler) DeleteProject(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	if err := h.service.DeleteProject(c.Request.Context(), tenantID, id); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			common.ResponseError(c, common.CodeProjectNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccessMessage(c, "项目删除成功", nil)
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
