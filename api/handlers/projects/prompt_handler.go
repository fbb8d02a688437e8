package projects

import (
	"encoding/json"
	"errors"
	"strconv"

	"prompthub/internal/common"
	"prompthub/internal/middleware"
	"prompthub/internal/project"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// PromptHandler 提示词与版本管理 Handler
type PromptHandler struct {
	service *project.Service
}

// NewPromptHandler 创建 PromptHandler 实例
func NewPromptHandler(service *project.Service) *PromptHandler {
	return &PromptHandler{service: service}
}

type createPromptRequest struct {
	ProjectID   int64  `json:"projectId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type publishVersionRequest struct {
	Content      string         `json:"content" binding:"required"`
	SystemPrompt string         `json:"systemPrompt"`
	Model        string         `json:"model" binding:"required"`
	Temperature  float64        `json:"temperature"`
	MaxTokens    int            `json:"maxTokens"`
	TopP         float64        `json:"topP"`
	Metadata     map[string]any `json:"metadata"`
}

// ListPrompts 查询提示词列表
// GET /api/prompts?project_id=1&page=1&page_size=20
func (h *PromptHandler) ListPrompts(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	projectID, err := strconv.ParseInt(c.Query("project_id"), 10, 64)
	if err != nil || projectID <= 0 {
		common.ResponseBadRequest(c, "缺少或无效的 project_id 参数")
		return
	}
	page := parsePagination(c)

	items, total, err := h.service.ListPrompts(c.Request.Context(), tenantID, projectID, page)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseList(c, items, total, &page)
}

// CreatePrompt 创建提示词
// POST /api/prompts
func (h *PromptHandler) CreatePrompt(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)

	var req createPromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	p := &project.Prompt{
		TenantID:    tenantID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.service.CreatePrompt(c.Request.Context(), p); err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			common.ResponseError(c, common.CodeProjectNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseCreated(c, p)
}

// GetPrompt 查询单个提示词
// GET /api/prompts/:id
func (h *PromptHandler) GetPrompt(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	p, err := h.service.GetPrompt(c.Request.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, project.ErrPromptNotFound) {
			common.ResponseError(c, common.CodePromptNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, p)
}

// PublishVersion 发布新版本，版本号由服务端单调递增分配
// POST /api/prompts/:id/versions
func (h *PromptHandler) PublishVersion(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	promptID, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	var req publishVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	version := &project.PromptVersion{
		TenantID:     tenantID,
		PromptID:     promptID,
		Content:      req.Content,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		TopP:         req.TopP,
	}
	if len(req.Metadata) > 0 {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			common.ResponseBadRequest(c, "metadata 序列化失败: "+err.Error())
			return
		}
		version.Metadata = datatypes.JSON(raw)
	}

	if err := h.service.PublishVersion(c.Request.Context(), version); err != nil {
		if errors.Is(err, project.ErrPromptNotFound) {
			common.ResponseError(c, common.CodePromptNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseCreated(c, version)
}

// GetVersion 查询指定版本，:version 可为数字或 latest
// GET /api/prompts/:id/versions/:version
func (h *PromptHandler) GetVersion(c *gin.Context) {
	tenantID := middleware.TenantIDFromGin(c)
	promptID, err := parseIDParam(c, "id")
	if err != nil {
		common.ResponseBadRequest(c, err.Error())
		return
	}

	// version 0 表示最新版本
	var version int
	if raw := c.Param("version"); raw != "latest" {
		version, err = strconv.Atoi(raw)
		if err != nil || version < 1 {
			common.ResponseBadRequest(c, "无效的 version 参数: "+raw)
			return
		}
	}

	pv, err := h.service.GetVersion(c.Request.Context(), tenantID, promptID, version)
	if err != nil {
		if errors.Is(err, project.ErrVersionNotFound) || errors.Is(err, project.ErrPromptNotFound) {
			common.ResponseError(c, common.CodeVersionNotFound, err.Error())
			return
		}
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseSuccess(c, pv)
}
