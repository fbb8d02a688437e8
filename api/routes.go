package api

import (
	"prompthub/internal/logger"
	"prompthub/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
// 挂载 /api 与 /api/v1 两套前缀，内容一致，便于客户端平滑迁移
func RegisterRoutes(router *gin.Engine, container *AppContainer, h *Handlers) {
	apiGroup := router.Group("/api")
	registerAPIRoutes(apiGroup, container, h)

	v1Group := router.Group("/api/v1")
	registerAPIRoutes(v1Group, container, h)
}

// registerAPIRoutes 注册具体业务路由
func registerAPIRoutes(group *gin.RouterGroup, container *AppContainer, h *Handlers) {
	// 租户身份由网关注入的请求头解析，/api 下所有路由强制要求
	group.Use(middleware.GinTenantContextMiddleware(nil, logger.Get()))
	group.Use(middleware.RateLimitMiddleware(container.RateLimiter))

	// 执行接口按租户单独限流，避免单一租户挤占配额
	executeGuard := middleware.RateLimitByTenant(container.RateLimiter)

	registerProjectRoutes(group, h)
	registerPromptRoutes(group, h, executeGuard)
	registerLogRoutes(group, h)
	registerSearchRoutes(group, h)
}

// registerProjectRoutes 项目管理与链路聚合查询
func registerProjectRoutes(group *gin.RouterGroup, h *Handlers) {
	if h.Project == nil {
		return
	}

	projects := group.Group("/projects")
	{
		projects.GET("", h.Project.ListProjects)
		projects.POST("", h.Project.CreateProject)
		projects.GET("/:id", h.Project.GetProject)
		projects.DELETE("/:id", h.Project.DeleteProject)

		// 链路聚合挂在项目之下: 链路标识只在 (租户, 项目) 内唯一
		if h.Trace != nil {
			projects.GET("/:id/traces", h.Trace.ListTraces)
			projects.GET("/:id/traces/:traceId", h.Trace.GetTrace)
		}
	}
}

// registerPromptRoutes 提示词、版本与执行
func registerPromptRoutes(group *gin.RouterGroup, h *Handlers, executeGuard gin.HandlerFunc) {
	if h.Prompt == nil {
		return
	}

	prompts := group.Group("/prompts")
	{
		prompts.GET("", h.Prompt.ListPrompts)
		prompts.POST("", h.Prompt.CreatePrompt)
		prompts.GET("/:id", h.Prompt.GetPrompt)
		prompts.POST("/:id/versions", h.Prompt.PublishVersion)
		prompts.GET("/:id/versions/:version", h.Prompt.GetVersion)

		if h.Execution != nil {
			prompts.POST("/:id/execute", executeGuard, h.Execution.Execute)
		}
	}
}

// registerLogRoutes 执行日志查询与管理
func registerLogRoutes(group *gin.RouterGroup, h *Handlers) {
	if h.Log == nil {
		return
	}

	logs := group.Group("/logs")
	{
		logs.GET("", h.Log.ListLogs)
		logs.GET("/:id", h.Log.GetLog)
		logs.GET("/:id/artifacts/:name", h.Log.GetArtifact)
		logs.DELETE("/:id", h.Log.DeleteLog)
	}
}

// registerSearchRoutes 变量搜索
func registerSearchRoutes(group *gin.RouterGroup, h *Handlers) {
	if h.Log == nil {
		return
	}

	searchGroup := group.Group("/search")
	{
		searchGroup.GET("/variables", h.Log.SearchVariables)
		searchGroup.GET("/logs", h.Log.SearchLogs)
	}
}
