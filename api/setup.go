package api

import (
	"runtime"

	"prompthub/internal/config"
	"prompthub/internal/logger"
	"prompthub/internal/metrics"
	"prompthub/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Version 构建版本号，编译时通过 -ldflags 注入
var Version = "dev"

// SetupRouter 设置路由与全部依赖
// 返回路由和应用容器；容器持有 Worker 服务器与待释放的连接
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *AppContainer) {
	container, err := InitContainer(db, cfg)
	if err != nil {
		logger.Fatal("初始化应用容器失败", zap.Error(err))
	}
	h := InitHandlers(container)

	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORS())
	router.Use(middleware.RequestIDMiddleware())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点（网关不注入租户头也可访问）
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container))

	// Prometheus 指标端点
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 业务路由
	RegisterRoutes(router, container, h)

	// 系统指标采集（数据库连接池 + Go 运行时），随容器关闭
	if sqlDB, err := db.DB(); err == nil {
		container.SysCollector = metrics.NewSystemCollector(sqlDB)
	} else {
		logger.Warn("获取底层数据库连接失败，跳过连接池指标采集", zap.Error(err))
	}
	metrics.RecordBuildInfo(Version, runtime.Version(), "")

	return router, container
}
