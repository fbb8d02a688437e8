package api

import (
	"context"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"prompthub/internal/config"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
	Redis    string `json:"redis,omitempty"`
}

// HealthCheck 健康检查
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, HealthResponse{
			Status:  "healthy",
			Service: "prompthub",
		})
	}
}

// ReadinessCheck 就绪检查
// 数据库不可用时返回 503；Redis 不可用只降级标记，
// 执行接口仍可拒绝排队而同步失败，读接口不受影响
func ReadinessCheck(container *AppContainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := container.DB.DB()
		if err != nil {
			c.JSON(503, ReadinessResponse{
				Status: "not_ready",
				Reason: "database connection error",
			})
			return
		}

		if err := sqlDB.Ping(); err != nil {
			c.JSON(503, ReadinessResponse{
				Status: "not_ready",
				Reason: "database ping failed",
			})
			return
		}

		redisStatus := "connected"
		if container.Redis == nil {
			redisStatus = "unavailable"
		} else {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := container.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "unavailable"
			}
		}

		c.JSON(200, ReadinessResponse{
			Status:   "ready",
			Database: "connected",
			Redis:    redisStatus,
		})
	}
}

// --- 环境变量辅助函数 ---

// splitList 拆分逗号分隔的列表，空项丢弃
func splitList(raw string) []string {
	var res []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	return splitList(os.Getenv(key))
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

// --- Redis 配置辅助函数 ---

// normalizeRedisConfig 归一化 Redis 配置
// 队列客户端、Worker 与就绪探针共用同一份归一化结果，
// 否则三处各自兜底会连到不同实例
func normalizeRedisConfig(cfg config.RedisConfig) config.RedisConfig {
	resolved := cfg
	resolved.Host = strings.TrimSpace(resolved.Host)
	resolved.Mode = strings.TrimSpace(strings.ToLower(resolved.Mode))
	if resolved.Mode == "" {
		resolved.Mode = "standalone"
	}

	switch resolved.Mode {
	case "sentinel":
		// 哨兵地址缺失时从环境变量补齐
		if len(resolved.SentinelAddrs) == 0 {
			resolved.SentinelAddrs = splitList(os.Getenv("APP_REDIS_SENTINEL_ADDRS"))
		}
	case "cluster":
		if len(resolved.ClusterAddrs) == 0 {
			resolved.ClusterAddrs = splitList(os.Getenv("APP_REDIS_CLUSTER_ADDRS"))
		}
	default:
		// 单节点：REDIS_ADDR 优先于 localhost 兜底
		if resolved.Host == "" {
			if host, port := parseRedisAddr(os.Getenv("REDIS_ADDR")); host != "" {
				resolved.Host = host
				if resolved.Port == 0 && port > 0 {
					resolved.Port = port
				}
			}
		}
	}

	if resolved.Host == "" {
		resolved.Host = "localhost"
	}
	if resolved.Port == 0 {
		resolved.Port = 6379
	}
	if resolved.PoolSize <= 0 {
		resolved.PoolSize = 10
	}
	if resolved.MinIdleConns <= 0 {
		resolved.MinIdleConns = 5
	}

	return resolved
}

// parseRedisAddr 解析 host:port 形式的地址，缺端口时只还 host
func parseRedisAddr(addr string) (string, int) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}
