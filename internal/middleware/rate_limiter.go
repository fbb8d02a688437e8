package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	RequestsPerSecond int           // 令牌补充速率
	RequestsPerMinute int           // 分钟硬上限，0 表示不启用
	BurstSize         int           // 突发容量
	CleanupInterval   time.Duration // 空闲桶回收间隔
}

// DefaultRateLimiterConfig 默认配置
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 10,
		RequestsPerMinute: 300,
		BurstSize:         20,
		CleanupInterval:   5 * time.Minute,
	}
}

// bucket 单个调用方的令牌桶与分钟窗口
type bucket struct {
	avail    float64   // 剩余令牌
	seenAt   time.Time // 上次取令牌时间
	windowN  int       // 当前分钟窗口内的放行数
	windowAt time.Time // 窗口起点
}

// take 先滚动分钟窗口再补令牌，两个限制都过才放行
func (b *bucket) take(now time.Time, cfg *RateLimiterConfig) bool {
	if now.Sub(b.windowAt) > time.Minute {
		b.windowN = 0
		b.windowAt = now
	}

	b.avail += now.Sub(b.seenAt).Seconds() * float64(cfg.RequestsPerSecond)
	if max := float64(cfg.BurstSize); b.avail > max {
		b.avail = max
	}
	b.seenAt = now

	if cfg.RequestsPerMinute > 0 && b.windowN >= cfg.RequestsPerMinute {
		return false
	}
	if b.avail < 1 {
		return false
	}

	b.avail--
	b.windowN++
	return true
}

// RateLimiter 内存限流器，按 key 维护独立的令牌桶。
// 实例只在单进程内生效，多副本部署时各副本独立计数。
type RateLimiter struct {
	config  *RateLimiterConfig
	buckets map[string]*bucket
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewRateLimiter 创建限流器并启动空闲桶回收协程
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	rl := &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Allow 判定 key 的本次请求是否放行
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		// 新调用方从满桶起步，本次直接放行
		rl.buckets[key] = &bucket{
			avail:    float64(rl.config.BurstSize - 1),
			seenAt:   now,
			windowN:  1,
			windowAt: now,
		}
		return true
	}
	return b.take(now, rl.config)
}

// janitor 周期回收长时间无请求的桶，防止 key 无限增长
func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	retention := 2 * rl.config.CleanupInterval
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-retention)
			rl.mu.Lock()
			for key, b := range rl.buckets {
				if b.seenAt.Before(cutoff) {
					delete(rl.buckets, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop 停止回收协程
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// ============================================================================
// Gin 中间件
// ============================================================================

// RateLimitMiddleware 通用限流（优先按调用方标识，其次按 IP）
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetString("caller_id")
		if key == "" {
			key = c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "请求过于频繁，请稍后重试",
				"code":        "RATE_LIMIT_EXCEEDED",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}

// RateLimitByTenant 按租户限流，挂在执行等高成本接口上。
// 未带租户头的请求退化为按 IP，避免匿名流量共享一个桶。
func RateLimitByTenant(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if tenantID := TenantIDFromGin(c); tenantID > 0 {
			key = "tenant:" + strconv.FormatInt(tenantID, 10)
		} else {
			key = "tenant:" + c.ClientIP()
		}

		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "租户请求配额已用尽",
				"code":        "TENANT_RATE_LIMIT_EXCEEDED",
				"retry_after": 1,
			})
			return
		}

		c.Next()
	}
}
