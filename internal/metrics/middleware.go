package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// 探活与指标端点不计入业务指标
var skipPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
	"/ready":   {},
}

// PrometheusMiddleware HTTP 请求指标中间件
// 按路由模板记录 QPS、延迟与请求/响应体大小。
// 执行接口的请求体里带完整变量树，大小分布值得单独盯。
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := skipPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		// 请求体长度先取出来，后面中间件可能已消费 body
		requestSize := c.Request.ContentLength

		c.Next()

		duration := time.Since(start).Seconds()
		path := routeLabel(c)
		status := strconv.Itoa(c.Writer.Status())

		APIRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)

		if requestSize > 0 {
			APIRequestSize.WithLabelValues(c.Request.Method, path).Observe(float64(requestSize))
		}
		if respSize := c.Writer.Size(); respSize >= 0 {
			APIResponseSize.WithLabelValues(c.Request.Method, path).Observe(float64(respSize))
		}
	}
}

// routeLabel 取路由模板作为标签值。
// 未匹配的请求一律归到 unmatched，原始路径任意可造，
// 直接当标签会把指标基数撑爆。
func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return "unmatched"
}
