package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tenantctx "prompthub/internal/tenant"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 网关注入的身份头
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderCallerID = "X-Caller-ID"
)

// TenantExtractor 从请求中解析租户身份。认证由网关完成，这里只做解析与校验，
// 不做鉴权。便于在测试或其它部署形态下注入不同实现。
type TenantExtractor interface {
	Extract(r *http.Request) (tenantctx.TenantContext, error)
}

// HeaderTenantExtractor 默认实现：读取网关写入的 X-Tenant-ID / X-Caller-ID 头。
type HeaderTenantExtractor struct{}

func (HeaderTenantExtractor) Extract(r *http.Request) (tenantctx.TenantContext, error) {
	raw := strings.TrimSpace(r.Header.Get(HeaderTenantID))
	if raw == "" {
		return tenantctx.TenantContext{}, fmt.Errorf("missing %s header", HeaderTenantID)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return tenantctx.TenantContext{}, fmt.Errorf("invalid tenant id %q", raw)
	}

	return tenantctx.TenantContext{
		TenantID: id,
		Subject:  strings.TrimSpace(r.Header.Get(HeaderCallerID)),
	}, nil
}

// GinTenantContextMiddleware 将网关注入的租户身份转换为 tenant.TenantContext，
// 并注入标准 context.Context。所有业务路由都要求租户存在。
func GinTenantContextMiddleware(extractor TenantExtractor, logger *zap.Logger) gin.HandlerFunc {
	log := logger
	if log == nil {
		log = zap.NewNop()
	}
	if extractor == nil {
		extractor = HeaderTenantExtractor{}
	}

	return func(c *gin.Context) {
		tc, err := extractor.Extract(c.Request)
		if err != nil {
			log.Warn("failed to resolve tenant", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "缺少租户信息"})
			return
		}

		c.Set("tenant_id", tc.TenantID)
		if tc.Subject != "" {
			c.Set("caller_id", tc.Subject)
		}

		ctx := tenantctx.WithTenantContext(c.Request.Context(), tc)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// TenantIDFromGin 取中间件写入的租户 ID，未注入时返回 0。
func TenantIDFromGin(c *gin.Context) int64 {
	if v, exists := c.Get("tenant_id"); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
