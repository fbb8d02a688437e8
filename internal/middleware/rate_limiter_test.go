package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newTestLimiter(t *testing.T, cfg *RateLimiterConfig) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiterBurstExhaustion(t *testing.T) {
	rl := newTestLimiter(t, &RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 1000,
		BurstSize:         3,
		CleanupInterval:   time.Minute,
	})

	for i := 0; i < 3; i++ {
		if !rl.Allow("caller-a") {
			t.Fatalf("request %d within burst should pass", i+1)
		}
	}
	if rl.Allow("caller-a") {
		t.Fatal("burst exhausted, request should be denied")
	}

	// 其他 key 不受影响
	if !rl.Allow("caller-b") {
		t.Fatal("independent key should have its own bucket")
	}
}

func TestRateLimiterRefillAfterIdle(t *testing.T) {
	rl := newTestLimiter(t, &RateLimiterConfig{
		RequestsPerSecond: 100,
		RequestsPerMinute: 1000,
		BurstSize:         2,
		CleanupInterval:   time.Minute,
	})

	rl.Allow("caller")
	rl.Allow("caller")
	if rl.Allow("caller") {
		t.Fatal("bucket should be empty right after burst")
	}

	// 100/s 的速率下 50ms 至少补回 5 个令牌
	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("caller") {
		t.Fatal("bucket should refill after idle period")
	}
}

func TestRateLimiterMinuteCap(t *testing.T) {
	rl := newTestLimiter(t, &RateLimiterConfig{
		RequestsPerSecond: 100,
		RequestsPerMinute: 2,
		BurstSize:         100,
		CleanupInterval:   time.Minute,
	})

	if !rl.Allow("caller") || !rl.Allow("caller") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("caller") {
		t.Fatal("minute cap reached, request should be denied even with tokens left")
	}
}

func newLimitedRouter(rl *RateLimiter, byTenant bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if byTenant {
		r.Use(GinTenantContextMiddleware(nil, zap.NewNop()))
		r.Use(RateLimitByTenant(rl))
	} else {
		r.Use(RateLimitMiddleware(rl))
	}
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	rl := newTestLimiter(t, &RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 1000,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	r := newLimitedRouter(rl, false)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", second.Code)
	}
}

func TestRateLimitByTenantIsolatesTenants(t *testing.T) {
	rl := newTestLimiter(t, &RateLimiterConfig{
		RequestsPerSecond: 1,
		RequestsPerMinute: 1000,
		BurstSize:         1,
		CleanupInterval:   time.Minute,
	})
	r := newLimitedRouter(rl, true)

	do := func(tenant string) int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(HeaderTenantID, tenant)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := do("1"); code != http.StatusOK {
		t.Fatalf("tenant 1 first request: expected 200, got %d", code)
	}
	if code := do("1"); code != http.StatusTooManyRequests {
		t.Fatalf("tenant 1 second request: expected 429, got %d", code)
	}
	// 另一个租户独立计数
	if code := do("2"); code != http.StatusOK {
		t.Fatalf("tenant 2 first request: expected 200, got %d", code)
	}
}
