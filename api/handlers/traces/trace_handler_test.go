package traces

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prompthub/internal/middleware"
	tracestore "prompthub/internal/traces"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var traceRouterSeq int

func newTraceRouter(t *testing.T) (*gin.Engine, *tracestore.Aggregator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	traceRouterSeq++
	dsn := fmt.Sprintf("file:trace_handler_%d?mode=memory&cache=shared", traceRouterSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&tracestore.Trace{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	repo := tracestore.NewRepository(db)
	aggregator := tracestore.NewAggregator(repo, 3, zaptest.NewLogger(t))
	handler := NewTraceHandler(repo)

	router := gin.New()
	group := router.Group("/api")
	group.Use(middleware.GinTenantContextMiddleware(nil, zaptest.NewLogger(t)))
	group.GET("/projects/:id/traces", handler.ListTraces)
	group.GET("/projects/:id/traces/:traceId", handler.GetTrace)

	return router, aggregator
}

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("X-Tenant-ID", "7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTraceHandlerGet(t *testing.T) {
	router, aggregator := newTraceRouter(t)
	ctx := context.Background()

	traceID := "4bf92f3577b34da6a3ce929d0e0e4736"
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := aggregator.Merge(ctx, 7, 1, traceID, 120, at); err != nil {
		t.Fatalf("预置链路失败: %v", err)
	}
	if err := aggregator.Merge(ctx, 7, 1, traceID, 80, at.Add(time.Minute)); err != nil {
		t.Fatalf("合并链路失败: %v", err)
	}

	w := get(t, router, "/api/projects/1/traces/"+traceID)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data tracestore.Trace `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析链路响应失败: %v", err)
	}
	assert.Equal(t, int64(2), resp.Data.TotalLogs)
	assert.Equal(t, int64(200), resp.Data.TotalDurationMs)
}

func TestTraceHandlerGetNotFound(t *testing.T) {
	router, _ := newTraceRouter(t)

	w := get(t, router, "/api/projects/1/traces/ffffffffffffffffffffffffffffffff")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTraceHandlerList(t *testing.T) {
	router, aggregator := newTraceRouter(t)
	ctx := context.Background()
	at := time.Now().UTC()

	for i := 0; i < 3; i++ {
		traceID := fmt.Sprintf("%032d", i)
		if err := aggregator.Merge(ctx, 7, 1, traceID, 10, at); err != nil {
			t.Fatalf("预置链路失败: %v", err)
		}
	}
	// 其他项目的链路不应出现在列表里
	if err := aggregator.Merge(ctx, 7, 2, fmt.Sprintf("%032d", 99), 10, at); err != nil {
		t.Fatalf("预置链路失败: %v", err)
	}

	w := get(t, router, "/api/projects/1/traces")
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Pagination struct {
				Total int64 `json:"total"`
			} `json:"pagination"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("解析列表响应失败: %v", err)
	}
	assert.Equal(t, int64(3), resp.Data.Pagination.Total)
}
