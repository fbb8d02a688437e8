package metrics

import (
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const collectInterval = 15 * time.Second

// SystemCollector 周期采集连接池与 Go 运行时指标。
// db 传 nil 时只采运行时部分。
type SystemCollector struct {
	db     *sql.DB
	stopCh chan struct{}
}

// NewSystemCollector 创建采集器并立即开始采集
func NewSystemCollector(db *sql.DB) *SystemCollector {
	c := &SystemCollector{
		db:     db,
		stopCh: make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *SystemCollector) run() {
	ticker := time.NewTicker(collectInterval)
	defer ticker.Stop()

	// 启动立即采一轮，不用等第一个周期
	c.collectOnce()
	for {
		select {
		case <-ticker.C:
			c.collectOnce()
		case <-c.stopCh:
			return
		}
	}
}

// Stop 停止采集协程
func (c *SystemCollector) Stop() {
	close(c.stopCh)
}

func (c *SystemCollector) collectOnce() {
	if c.db != nil {
		pool := c.db.Stats()
		DBConnections.WithLabelValues("open").Set(float64(pool.OpenConnections))
		DBConnections.WithLabelValues("in_use").Set(float64(pool.InUse))
		DBConnections.WithLabelValues("idle").Set(float64(pool.Idle))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goHeapAlloc.Set(float64(m.Alloc))
	goAllocTotal.Set(float64(m.TotalAlloc))
	goSysBytes.Set(float64(m.Sys))
	goGoroutines.Set(float64(runtime.NumGoroutine()))
	goGCCount.Set(float64(m.NumGC))
}

// Go 运行时指标
var (
	goHeapAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompthub_go_memory_usage_bytes",
			Help: "当前 Go 内存使用量",
		},
	)

	goAllocTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompthub_go_memory_total_bytes",
			Help: "累计 Go 内存分配量",
		},
	)

	goSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompthub_go_memory_sys_bytes",
			Help: "Go 从系统获取的内存",
		},
	)

	goGoroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompthub_go_goroutines",
			Help: "当前 Goroutine 数量",
		},
	)

	goGCCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prompthub_go_gc_count",
			Help: "GC 执行总次数",
		},
	)
)

// RecordExecution 记录一次提示词执行的指标。包住执行闭包调用，
// 成功与失败都会计数。
func RecordExecution(model string, tenantID int64, fn func() error) error {
	start := time.Now()

	err := fn()

	duration := time.Since(start).Seconds()
	ExecutionDuration.WithLabelValues(model).Observe(duration)

	status := "success"
	if err != nil {
		status = "failed"
	}
	ExecutionsTotal.WithLabelValues(model, status, strconv.FormatInt(tenantID, 10)).Inc()

	return err
}

// RecordExecutionTokens 记录一次执行消耗的 Token 数量
func RecordExecutionTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		ExecutionTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		ExecutionTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}
