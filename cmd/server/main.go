package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"prompthub/api"
	"prompthub/internal/config"
	"prompthub/internal/execlog"
	"prompthub/internal/infra"
	"prompthub/internal/logger"
	"prompthub/internal/project"
	"prompthub/internal/search"
	"prompthub/internal/traces"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 0. 先加载 .env，让 APP_* 变量在读配置前就位
	loadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, "")
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("PromptHub 启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 3. 初始化数据库
	db, err := infra.InitDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer infra.CloseDatabase()

	// 4. 自动迁移（可用配置关掉，生产环境走独立的迁移流程）
	if cfg.Database.AutoMigrate {
		if err := runMigrations(db); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	} else {
		logger.Info("跳过自动迁移（配置已禁用）")
	}

	// 5. 设置 Gin 模式
	gin.SetMode(cfg.Server.Mode)

	// 6. 组装路由与应用容器（含队列客户端、消费端）
	router, container := api.SetupRouter(db, cfg)

	// 7. HTTP 服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 8. API 与队列消费端各占一个 goroutine
	go func() {
		logger.Info("HTTP 服务器监听", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	go func() {
		if err := container.WorkerServer.Run(); err != nil {
			logger.Fatal("队列消费端启动失败", zap.Error(err))
		}
	}()

	// 9. 等待信号，按依赖逆序收尾
	gracefulShutdown(srv, container)
}

// loadDotEnv 从工作目录逐级向上、再从可执行文件所在目录查找 .env。
// 找不到不算错误，容器部署通常直接注入环境变量。
func loadDotEnv() {
	var starts []string
	if wd, err := os.Getwd(); err == nil {
		starts = append(starts, wd)
	}
	if exe, err := os.Executable(); err == nil {
		starts = append(starts, filepath.Dir(exe))
	}

	for _, start := range starts {
		dir := filepath.Clean(start)
		for depth := 0; depth < 6; depth++ {
			path := filepath.Join(dir, ".env")
			if _, err := os.Stat(path); err == nil {
				if err := godotenv.Load(path); err != nil {
					fmt.Printf("加载 %s 失败: %v\n", path, err)
					return
				}
				fmt.Printf("已加载环境变量文件: %s\n", path)
				return
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	fmt.Println("未找到 .env 文件，仅使用系统环境变量和 config/* 配置")
}

// runMigrations 建核心表。
// 执行日志与检索索引行都是只插入的表，迁移只负责建表和补索引。
func runMigrations(db *gorm.DB) error {
	logger.Info("执行核心表自动迁移...")

	if err := db.AutoMigrate(
		&project.Project{},
		&project.Prompt{},
		&project.PromptVersion{},
		&execlog.ExecutionLog{},
		&search.SearchIndexEntry{},
		&traces.Trace{},
	); err != nil {
		return fmt.Errorf("迁移核心表失败: %w", err)
	}

	logger.Info("核心表迁移完成")
	return nil
}

// gracefulShutdown 阻塞等待 SIGINT/SIGTERM，然后按序关闭：
// 先停 HTTP 入口，再停队列消费端（等在途收尾消息处理完），
// 最后释放队列客户端、Redis 与数据库连接。
func gracefulShutdown(srv *http.Server, container *api.AppContainer) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("收到退出信号，开始关闭...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务器关闭异常", zap.Error(err))
	}

	container.WorkerServer.Shutdown()
	container.Close()

	if err := infra.CloseDatabase(); err != nil {
		logger.Error("数据库关闭异常", zap.Error(err))
	}

	logger.Info("服务已安全退出")
}
