package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置。来源是 config/<env>.yaml 加 APP_ 前缀的环境变量，
// 环境变量优先。各组件的默认值在对应的访问方法里兜底，
// 配置文件可以只写关心的项。
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	AI          AIConfig          `mapstructure:"ai"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig PostgreSQL 连接配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 是否自动迁移表结构
}

// GetDSN 拼接 GORM 的 postgres 连接串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// RedisConfig Redis 连接配置，同一份配置喂给探活客户端与 asynq
type RedisConfig struct {
	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	// 单节点模式配置
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// 哨兵模式配置
	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	// 集群模式配置
	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	// 通用配置
	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// Addr 返回单节点模式的连接地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// ObjectStoreConfig 对象存储配置（S3 兼容：AWS S3 / MinIO / Spaces）
type ObjectStoreConfig struct {
	Driver    string `mapstructure:"driver"` // s3, memory
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// 路径风格寻址（MinIO 需要开启）
	ForcePathStyle bool `mapstructure:"force_path_style"`
}

// AIConfig AI 模型配置
type AIConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	OrgID      string `mapstructure:"org_id"`
	Model      string `mapstructure:"model"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PipelineConfig 日志归档管道配置
type PipelineConfig struct {
	// 队列名称与优先级权重
	Queue string `mapstructure:"queue"`
	// 消息投递失败后的最大重试次数（之后进入死信归档）
	MaxRetry int `mapstructure:"max_retry"`
	// 单条消息处理超时（秒）
	TaskTimeout int `mapstructure:"task_timeout"`
	// Worker 并发数
	Concurrency int `mapstructure:"concurrency"`
	// Trace 合并乐观锁冲突重试次数
	TraceMergeAttempts int `mapstructure:"trace_merge_attempts"`
}

// QueueName 返回队列名称，默认 execlog
func (c *PipelineConfig) QueueName() string {
	if c.Queue == "" {
		return "execlog"
	}
	return c.Queue
}

// TaskTimeoutDuration 返回消息处理超时
func (c *PipelineConfig) TaskTimeoutDuration() time.Duration {
	if c.TaskTimeout <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.TaskTimeout) * time.Second
}

// MaxRetryCount 返回投递重试次数，默认 3
func (c *PipelineConfig) MaxRetryCount() int {
	if c.MaxRetry <= 0 {
		return 3
	}
	return c.MaxRetry
}

// MergeAttempts 返回乐观锁冲突重试次数，默认 3
func (c *PipelineConfig) MergeAttempts() int {
	if c.TraceMergeAttempts <= 0 {
		return 3
	}
	return c.TraceMergeAttempts
}

// WorkerConcurrency 返回 Worker 并发数，默认 10
func (c *PipelineConfig) WorkerConcurrency() int {
	if c.Concurrency <= 0 {
		return 10
	}
	return c.Concurrency
}

// Load 按环境名加载配置。
// configPath 非空时直接用该文件，否则在 config/ 下找 <env>.yaml，
// 兼容从仓库根或 cmd/ 子目录启动。
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(env)
		for _, dir := range []string{"./config", "../config", "../../config"} {
			v.AddConfigPath(dir)
		}
	}

	// APP_DATABASE_HOST 这样的环境变量覆盖 database.host
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return &cfg, nil
}
