package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// ProviderConfig 定义上游临时邮箱服务的访问配置
type ProviderConfig struct {
	BaseURL    string        // 上游 API 基础地址
	APIKey     string        // 上游 API 密钥（必填）
	APIHost    string        // 上游 API Host 请求头（必填）
	Timeout    time.Duration // 单次请求超时，默认 15s
	MaxRetries int           // 瞬时故障的最大重试次数，默认 2
	RetryDelay time.Duration // 重试间隔基准，默认 500ms
}

// PollConfig 定义收件箱轮询配置
type PollConfig struct {
	Interval time.Duration // 轮询间隔，默认 10s
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，为空时使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 配额计数服务配置
type RedisConfig struct {
	Enabled  bool   // 是否启用 Redis 配额计数
	Address  string // Redis 服务地址，格式 "host:port"，默认 "localhost:6379"
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// AuthConfig 定义外部认证服务签发令牌的校验配置
type AuthConfig struct {
	JWTSecret string // 令牌签名密钥，必须至少 32 字符
	Issuer    string // 期望的签发者标识，留空表示不校验
}

// RateLimitConfig 定义面向上游代理接口的限流配置
type RateLimitConfig struct {
	RequestsPerSecond float64 // 单个 IP 每秒允许的请求数，默认 5
	Burst             int     // 突发容量，默认 10
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Poll      PollConfig
	CORS      CORSConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TMPORTAL_
// 例如: TMPORTAL_PROVIDER_API_KEY, TMPORTAL_AUTH_JWT_SECRET
//
// 上游 API 密钥与认证密钥缺失属于启动致命错误：原始部署只打印
// 一条 console 错误然后带着不可用的客户端继续运行，这里改为直接失败。
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("tmportal")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("provider.base_url", "https://sonjj.p.rapidapi.com/v1/temp_email")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.api_host", "sonjj.p.rapidapi.com")
	viper.SetDefault("provider.timeout", "15s")
	viper.SetDefault("provider.max_retries", 2)
	viper.SetDefault("provider.retry_delay", "500ms")
	viper.SetDefault("poll.interval", "10s")
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.issuer", "")
	viper.SetDefault("ratelimit.requests_per_second", 5.0)
	viper.SetDefault("ratelimit.burst", 10)

	apiKey := viper.GetString("provider.api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("provider API key is required: set TMPORTAL_PROVIDER_API_KEY")
	}

	apiHost := viper.GetString("provider.api_host")
	if apiHost == "" {
		return nil, fmt.Errorf("provider API host is required: set TMPORTAL_PROVIDER_API_HOST")
	}

	jwtSecret := viper.GetString("auth.jwt_secret")
	if jwtSecret == "" {
		return nil, fmt.Errorf("auth JWT secret is required: set TMPORTAL_AUTH_JWT_SECRET")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("auth JWT secret must be at least 32 characters long")
	}

	providerTimeout, err := time.ParseDuration(viper.GetString("provider.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.timeout: %w", err)
	}

	retryDelay, err := time.ParseDuration(viper.GetString("provider.retry_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid provider.retry_delay: %w", err)
	}

	pollInterval, err := time.ParseDuration(viper.GetString("poll.interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid poll.interval: %w", err)
	}
	if pollInterval < time.Second {
		return nil, fmt.Errorf("poll.interval must be at least 1s, got %s", pollInterval)
	}

	maxRetries := viper.GetInt("provider.max_retries")
	if maxRetries < 0 {
		maxRetries = 0
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	rps := viper.GetFloat64("ratelimit.requests_per_second")
	if rps <= 0 {
		rps = 5.0
	}
	burst := viper.GetInt("ratelimit.burst")
	if burst <= 0 {
		burst = 10
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Provider: ProviderConfig{
			BaseURL:    strings.TrimRight(viper.GetString("provider.base_url"), "/"),
			APIKey:     apiKey,
			APIHost:    apiHost,
			Timeout:    providerTimeout,
			MaxRetries: maxRetries,
			RetryDelay: retryDelay,
		},
		Poll: PollConfig{
			Interval: pollInterval,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
			Issuer:    viper.GetString("auth.issuer"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: rps,
			Burst:             burst,
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默跳过；已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
