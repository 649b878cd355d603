package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// 默认的 AuraSR 网关地址
const defaultAuraSRBaseURL = "https://fusion-api.oomol.com/v1/fal-aura-sr"

// Config 应用配置结构
type Config struct {
	// AuraSR 网关配置
	AuraSRBaseURL string
	// 凭证：静态 token 或 token 文件（文件优先，每次调用重新读取）
	AuraSRToken     string
	AuraSRTokenFile string
	// 单次 HTTP 请求超时时间（秒）
	AuraSRTimeoutSeconds int

	// 轮询默认值（工具调用未传参数时使用）
	PollMaxAttempts     int
	PollIntervalSeconds int

	// MCP 传输方式: stdio 或 http
	Transport     string
	ServerAddress string
	ServerPort    string

	// OSS 配置（结果图片转存）
	OSSEndpoint     string
	OSSRegion       string
	OSSAccessKey    string
	OSSSecretKey    string
	OSSBucket       string
	OSSPathStyle    bool
	ResultUploadOSS bool

	// 终态结果缓存（Redis），为空时不启用
	RedisURL              string
	ResultCacheTTLSeconds int

	// 日志配置
	LogLevel  string // 日志级别: debug, info, warn, error
	LogFormat string // 日志格式: json, text
	LogOutput string // 输出位置: stdout, stderr, file
	LogFile   string // 日志文件路径（当 LogOutput 为 file 时）
}

// LoadConfig 从 .env 文件和环境变量加载配置
func LoadConfig() (*Config, error) {
	// stdio 模式下 stdout 是协议通道，提示只能写到 stderr
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config := &Config{
		AuraSRBaseURL:        strings.TrimRight(getEnv("AURASR_BASE_URL", defaultAuraSRBaseURL), "/"),
		AuraSRToken:          getEnv("AURASR_TOKEN", ""),
		AuraSRTokenFile:      getEnv("AURASR_TOKEN_FILE", ""),
		AuraSRTimeoutSeconds: getEnvInt("AURASR_TIMEOUT_SECONDS", 30),
		PollMaxAttempts:      getEnvInt("POLL_MAX_ATTEMPTS", 120),
		PollIntervalSeconds:  getEnvInt("POLL_INTERVAL_SECONDS", 2),
		Transport:            strings.ToLower(getEnv("MCP_TRANSPORT", "stdio")),
		ServerAddress:        getEnv("SERVER_ADDRESS", "0.0.0.0"),
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		// OSS 配置
		OSSEndpoint:     getEnv("OSS_ENDPOINT", ""),
		OSSRegion:       getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey:    getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey:    getEnv("OSS_SECRET_KEY", ""),
		OSSBucket:       getEnv("OSS_BUCKET", ""),
		OSSPathStyle:    getEnvBool("OSS_PATH_STYLE", false),
		ResultUploadOSS: getEnvBool("RESULT_UPLOAD_OSS", false),
		// Redis
		RedisURL:              getEnv("REDIS_URL", ""),
		ResultCacheTTLSeconds: getEnvInt("RESULT_CACHE_TTL_SECONDS", 86400),
		// 日志配置
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		LogOutput: getEnv("LOG_OUTPUT", "stderr"),
		LogFile:   getEnv("LOG_FILE", ""),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	// 初始化日志系统
	logConfig := &LogConfig{
		Level:    config.LogLevel,
		Format:   config.LogFormat,
		Output:   config.LogOutput,
		FilePath: config.LogFile,
	}
	if err := InitLogger(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return config, nil
}

// validate 校验必需的配置项
func (c *Config) validate() error {
	if c.AuraSRBaseURL == "" {
		return fmt.Errorf("AURASR_BASE_URL must not be empty")
	}
	if c.AuraSRToken == "" && c.AuraSRTokenFile == "" {
		return fmt.Errorf("one of AURASR_TOKEN or AURASR_TOKEN_FILE is required")
	}
	if c.AuraSRTimeoutSeconds <= 0 {
		return fmt.Errorf("AURASR_TIMEOUT_SECONDS must be positive, got %d", c.AuraSRTimeoutSeconds)
	}
	if c.PollMaxAttempts <= 0 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be positive, got %d", c.PollMaxAttempts)
	}
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must not be negative, got %d", c.PollIntervalSeconds)
	}

	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unsupported MCP_TRANSPORT: %s", c.Transport)
	}

	if c.ResultUploadOSS && c.OSSBucket == "" {
		return fmt.Errorf("OSS_BUCKET is required when RESULT_UPLOAD_OSS is enabled")
	}
	return nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes" || value == "on"
}

// getEnvInt 获取整型环境变量
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

// GetServerAddr 返回完整的服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerAddress, c.ServerPort)
}
