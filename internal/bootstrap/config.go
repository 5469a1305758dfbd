package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config 汇总进程的全部配置，来自环境变量 (可选 .env 文件)。
type Config struct {
	AppEnv     string
	ServerPort string
	LogLevel   string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// KeyPrefix 所有 Redis key 的命名空间前缀
	KeyPrefix string

	JWTSecret  string
	JWTExpiry  time.Duration
	SessionTTL time.Duration

	// 每条 WebSocket 连接的发送配额
	RateLimitPoints   int
	RateLimitWindow   time.Duration
	RateLimitFailOpen bool

	// HTTP 入口按 IP 的粗粒度限流
	HTTPRateLimit       int
	HTTPRateLimitWindow time.Duration

	// CORSAllowedOrigin 允许跨域访问的前端来源
	CORSAllowedOrigin string
}

// LoadConfig 读取 .env (如果存在) 与环境变量。
// JWT_SECRET 缺失是致命错误：用默认密钥签发令牌等于没有鉴权。
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBName:     getEnv("DB_NAME", "convo"),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		KeyPrefix:     getEnv("REDIS_KEY_PREFIX", "convo:"),

		JWTSecret:  secret,
		JWTExpiry:  time.Duration(getEnvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		SessionTTL: time.Duration(getEnvInt("SESSION_TTL_SECONDS", 3600)) * time.Second,

		RateLimitPoints:   getEnvInt("RATE_LIMIT_POINTS", 5),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 10)) * time.Second,
		RateLimitFailOpen: getEnvBool("RATE_LIMIT_FAIL_OPEN", false),

		HTTPRateLimit:       getEnvInt("HTTP_RATE_LIMIT", 100),
		HTTPRateLimitWindow: time.Duration(getEnvInt("HTTP_RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid integer %q, using default %d", value, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid boolean %q, using default %v", value, fallback)
		return fallback
	}
	return b
}
