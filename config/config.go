package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Message queue drivers
const (
	MQMemory   = "memory"
	MQRedis    = "redis"
	MQRocketMQ = "rocketmq"
)

// Config holds every runtime setting of the server and the CLI tools.
type Config struct {
	Environment     string
	Port            string
	MountPath       string
	ShutdownTimeout time.Duration

	DBDriver   string
	SQLitePath string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	MQDriver          string
	RedisAddr         string
	RedisPassword     string
	RocketMQNameSrv   string
	RocketMQGroupName string

	VoteRateLimit float64
	VoteRateBurst int

	CORSAllowOrigins []string

	LogLevel  string
	LogFormat string
}

// Load reads a .env file if one exists and then builds the Config from the
// environment. Values already present in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the Config from environment variables only.
func FromEnv() (Config, error) {
	cfg := Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Port:        getEnv("SERVER_PORT", "8090"),
		MountPath:   normalizeMountPath(getEnv("POLLS_MOUNT_PATH", "/polls")),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath: getEnv("SQLITE_PATH", "polls.db"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "polls"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "polls"),

		MQDriver:          strings.ToLower(getEnv("MQ_DRIVER", MQMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RocketMQNameSrv:   getEnv("ROCKETMQ_NAMESRV_ADDR", "localhost:9876"),
		RocketMQGroupName: getEnv("ROCKETMQ_GROUP", "polls"),

		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}

	if len(cfg.CORSAllowOrigins) == 0 {
		cfg.CORSAllowOrigins = []string{"*"}
	}

	var err error
	if cfg.ShutdownTimeout, err = time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "5s")); err != nil {
		return Config{}, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	if cfg.VoteRateLimit, err = strconv.ParseFloat(getEnv("VOTE_RATE_LIMIT", "5"), 64); err != nil {
		return Config{}, fmt.Errorf("invalid VOTE_RATE_LIMIT: %w", err)
	}
	if cfg.VoteRateBurst, err = strconv.Atoi(getEnv("VOTE_RATE_BURST", "10")); err != nil {
		return Config{}, fmt.Errorf("invalid VOTE_RATE_BURST: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.MQDriver {
	case MQMemory, MQRedis, MQRocketMQ:
	default:
		return fmt.Errorf("unsupported MQ_DRIVER %q", c.MQDriver)
	}
	if c.VoteRateLimit < 0 || c.VoteRateBurst < 0 {
		return errors.New("vote rate limit and burst must not be negative")
	}
	return nil
}

// IsDevelopment reports whether sample data and verbose SQL logging are wanted.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// MySQLDSN builds the go-sql-driver DSN from the DB_* settings.
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getEnv returns the environment value for key or defaultValue when unset.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeMountPath turns "polls/", "/polls" and "" into "/polls" and "".
func normalizeMountPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}
