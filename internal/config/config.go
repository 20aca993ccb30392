package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the process configuration, read from environment variables
// after LoadDotEnv.
type Config struct {
	Env  string
	Port int

	Database DatabaseConfig
	Redis    RedisConfig

	JWTSecret string
	JWTExpiry time.Duration

	AutoMigrate     bool
	CleanupInterval time.Duration
	CleanupLockTTL  time.Duration

	TierPolicyPath string
	DefaultTier    string
}

// DatabaseConfig MySQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int
}

// GetDSN builds the MySQL DSN
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// RedisConfig Redis connection settings. Empty Host disables redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnvInt("PORT", 8080),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 3306),
			User:            getEnv("DB_USER", "stashd"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "stashd"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTExpiry:       getEnvDuration("JWT_EXPIRY", 24*time.Hour),
		AutoMigrate:     getEnvBool("AUTO_MIGRATE", true),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 6*time.Hour),
		CleanupLockTTL:  getEnvDuration("CLEANUP_LOCK_TTL", 30*time.Minute),
		TierPolicyPath:  getEnv("TIER_POLICY_PATH", "configs/tiers.yaml"),
		DefaultTier:     getEnv("DEFAULT_TIER", "free"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
