package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and CLI read from the environment
type Config struct {
	Port    string
	GinMode string

	DatabaseURL string
	DataPath    string

	JWTSecret       string
	APIMasterSecret string
	AdminUsername   string
	AdminPassword   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	MaxRangeDays int

	Log struct {
		Level  string
		Format string
	}
}

// LoadEnvFile loads the first .env found in the working directory or its parents
func LoadEnvFile() {
	envPaths := []string{".env", "../.env", "../../.env"}
	for _, p := range envPaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			break
		}
	}
}

// Load reads configuration from the environment after loading any .env file
func Load() *Config {
	LoadEnvFile()
	return FromEnv()
}

// FromEnv reads configuration from the process environment only
func FromEnv() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		GinMode:         os.Getenv("GIN_MODE"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		DataPath:        getEnv("DATA_PATH", "census.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		APIMasterSecret: os.Getenv("API_MASTER_SECRET"),
		AdminUsername:   getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:   getEnv("ADMIN_PASSWORD", "admin123"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CacheTTL:        time.Duration(getEnvInt("CACHE_TTL_SECONDS", 60)) * time.Second,
		MaxRangeDays:    getEnvInt("MAX_RANGE_DAYS", 366),
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")
	return cfg
}

// Offline returns a copy for one-shot CLI reads: no range bound, no view cache
func (c *Config) Offline() *Config {
	out := *c
	out.MaxRangeDays = 0
	out.RedisAddr = ""
	return &out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v >= 0 {
		return v
	}
	return defaultValue
}
