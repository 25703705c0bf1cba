package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseDSN string
	RedisAddr   string // optional; empty disables the cache
	Addr        string
	BaseURL     string
	AdminToken  string

	CodeLength       int
	GenerateAttempts int

	SweepGrace     time.Duration
	SweepSchedule  string // cron spec
	EventRetention time.Duration

	ClickQueueSize     int
	ClickWorkers       int
	ClickBatchSize     int
	ClickFlushInterval time.Duration

	RateLimitPerSec float64
	RateLimitBurst  float64
}

func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN environment variable is required")
	}

	addr := getEnv("ADDR", ":8080")

	return &Config{
		DatabaseDSN: dsn,
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		Addr:        addr,
		BaseURL:     getEnv("BASE_URL", "http://localhost"+addr),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),

		CodeLength:       getInt("CODE_LENGTH", 6),
		GenerateAttempts: getInt("GENERATE_ATTEMPTS", 5),

		SweepGrace:     getDuration("SWEEP_GRACE", 24*time.Hour),
		SweepSchedule:  getEnv("SWEEP_SCHEDULE", "@hourly"),
		EventRetention: getDuration("EVENT_RETENTION", 90*24*time.Hour),

		ClickQueueSize:     getInt("CLICK_QUEUE_SIZE", 10000),
		ClickWorkers:       getInt("CLICK_WORKERS", 4),
		ClickBatchSize:     getInt("CLICK_BATCH_SIZE", 100),
		ClickFlushInterval: getDuration("CLICK_FLUSH_INTERVAL", 5*time.Second),

		RateLimitPerSec: getFloat("RATE_LIMIT_PER_SEC", 10),
		RateLimitBurst:  getFloat("RATE_LIMIT_BURST", 50),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
