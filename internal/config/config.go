package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	MySQLDSN       string
	RedisAddr      string
	RedisPoolSize  int
	WorkerCount    int
	PollInterval   time.Duration
	BatchSize      int
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	BackoffCap     time.Duration
	LockTTL        time.Duration
	LogLevel       string
}

func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		MySQLDSN:       getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/procureflow?parseTime=true"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:  getEnvInt("REDIS_POOL_SIZE", 100),
		WorkerCount:    getEnvInt("WORKER_COUNT", 4),
		PollInterval:   getEnvDuration("JOB_POLL_INTERVAL", 2*time.Second),
		BatchSize:      getEnvInt("JOB_BATCH_SIZE", 50),
		AttemptTimeout: getEnvDuration("JOB_ATTEMPT_TIMEOUT", 30*time.Second),
		MaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", 5),
		BackoffBase:    getEnvDuration("JOB_BACKOFF_BASE", 2*time.Second),
		BackoffCap:     getEnvDuration("JOB_BACKOFF_CAP", 5*time.Minute),
		LockTTL:        getEnvDuration("JOB_LOCK_TTL", 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}

	if cfg.MaxAttempts < 1 {
		log.Fatal("[FATAL] JOB_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.WorkerCount < 1 {
		log.Fatal("[FATAL] WORKER_COUNT must be at least 1")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not an integer, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] %s=%q is not a duration, using default %s", key, v, def)
		return def
	}
	return d
}
