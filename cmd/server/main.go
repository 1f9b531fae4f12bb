package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lt0911/procure-flow/internal/adapter/notify"
	"github.com/lt0911/procure-flow/internal/adapter/storage"
	"github.com/lt0911/procure-flow/internal/config"
	"github.com/lt0911/procure-flow/internal/core/service"
)

func main() {
	cfg := config.Load()

	logg := logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logg.SetLevel(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		logg.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logg.Fatalf("failed to ping mysql: %v", err)
	}
	logg.Info("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logg.Fatalf("failed to connect redis: %v", err)
	}
	logg.Info("connected to redis")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	locker := storage.NewRedisLocker(rdb)
	notifier := notify.NewLogNotifier(logg)

	ledger := service.NewStockLedger(mysqlAdapter, redisAdapter, notifier, logg)
	executor := service.NewJobExecutor(mysqlAdapter, redisAdapter, locker, ledger, notifier, logg, service.ExecutorConfig{
		MaxAttempts:    cfg.MaxAttempts,
		AttemptTimeout: cfg.AttemptTimeout,
		BackoffBase:    cfg.BackoffBase,
		BackoffCap:     cfg.BackoffCap,
		LockTTL:        cfg.LockTTL,
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.BatchSize,
	})

	// Worker pool draining due fulfillment jobs. The per-job lock keeps
	// overlapping pollers safe.
	var wg sync.WaitGroup
	for i := 0; i < cfg.WorkerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			logg.WithField("worker", id).Info("worker started")
			executor.Run(ctx)
		}(i)
	}
	logg.Infof("started %d workers", cfg.WorkerCount)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("shutting down...")
	cancel()
	wg.Wait()
	logg.Info("workers stopped")

	rdb.Close()
	db.Close()
	logg.Info("connections closed")
}
