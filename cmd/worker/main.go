package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/crawler"
	"github.com/Tchindavaldo/yuunna-backend/internal/fallback"
	"github.com/Tchindavaldo/yuunna-backend/internal/importer"
	"github.com/Tchindavaldo/yuunna-backend/internal/normalize"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/dedup"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/jobqueue"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/logger"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/notify"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/queue"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/ratelimit"
	"github.com/Tchindavaldo/yuunna-backend/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// main 是导入 worker 的入口函数。
//
// 它负责：
// 1. 加载配置并初始化日志
// 2. 连接 MySQL 与 Redis，组装抓取链与导入器
// 3. 启动 Redis 任务拉取循环、worker 池与 Metrics 服务
// 4. 优雅关闭
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger := logger.NewForEnv(cfg.App.Env, cfg.App.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	maxConcurrent := cfg.App.RateLimit * 30
	if cfg.App.RateLimit > 0 && float64(cfg.App.WorkerPoolSize) > maxConcurrent {
		appLogger.Warn("worker pool size is significantly higher than rate limit throughput capacity",
			slog.Int("worker_pool_size", cfg.App.WorkerPoolSize),
			slog.Float64("rate_limit", cfg.App.RateLimit),
			slog.Float64("throughput_capacity", maxConcurrent))
	}

	db, err := store.Open(cfg.MySQL.DSN)
	if err != nil {
		appLogger.Error("open mysql failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		appLogger.Error("ping redis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	jobs, err := jobqueue.New(rdb)
	if err != nil {
		appLogger.Error("init job queue failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metrics.InitMetrics(cfg.App.WorkerPoolSize)

	limiter := ratelimit.New(rdb, appLogger, cfg.App.RateLimit, int(cfg.App.RateBurst))
	chain := crawler.NewChain(
		crawler.NewService(cfg.Browser, limiter, appLogger),
		fallback.NewProvider(cfg.Fallback, appLogger),
		appLogger,
	)
	normalizer := normalize.NewNormalizer(normalize.NewTranslator(cfg.Translate, appLogger), cfg.App.WorkerPoolSize, appLogger)

	imp := importer.New(chain, normalizer, store.New(db), notify.NewRedisNotifier(rdb, appLogger), appLogger,
		importer.WithDeduper(dedup.NewDeduplicator(rdb, cfg.Import.DedupWindow)),
		importer.WithDigest(notify.NewEmailNotifier(&cfg.Email, appLogger), cfg.Import.DigestEmail),
	)

	// worker 池使用独立的 ctx，关闭时让进行中的导入跑完
	pool := queue.NewQueue(appLogger, cfg.App.WorkerPoolSize, cfg.App.QueueCapacity)
	pool.Start(context.Background())

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer func() {
			if r := recover(); r != nil {
				appLogger.Error("PANIC in import worker loop", slog.Any("panic", r))
				os.Exit(1)
			}
		}()
		w := importer.NewWorker(imp, jobs, pool, cfg.Import, appLogger)
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("import worker loop stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	metricsServer := &http.Server{
		Addr:              cfg.App.MetricsAddr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		appLogger.Info("worker metrics server started", slog.String("addr", cfg.App.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("metrics server stopped with error", slog.String("error", err.Error()))
		}
	}()

	<-ctx.Done()
	appLogger.Info("shutting down import worker...")

	// 1. 停止拉取新任务
	<-workerDone

	// 2. 等待池内任务完成
	if err := pool.ShutdownWithTimeout(2 * time.Minute); err != nil {
		appLogger.Error("worker pool shutdown error", slog.String("error", err.Error()))
	} else {
		appLogger.Info("worker pool shutdown completed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("metrics shutdown error", slog.String("error", err.Error()))
	}

	if err := rdb.Close(); err != nil {
		appLogger.Error("close redis failed", slog.String("error", err.Error()))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	appLogger.Info("import worker stopped gracefully")
}
