package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/config"
	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/jobqueue"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/queue"
)

// JobSource 导入任务来源，jobqueue.Client 实现了它。
type JobSource interface {
	Pop(ctx context.Context, timeout time.Duration) (*model.ImportJob, error)
	Ack(ctx context.Context, job *model.ImportJob) error
	RescueStuck(ctx context.Context, timeout time.Duration) (int, error)
}

// Runner 执行单个导入任务。
type Runner interface {
	Run(ctx context.Context, job *model.ImportJob) (Report, error)
}

// Worker 从 Redis 拉取导入任务并交给内存 worker 池执行。
type Worker struct {
	runner       Runner
	jobs         JobSource
	pool         *queue.Queue
	popTimeout   time.Duration
	stuckTimeout time.Duration
	logger       *slog.Logger
}

// NewWorker 创建导入 worker。
//
// 参数:
//
//	runner: 任务执行器，通常是 *Importer
//	jobs: 任务来源
//	pool: 已启动的 worker 池
//	cfg: 导入配置（拉取超时、卡住判定时间）
//	logger: 日志记录器
func NewWorker(runner Runner, jobs JobSource, pool *queue.Queue, cfg config.ImportConfig, logger *slog.Logger) *Worker {
	popTimeout := cfg.PopTimeout
	if popTimeout <= 0 {
		popTimeout = 5 * time.Second
	}
	return &Worker{
		runner:       runner,
		jobs:         jobs,
		pool:         pool,
		popTimeout:   popTimeout,
		stuckTimeout: cfg.StuckTimeout,
		logger:       logger,
	}
}

// Run 阻塞拉取任务直到 ctx 结束，返回 ctx 的错误。
//
// 池满时阻塞在入队上，不再继续拉取 Redis。
func (w *Worker) Run(ctx context.Context) error {
	if w.stuckTimeout > 0 {
		go w.rescueLoop(ctx)
	}
	w.logger.Info("import worker started", slog.Duration("pop_timeout", w.popTimeout))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := w.jobs.Pop(ctx, w.popTimeout)
		if err != nil {
			if errors.Is(err, jobqueue.ErrNoJob) {
				continue
			}
			if ctx.Err() != nil {
				w.logger.Info("import worker stopped")
				return ctx.Err()
			}
			w.logger.Error("pop import job failed", slog.String("error", err.Error()))
			if !sleepCtx(ctx, 200*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}

		if err := w.pool.EnqueueBlocking(ctx, w.task(job)); err != nil {
			// 未执行的任务留在 processing 列表，由 RescueStuck 放回
			w.logger.Warn("enqueue import job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
			return err
		}
	}
}

// task 包装一次导入：无论成功与否都 Ack，失败只记日志。
func (w *Worker) task(job *model.ImportJob) queue.Job {
	return func(ctx context.Context) error {
		start := time.Now()
		rep, err := w.runner.Run(ctx, job)

		if ackErr := w.jobs.Ack(context.WithoutCancel(ctx), job); ackErr != nil {
			w.logger.Error("ack import job failed", slog.String("job_id", job.ID), slog.String("error", ackErr.Error()))
		}
		if err != nil {
			w.logger.Warn("import job failed",
				slog.String("job_id", job.ID),
				slog.String("keyword", job.Keyword),
				slog.Int("saved", rep.Saved),
				slog.String("error", err.Error()))
			return err
		}
		w.logger.Info("import job done",
			slog.String("job_id", job.ID),
			slog.Int("saved", rep.Saved),
			slog.Duration("duration", time.Since(start)))
		return nil
	}
}

func (w *Worker) rescueLoop(ctx context.Context) {
	interval := w.stuckTimeout / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.jobs.RescueStuck(ctx, w.stuckTimeout)
			if err != nil {
				w.logger.Warn("rescue stuck jobs failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				w.logger.Warn("rescued stuck import jobs", slog.Int("count", n))
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
