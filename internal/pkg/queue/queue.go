// Package queue 提供进程内的固定 worker 池。
//
// worker 进程用它并发执行导入任务，归一化流程用 Map 并发翻译标题。
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Job 表示一个可执行的异步任务。
type Job func(ctx context.Context) error

// ErrorHandler 任务失败回调。
type ErrorHandler func(err error)

// Queue 带缓冲的任务通道加固定数量的 worker。
type Queue struct {
	logger       *slog.Logger
	workers      int
	jobs         chan Job
	errorHandler ErrorHandler

	wg     sync.WaitGroup
	closed atomic.Bool

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	panics    atomic.Int64
}

// Stats 队列统计快照。
type Stats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
	Dropped   int64
	Panics    int64
	Pending   int
}

// NewQueue 创建任务队列。
//
// 参数:
//
//	logger: 日志记录器
//	workers: worker 数量（至少为 1）
//	capacity: 通道容量（至少为 1）
func NewQueue(logger *slog.Logger, workers, capacity int) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		logger:  logger,
		workers: workers,
		jobs:    make(chan Job, capacity),
	}
}

// SetErrorHandler 设置失败回调，需在 Start 之前调用。
func (q *Queue) SetErrorHandler(handler ErrorHandler) {
	q.errorHandler = handler
}

// Start 启动 worker，直到 ctx 取消或 Shutdown。
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			q.run(ctx, job, id)
		}
	}
}

func (q *Queue) run(ctx context.Context, job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			q.panics.Add(1)
			q.logger.Error("job panic recovered",
				slog.Int("worker_id", workerID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := job(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Warn("job failed", slog.Int("worker_id", workerID), slog.String("error", err.Error()))
		if q.errorHandler != nil {
			q.errorHandler(err)
		}
		return
	}
	q.succeeded.Add(1)
}

// Enqueue 非阻塞入队，队列已满或已关闭时返回 false。
func (q *Queue) Enqueue(job Job) bool {
	if job == nil || q.closed.Load() {
		return false
	}
	select {
	case q.jobs <- job:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("queue full, drop job", slog.Int("capacity", cap(q.jobs)))
		return false
	}
}

// EnqueueBlocking 阻塞入队，直到成功或 ctx 结束。
func (q *Queue) EnqueueBlocking(ctx context.Context, job Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	if q.closed.Load() {
		return fmt.Errorf("queue is closed")
	}
	select {
	case q.jobs <- job:
		q.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown 拒绝新任务并等待 worker 处理完已入队的任务。
func (q *Queue) Shutdown() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.jobs)
		q.wg.Wait()
	}
}

// ShutdownWithTimeout 同 Shutdown，但最多等待 timeout。
func (q *Queue) ShutdownWithTimeout(timeout time.Duration) error {
	if !q.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("queue already closed")
	}
	close(q.jobs)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		q.logger.Error("queue shutdown timeout", slog.Duration("timeout", timeout))
		return fmt.Errorf("shutdown timeout after %s", timeout)
	}
}

// Stats 返回统计快照。
func (q *Queue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Succeeded: q.succeeded.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
		Panics:    q.panics.Load(),
		Pending:   len(q.jobs),
	}
}

// Map 以最多 workers 个 goroutine 并发处理 in，结果与输入一一对应。
//
// fn 的 panic 会被恢复并记录下标，对应位置保留零值。logger 可为 nil。
func Map[T, R any](ctx context.Context, logger *slog.Logger, workers int, in []T, fn func(ctx context.Context, v T) R) []R {
	out := make([]R, len(in))
	if len(in) == 0 {
		return out
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(in) {
		workers = len(in)
	}

	idx := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				func() {
					defer func() {
						if r := recover(); r != nil && logger != nil {
							logger.Error("map item panic recovered",
								slog.Int("index", i),
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					out[i] = fn(ctx, in[i])
				}()
			}
		}()
	}
	for i := range in {
		idx <- i
	}
	close(idx)
	wg.Wait()
	return out
}
