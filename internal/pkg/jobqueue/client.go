// Package jobqueue 是导入任务的 Redis 可靠队列。
//
// API 进程 Push，worker 进程 Pop；任务被取出后放进 processing 列表，
// 处理完成调用 Ack，超时未 Ack 的任务由 RescueStuck 重新放回队列。
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"
	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	KeyJobQueue      = "taobao:import:jobs"
	KeyJobProcessing = "taobao:import:jobs:processing"
	KeyJobPendingSet = "taobao:import:jobs:pending" // 去重集合（关键词 + 用户）
	KeyJobStarted    = "taobao:import:jobs:started" // job_id -> 开始处理的 unix 时间
)

var (
	ErrNoJob     = errors.New("no import job available")
	ErrJobExists = errors.New("import job already queued")
)

// Client 封装导入队列的 Redis 操作。
type Client struct {
	rdb *redis.Client
	now func() time.Time
}

// New 基于已有的 redis.Client 创建队列客户端。
func New(rdb *redis.Client) (*Client, error) {
	if rdb == nil {
		return nil, errors.New("redis client is nil")
	}
	return &Client{rdb: rdb, now: time.Now}, nil
}

// pushScript 原子执行 SADD + LPUSH。
// KEYS[1] = pending set, KEYS[2] = job queue
// ARGV[1] = 去重键, ARGV[2] = job JSON
var pushScript = redis.NewScript(`
	if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
		return 0
	end
	redis.call('LPUSH', KEYS[2], ARGV[2])
	return 1
`)

// Push 入队一个导入任务。
//
// 相同关键词与用户的任务在被 Ack 之前只会存在一份，重复推送返回 ErrJobExists。
// 任务 ID 与创建时间为空时会自动填充。
func (c *Client) Push(ctx context.Context, job *model.ImportJob) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if strings.TrimSpace(job.Keyword) == "" {
		return errors.New("job keyword is empty")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = c.now()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	added, err := pushScript.Run(ctx, c.rdb, []string{KeyJobPendingSet, KeyJobQueue}, DedupKey(job), string(data)).Int()
	if err != nil {
		return fmt.Errorf("push job script: %w", err)
	}
	if added == 0 {
		metrics.ImportJobsTotal.WithLabelValues("skipped").Inc()
		return ErrJobExists
	}
	metrics.ImportJobsTotal.WithLabelValues("queued").Inc()
	return nil
}

// Pop 阻塞等待一个任务，超时返回 ErrNoJob。
func (c *Client) Pop(ctx context.Context, timeout time.Duration) (*model.ImportJob, error) {
	raw, err := c.rdb.BRPopLPush(ctx, KeyJobQueue, KeyJobProcessing, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("brpoplpush job: %w", err)
	}

	var job model.ImportJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// 坏数据直接丢弃，避免一直卡在 processing 列表里
		c.rdb.LRem(ctx, KeyJobProcessing, 1, raw)
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	c.rdb.HSet(ctx, KeyJobStarted, job.ID, c.now().Unix())
	return &job, nil
}

// ackScript 从 processing 列表删除匹配 job_id 的任务并清理去重与开始时间记录。
// KEYS[1] = processing, KEYS[2] = pending set, KEYS[3] = started hash
// ARGV[1] = job_id, ARGV[2] = 去重键
var ackScript = redis.NewScript(`
	local needle = '"id":"' .. ARGV[1] .. '"'
	local jobs = redis.call('LRANGE', KEYS[1], 0, -1)
	local removed = 0
	for _, raw in ipairs(jobs) do
		if string.find(raw, needle, 1, true) then
			redis.call('LREM', KEYS[1], 1, raw)
			removed = 1
			break
		end
	end
	redis.call('SREM', KEYS[2], ARGV[2])
	redis.call('HDEL', KEYS[3], ARGV[1])
	return removed
`)

// Ack 标记任务处理完成，同关键词的任务此后可以再次入队。
func (c *Client) Ack(ctx context.Context, job *model.ImportJob) error {
	if job == nil || job.ID == "" {
		return errors.New("job id is empty")
	}
	_, err := ackScript.Run(ctx, c.rdb,
		[]string{KeyJobProcessing, KeyJobPendingSet, KeyJobStarted},
		job.ID, DedupKey(job),
	).Int()
	if err != nil {
		return fmt.Errorf("ack job script: %w", err)
	}
	return nil
}

// rescueScript 只有 LREM 成功时才重新入队，多个进程同时 rescue 也不会重复。
// KEYS[1] = processing, KEYS[2] = job queue, KEYS[3] = started hash
// ARGV[1] = job JSON, ARGV[2] = job_id
var rescueScript = redis.NewScript(`
	if redis.call('LREM', KEYS[1], 1, ARGV[1]) > 0 then
		redis.call('LPUSH', KEYS[2], ARGV[1])
		redis.call('HDEL', KEYS[3], ARGV[2])
		return 1
	end
	return 0
`)

// RescueStuck 把处理时间超过 timeout 的任务放回队列，返回放回的数量。
func (c *Client) RescueStuck(ctx context.Context, timeout time.Duration) (int, error) {
	started, err := c.rdb.HGetAll(ctx, KeyJobStarted).Result()
	if err != nil {
		return 0, fmt.Errorf("hgetall started: %w", err)
	}
	if len(started) == 0 {
		return 0, nil
	}

	raws, err := c.rdb.LRange(ctx, KeyJobProcessing, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("lrange processing: %w", err)
	}

	now := c.now().Unix()
	threshold := int64(timeout.Seconds())
	rescued := 0
	for _, raw := range raws {
		var job model.ImportJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ID == "" {
			continue
		}
		ts, ok := started[job.ID]
		if !ok {
			continue
		}
		startedAt, err := strconv.ParseInt(ts, 10, 64)
		if err != nil || now-startedAt <= threshold {
			continue
		}
		n, err := rescueScript.Run(ctx, c.rdb, []string{KeyJobProcessing, KeyJobQueue, KeyJobStarted}, raw, job.ID).Int()
		if err == nil && n == 1 {
			rescued++
		}
	}
	if rescued > 0 {
		metrics.ImportJobsTotal.WithLabelValues("rescued").Add(float64(rescued))
	}
	return rescued, nil
}

// Depth 返回待处理的任务数，并更新队列深度指标。
func (c *Client) Depth(ctx context.Context) (int64, error) {
	n, err := c.rdb.LLen(ctx, KeyJobQueue).Result()
	if err != nil {
		return 0, fmt.Errorf("llen jobs: %w", err)
	}
	metrics.JobQueueDepth.Set(float64(n))
	return n, nil
}

// DedupKey 返回任务的去重键：小写关键词加用户 ID。
func DedupKey(job *model.ImportJob) string {
	return strings.ToLower(strings.TrimSpace(job.Keyword)) + "|" + job.UserID
}
