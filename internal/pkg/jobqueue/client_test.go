package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) (*Client, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := New(rdb)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, rdb
}

func TestClient_PushPopAck(t *testing.T) {
	c, rdb := newClient(t)
	ctx := context.Background()

	job := &model.ImportJob{Keyword: "Montre", Limit: 5, UserID: "u1"}
	if err := c.Push(ctx, job); err != nil {
		t.Fatalf("push: %v", err)
	}
	if job.ID == "" || job.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at to be filled: %+v", job)
	}

	depth, err := c.Depth(ctx)
	if err != nil || depth != 1 {
		t.Fatalf("depth = %d, err = %v", depth, err)
	}

	popped, err := c.Pop(ctx, time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if popped.ID != job.ID || popped.Keyword != "Montre" || popped.Limit != 5 {
		t.Fatalf("popped mismatch: %+v", popped)
	}
	if n := rdb.LLen(ctx, KeyJobProcessing).Val(); n != 1 {
		t.Fatalf("processing len = %d, want 1", n)
	}

	if err := c.Ack(ctx, popped); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if n := rdb.LLen(ctx, KeyJobProcessing).Val(); n != 0 {
		t.Fatalf("processing len after ack = %d", n)
	}
	if rdb.SCard(ctx, KeyJobPendingSet).Val() != 0 {
		t.Fatal("pending set should be empty after ack")
	}
	if rdb.HLen(ctx, KeyJobStarted).Val() != 0 {
		t.Fatal("started hash should be empty after ack")
	}
}

func TestClient_PushDeduplicatesByKeywordAndUser(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()

	if err := c.Push(ctx, &model.ImportJob{Keyword: "montre", UserID: "u1"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	err := c.Push(ctx, &model.ImportJob{Keyword: "  MONTRE ", UserID: "u1"})
	if !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
	// 不同用户不算重复
	if err := c.Push(ctx, &model.ImportJob{Keyword: "montre", UserID: "u2"}); err != nil {
		t.Fatalf("push other user: %v", err)
	}
	if depth, _ := c.Depth(ctx); depth != 2 {
		t.Fatalf("depth = %d, want 2", depth)
	}
}

func TestClient_PushRejectsEmptyKeyword(t *testing.T) {
	c, _ := newClient(t)
	if err := c.Push(context.Background(), &model.ImportJob{Keyword: "   "}); err == nil {
		t.Fatal("expected error for empty keyword")
	}
}

func TestClient_PopTimeout(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.Pop(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrNoJob) {
		t.Fatalf("expected ErrNoJob, got %v", err)
	}
}

func TestClient_RescueStuck(t *testing.T) {
	c, rdb := newClient(t)
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Push(ctx, &model.ImportJob{Keyword: "sac"}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if _, err := c.Pop(ctx, time.Second); err != nil {
		t.Fatalf("pop: %v", err)
	}

	// 未超时不应被放回
	n, err := c.RescueStuck(ctx, time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("early rescue = %d, err = %v", n, err)
	}

	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	n, err = c.RescueStuck(ctx, time.Minute)
	if err != nil {
		t.Fatalf("rescue: %v", err)
	}
	if n != 1 {
		t.Fatalf("rescued = %d, want 1", n)
	}
	if rdb.LLen(ctx, KeyJobQueue).Val() != 1 || rdb.LLen(ctx, KeyJobProcessing).Val() != 0 {
		t.Fatal("job should be back in the main queue")
	}
}

func TestNew_NilRedis(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil redis")
	}
}
