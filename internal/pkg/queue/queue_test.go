package queue

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_BasicFunctionality(t *testing.T) {
	q := NewQueue(discardLogger(), 3, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var completed atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			completed.Add(1)
			return nil
		})
		if !ok {
			t.Fatalf("enqueue %d failed", i)
		}
	}

	q.Shutdown()

	if completed.Load() != 5 {
		t.Errorf("expected 5 completed jobs, got %d", completed.Load())
	}
	stats := q.Stats()
	if stats.Enqueued != 5 || stats.Succeeded != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestQueue_ErrorHandler(t *testing.T) {
	q := NewQueue(discardLogger(), 2, 5)
	var errorCount atomic.Int32
	q.SetErrorHandler(func(err error) { errorCount.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	q.Enqueue(func(ctx context.Context) error { return nil })
	q.Enqueue(func(ctx context.Context) error { return errors.New("import failed") })
	q.Shutdown()

	if errorCount.Load() != 1 {
		t.Errorf("expected 1 error callback, got %d", errorCount.Load())
	}
	if s := q.Stats(); s.Failed != 1 || s.Succeeded != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestQueue_PanicRecovery(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)

	var after atomic.Bool
	q.Enqueue(func(ctx context.Context) error { panic("boom") })
	q.Enqueue(func(ctx context.Context) error {
		after.Store(true)
		return nil
	})
	q.Shutdown()

	if q.Stats().Panics != 1 {
		t.Errorf("expected 1 panic, got %d", q.Stats().Panics)
	}
	if !after.Load() {
		t.Error("worker should keep running after a panic")
	}
}

func TestQueue_FullAndClosed(t *testing.T) {
	q := NewQueue(discardLogger(), 1, 1)
	// 未启动 worker，第二个任务必然被丢弃
	if !q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("first enqueue should succeed")
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("second enqueue should be dropped")
	}
	if q.Stats().Dropped != 1 {
		t.Errorf("dropped = %d", q.Stats().Dropped)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.EnqueueBlocking(ctx, func(ctx context.Context) error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	q.Start(context.Background())
	if err := q.ShutdownWithTimeout(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if q.Enqueue(func(ctx context.Context) error { return nil }) {
		t.Fatal("enqueue after shutdown should fail")
	}
	if err := q.ShutdownWithTimeout(time.Second); err == nil {
		t.Fatal("second shutdown should report already closed")
	}
}

func TestMap_PreservesOrder(t *testing.T) {
	in := []int{5, 1, 4, 2, 3}
	out := Map(context.Background(), discardLogger(), 3, in, func(ctx context.Context, v int) int {
		time.Sleep(time.Duration(v) * time.Millisecond)
		return v * 10
	})
	want := []int{50, 10, 40, 20, 30}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestMap_RecoversPanicAndEmptyInput(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	out := Map(context.Background(), logger, 2, []string{"a", "panic", "c"}, func(ctx context.Context, v string) string {
		if v == "panic" {
			panic("bad")
		}
		return v + "!"
	})
	if out[0] != "a!" || out[1] != "" || out[2] != "c!" {
		t.Fatalf("unexpected output: %q", out)
	}
	logged := buf.String()
	if !strings.Contains(logged, "map item panic recovered") || !strings.Contains(logged, "index=1") || !strings.Contains(logged, "panic=bad") {
		t.Fatalf("panic not logged with index: %s", logged)
	}
	if got := Map(context.Background(), nil, 4, []int(nil), func(ctx context.Context, v int) int { return v }); len(got) != 0 {
		t.Fatalf("expected empty output, got %v", got)
	}
}
