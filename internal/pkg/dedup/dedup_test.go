package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newDeduplicator(t *testing.T) (*Deduplicator, *miniredis.Miniredis) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		if err := rdb.Close(); err != nil {
			t.Fatalf("close redis: %v", err)
		}
	})
	return NewDeduplicator(rdb, time.Minute), s
}

func TestDeduplicator_IsDuplicate(t *testing.T) {
	d, _ := newDeduplicator(t)
	ctx := context.Background()

	dup, err := d.IsDuplicate(ctx, "https://item.taobao.com/item.htm?id=123&spm=a21n57")
	if err != nil {
		t.Fatalf("first dedup: %v", err)
	}
	if dup {
		t.Fatalf("expected first to be non-duplicate")
	}

	// 跟踪参数不同，仍然是同一件商品
	dup, err = d.IsDuplicate(ctx, "//item.taobao.com/item.htm?spm=zzz&id=123")
	if err != nil {
		t.Fatalf("second dedup: %v", err)
	}
	if !dup {
		t.Fatalf("expected second to be duplicate")
	}
}

func TestDeduplicator_DeleteAllowsRetry(t *testing.T) {
	d, _ := newDeduplicator(t)
	ctx := context.Background()
	link := "https://taobao.com/product/7"

	if dup, _ := d.IsDuplicate(ctx, link); dup {
		t.Fatal("expected fresh link")
	}
	if err := d.Delete(ctx, link); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if dup, _ := d.IsDuplicate(ctx, link); dup {
		t.Fatal("expected link to be accepted again after delete")
	}
}

func TestDeduplicator_WindowExpires(t *testing.T) {
	d, s := newDeduplicator(t)
	ctx := context.Background()
	link := "https://taobao.com/product/9"

	_, _ = d.IsDuplicate(ctx, link)
	s.FastForward(2 * time.Minute)

	dup, err := d.IsDuplicate(ctx, link)
	if err != nil {
		t.Fatalf("dedup: %v", err)
	}
	if dup {
		t.Fatal("expected entry to expire after the window")
	}
}

func TestDeduplicator_NilSafe(t *testing.T) {
	var d *Deduplicator
	dup, err := d.IsDuplicate(context.Background(), "https://x")
	if err != nil || dup {
		t.Fatalf("nil deduplicator: dup=%v err=%v", dup, err)
	}
}

func TestCanonicalLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://item.taobao.com/item.htm?id=42&spm=1", "https://item.taobao.com/item.htm?id=42"},
		{"//detail.tmall.com/item.htm?id=5", "https://detail.tmall.com/item.htm?id=5"},
		{"https://taobao.com/product/3?x=1#top", "https://taobao.com/product/3"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := CanonicalLink(tt.in); got != tt.want {
			t.Errorf("CanonicalLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
