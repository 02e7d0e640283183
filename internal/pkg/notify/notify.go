// Package notify 负责把导入结果推送给前端与运营。
//
// 实时事件通过 Redis 发布（Pub/Sub 即时推送 + Stream 留存最近事件），
// 由 socket 网关转发给对应房间；导入汇总可以额外发邮件。
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Tchindavaldo/yuunna-backend/internal/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const (
	// EventNewProduct 全局广播：有新商品入库。
	EventNewProduct = "newProduct"
	// EventNewUserProduct 发到用户房间：该用户导入的商品入库。
	EventNewUserProduct = "newUserProduct"

	globalChannel = "taobao:events:global"
	roomPrefix    = "taobao:events:room:"
	eventStream   = "taobao:events"
	streamMaxLen  = 10000
)

// Notifier 定义事件推送接口。
type Notifier interface {
	// EmitToRoom 向指定房间推送事件。
	//
	// 参数:
	//
	//	ctx: 上下文
	//	room: 房间名（通常是用户 ID）
	//	event: 事件名
	//	payload: 事件内容，会被序列化为 JSON
	EmitToRoom(ctx context.Context, room, event string, payload any) error
	// EmitGlobal 向所有连接广播事件。
	EmitGlobal(ctx context.Context, event string, payload any) error
}

// Event 是写入 Redis 的事件结构。
type Event struct {
	Room    string          `json:"room,omitempty"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// RedisNotifier 通过 Redis 发布事件。
type RedisNotifier struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisNotifier 创建 Redis 事件推送器。
func NewRedisNotifier(rdb *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger, now: time.Now}
}

// EmitToRoom 实现 Notifier。
func (n *RedisNotifier) EmitToRoom(ctx context.Context, room, event string, payload any) error {
	if room == "" {
		return nil
	}
	return n.emit(ctx, roomPrefix+room, room, event, payload)
}

// EmitGlobal 实现 Notifier。
func (n *RedisNotifier) EmitGlobal(ctx context.Context, event string, payload any) error {
	return n.emit(ctx, globalChannel, "", event, payload)
}

func (n *RedisNotifier) emit(ctx context.Context, channel, room, event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Event{Room: room, Event: event, Payload: raw, At: n.now()})
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := n.rdb.Publish(ctx, channel, data).Err(); err != nil {
		metrics.NotificationsTotal.WithLabelValues(event, "error").Inc()
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	// Stream 只用于断线重连后的补发，写失败不影响本次推送
	if err := n.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"channel": channel, "data": string(data)},
	}).Err(); err != nil {
		n.logger.Warn("event stream append failed", slog.String("event", event), slog.String("error", err.Error()))
	}

	metrics.NotificationsTotal.WithLabelValues(event, "sent").Inc()
	n.logger.Debug("event emitted", slog.String("channel", channel), slog.String("event", event))
	return nil
}

// Recent 读取最近 count 条事件（按时间倒序）。
func (n *RedisNotifier) Recent(ctx context.Context, count int64) ([]Event, error) {
	msgs, err := n.rdb.XRevRangeN(ctx, eventStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange events: %w", err)
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Nop 丢弃所有事件，用于没有 Redis 的本地环境。
type Nop struct{}

// EmitToRoom 实现 Notifier。
func (Nop) EmitToRoom(context.Context, string, string, any) error { return nil }

// EmitGlobal 实现 Notifier。
func (Nop) EmitGlobal(context.Context, string, any) error { return nil }
