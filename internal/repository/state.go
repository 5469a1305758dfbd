package repository

import (
	"context"
	"time"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// StateRepository 定义了与共享缓存相关的操作，通常由 Redis 实现。
// 所有方法必须返回确定的成功/失败信号，绝不 panic；缓存只是加速器，
// 调用方必须能够在缓存完全不可用时仅靠 Durable Store 保持正确。
type StateRepository interface {
	// === Cached Message Window ===

	// GetMessageWindow 获取房间的近期消息窗口 (oldest → newest)。
	// 缓存未命中时返回 repository.ErrNotFound。
	GetMessageWindow(ctx context.Context, roomID uint) ([]domain.CachedMessage, error)

	// SetMessageWindow 整体重写房间的消息窗口并刷新 TTL。
	// 超出窗口上限的旧消息由实现裁剪。
	SetMessageWindow(ctx context.Context, roomID uint, messages []domain.CachedMessage) error

	// AppendToMessageWindow 将一条新消息追加到窗口尾部，只保留最近
	// windowSize 条，并刷新 TTL。窗口不存在时等同于创建单元素窗口。
	AppendToMessageWindow(ctx context.Context, roomID uint, message domain.CachedMessage) error

	// InvalidateMessageWindow 整体删除房间的消息窗口 (删除内任何操作后调用)。
	InvalidateMessageWindow(ctx context.Context, roomID uint) error

	// === Rate Limiting ===

	// ConsumeRateLimit 为给定 key 消耗一个配额 token。
	// 返回 true 表示允许，false 表示配额耗尽；err 非 nil 表示后端不可用，
	// 由调用方按 fail-open/fail-closed 策略决定。
	ConsumeRateLimit(ctx context.Context, key string, points int, duration time.Duration) (bool, error)

	// === Session Records ===

	// SetSession 写入用户的会话记录 (token) 并设置 TTL。
	SetSession(ctx context.Context, userID uint, token string, ttl time.Duration) error

	// RefreshSession 刷新用户会话记录的 TTL。记录不存在时不视为错误。
	RefreshSession(ctx context.Context, userID uint, ttl time.Duration) error

	// DeleteSession 删除用户的会话记录 (登出)。
	DeleteSession(ctx context.Context, userID uint) error

	// === PubSub ===

	// PublishRoomEvent 将一条已序列化的事件发布到房间的广播频道。
	PublishRoomEvent(ctx context.Context, roomID uint, payload []byte) error

	// SubscribeRoom 订阅房间的广播频道，返回消息通道和取消函数。
	SubscribeRoom(ctx context.Context, roomID uint) (<-chan []byte, func(), error)

	// === Liveness ===

	// Ping 探测缓存后端是否可达。
	Ping(ctx context.Context) error
}
