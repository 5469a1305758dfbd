package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

const (
	// 房间近期消息窗口的上限与 TTL
	messageWindowSize = 50
	messageWindowTTL  = 10 * time.Minute

	// 单条 Redis 命令的超时上限。缓存绝不允许无限期阻塞发送/读取路径，
	// 超时由调用方按缓存未命中处理。
	commandTimeout = 5 * time.Second
)

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client
	keyPrefix string // Redis key 前缀，方便多环境共用一个实例
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "convo:"
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) messageWindowKey(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:messages", r.keyPrefix, roomID)
}

func (r *RedisStateRepository) sessionKey(userID uint) string {
	return fmt.Sprintf("%ssession:%d", r.keyPrefix, userID)
}

func (r *RedisStateRepository) roomEventChannel(roomID uint) string {
	return fmt.Sprintf("%sroom:%d:events", r.keyPrefix, roomID)
}

// withTimeout 为单条命令附加有界超时
func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, commandTimeout)
}

// --- Cached Message Window ---

// GetMessageWindow 获取房间的近期消息窗口 (oldest → newest)。
func (r *RedisStateRepository) GetMessageWindow(ctx context.Context, roomID uint) ([]domain.CachedMessage, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.messageWindowKey(roomID)
	entries, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: failed to get message window for room %d from %s: %w", roomID, key, err)
	}
	if len(entries) == 0 {
		// key 不存在与空列表同样视为未命中
		return nil, repository.ErrNotFound
	}
	messages := make([]domain.CachedMessage, 0, len(entries))
	for _, entry := range entries {
		var msg domain.CachedMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			logrus.Warnf("redis: failed to unmarshal cached message for room %d: %v, data: %s", roomID, err, entry)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil, repository.ErrNotFound
	}
	return messages, nil
}

// SetMessageWindow 整体重写房间的消息窗口并刷新 TTL。
func (r *RedisStateRepository) SetMessageWindow(ctx context.Context, roomID uint, messages []domain.CachedMessage) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.messageWindowKey(roomID)
	if len(messages) > messageWindowSize {
		messages = messages[len(messages)-messageWindowSize:]
	}
	values := make([]interface{}, 0, len(messages))
	for _, msg := range messages {
		bytes, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("redis: failed to marshal message %d for window (room %d): %w", msg.ID, roomID, err)
		}
		values = append(values, string(bytes))
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, messageWindowTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to set message window for room %d on key %s: %w", roomID, key, err)
	}
	return nil
}

// AppendToMessageWindow 将一条新消息追加到窗口尾部，只保留最近 50 条并刷新 TTL。
func (r *RedisStateRepository) AppendToMessageWindow(ctx context.Context, roomID uint, message domain.CachedMessage) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.messageWindowKey(roomID)
	bytes, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal message %d for window append (room %d): %w", message.ID, roomID, err)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, string(bytes))
	pipe.LTrim(ctx, key, -messageWindowSize, -1)
	pipe.Expire(ctx, key, messageWindowTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to append message to window for room %d on key %s: %w", roomID, key, err)
	}
	return nil
}

// InvalidateMessageWindow 整体删除房间的消息窗口。
func (r *RedisStateRepository) InvalidateMessageWindow(ctx context.Context, roomID uint) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.messageWindowKey(roomID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to invalidate message window for room %d on key %s: %w", roomID, key, err)
	}
	return nil
}

// --- Rate Limiting ---

// ConsumeRateLimit 为给定 key 消耗一个配额 token。
// INCR 之后只在计数器是新建时设置过期，保证窗口真正会随时间流逝而重置，
// 持续超限的发送者不会把自己的窗口无限延长。
func (r *RedisStateRepository) ConsumeRateLimit(ctx context.Context, key string, points int, duration time.Duration) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	fullKey := r.keyPrefix + "ratelimit:" + key
	count, err := r.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to incr rate limit counter on key %s: %w", fullKey, err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, duration).Err(); err != nil {
			// 过期设置失败会让计数器永不重置；删除它以免把客户端永久锁死
			logrus.WithError(err).Warnf("redis: failed to set expiry for rate limit key %s, removing counter", fullKey)
			_ = r.client.Del(ctx, fullKey).Err()
			return false, fmt.Errorf("redis: failed to set rate limit expiry on key %s: %w", fullKey, err)
		}
	}
	return count <= int64(points), nil
}

// --- Session Records ---

// SetSession 写入用户的会话记录并设置 TTL。
func (r *RedisStateRepository) SetSession(ctx context.Context, userID uint, token string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.sessionKey(userID)
	if err := r.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set session for user %d on key %s: %w", userID, key, err)
	}
	return nil
}

// RefreshSession 刷新用户会话记录的 TTL。记录不存在时 EXPIRE 返回 false，不视为错误。
func (r *RedisStateRepository) RefreshSession(ctx context.Context, userID uint, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.sessionKey(userID)
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to refresh session for user %d on key %s: %w", userID, key, err)
	}
	return nil
}

// DeleteSession 删除用户的会话记录。
func (r *RedisStateRepository) DeleteSession(ctx context.Context, userID uint) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	key := r.sessionKey(userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete session for user %d on key %s: %w", userID, key, err)
	}
	return nil
}

// --- PubSub ---

// PublishRoomEvent 将一条已序列化的事件发布到房间的广播频道。
func (r *RedisStateRepository) PublishRoomEvent(ctx context.Context, roomID uint, payload []byte) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	channel := r.roomEventChannel(roomID)
	cmd := r.client.Publish(ctx, channel, payload)
	if err := cmd.Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"room_id":      roomID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: failed to publish event to channel %s: %w", channel, err)
	}
	return nil
}

// SubscribeRoom 订阅房间的广播频道。
// 返回的通道在取消函数被调用后关闭。
func (r *RedisStateRepository) SubscribeRoom(ctx context.Context, roomID uint) (<-chan []byte, func(), error) {
	channel := r.roomEventChannel(roomID)
	pubsub := r.client.Subscribe(ctx, channel)

	// 确认订阅已建立，避免静默订阅一个失败的连接
	confirmCtx, cancel := withTimeout(ctx)
	defer cancel()
	if _, err := pubsub.Receive(confirmCtx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: failed to subscribe to channel %s: %w", channel, err)
	}

	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- []byte(msg.Payload)
		}
	}()
	stop := func() {
		if err := pubsub.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			logrus.WithError(err).WithField("channel", channel).Warn("redis: error closing room subscription")
		}
	}
	return out, stop, nil
}

// --- Liveness ---

// Ping 探测 Redis 是否可达。
func (r *RedisStateRepository) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping failed: %w", err)
	}
	return nil
}
