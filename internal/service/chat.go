package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

const (
	maxMessageLength   = 1000 // 转义前的原始内容长度上限
	maxGetMessageLimit = 100
)

// RateLimitPolicy 控制发送配额的参数与后端故障时的策略。
// FailOpen 为 false (默认) 时限流后端不可用会拒绝发送：宁可限流
// 误伤也不放开无界写入。
type RateLimitPolicy struct {
	Points   int
	Window   time.Duration
	FailOpen bool
}

// ChatService 实现消息管线：校验 → 成员确认 → 限流 → 转义 →
// 持久化 → 缓存追加，以及历史查询和删除。
// 广播由调用方 (hub) 在 Send 成功返回后负责。
type ChatService struct {
	messageRepo repository.MessageRepository
	stateRepo   repository.StateRepository
	rooms       *RoomService
	refresher   SessionRefresher
	rateLimit   RateLimitPolicy
}

func NewChatService(
	messageRepo repository.MessageRepository,
	stateRepo repository.StateRepository,
	rooms *RoomService,
	refresher SessionRefresher,
	rateLimit RateLimitPolicy,
) *ChatService {
	return &ChatService{
		messageRepo: messageRepo,
		stateRepo:   stateRepo,
		rooms:       rooms,
		refresher:   refresher,
		rateLimit:   rateLimit,
	}
}

// escapeContent 转义尖括号，防止存储型脚本注入。
// 只处理 < 和 >：其余字符原样保留，客户端按文本渲染。
func escapeContent(content string) string {
	content = strings.ReplaceAll(content, "<", "&lt;")
	return strings.ReplaceAll(content, ">", "&gt;")
}

// Send 执行完整的消息发送管线。connKey 是调用方连接的限流标识
// (每个 WebSocket 连接一个)，配额按连接而非按用户计算。
// 返回已持久化消息的实体，广播载荷由调用方构造。
func (s *ChatService) Send(ctx context.Context, roomID uint, content string, senderID uint, connKey string) (*domain.Message, error) {
	// 1. 校验：去空白后非空，转义前长度不超过上限
	content = strings.TrimSpace(content)
	if content == "" || len([]rune(content)) > maxMessageLength {
		return nil, ErrInvalidInput
	}

	// 2. 成员确认：房间不存在与非成员同等对待
	isMember, err := s.rooms.IsMember(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	// 3. 限流：按连接消耗一个 token
	allowed, err := s.stateRepo.ConsumeRateLimit(ctx, "conn:"+connKey, s.rateLimit.Points, s.rateLimit.Window)
	if err != nil {
		if s.rateLimit.FailOpen {
			logrus.WithError(err).WithField("conn_key", connKey).Warn("Rate limiter unavailable, allowing message")
		} else {
			logrus.WithError(err).WithField("conn_key", connKey).Error("Rate limiter unavailable, rejecting message")
			return nil, ErrRateLimited
		}
	} else if !allowed {
		return nil, ErrRateLimited
	}

	// 4. 转义后持久化
	message := &domain.Message{
		Content: escapeContent(content),
		UserID:  senderID,
		RoomID:  roomID,
	}
	if err := s.messageRepo.Create(ctx, message); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": senderID,
		}).Error("Failed to persist message")
		return nil, ErrInternalServer
	}

	// 5. 追加到缓存窗口。缓存失败不影响已提交的消息，只记日志。
	username := ""
	if message.User != nil {
		username = message.User.Username
	}
	cached := domain.CachedMessage{
		ID:        message.ID,
		Content:   message.Content,
		UserID:    message.UserID,
		RoomID:    message.RoomID,
		Username:  username,
		CreatedAt: message.CreatedAt,
	}
	if err := s.stateRepo.AppendToMessageWindow(ctx, roomID, cached); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to append message to cache window")
	}

	// 6. 异步刷新发送者的会话 TTL
	if s.refresher != nil {
		if err := s.refresher.EnqueueSessionRefresh(senderID); err != nil {
			logrus.WithError(err).WithField("user_id", senderID).Warn("Failed to enqueue session refresh")
		}
	}

	logrus.WithFields(logrus.Fields{
		"message_id": message.ID,
		"room_id":    roomID,
		"user_id":    senderID,
	}).Debug("Message sent")
	return message, nil
}

// GetMessages 分页返回房间的历史消息 (时间升序)，每条按请求者
// 标注 canDelete。第一页优先走缓存窗口；未命中或缓存不可用时回源
// Durable Store，并在第一页回源成功后重建窗口。
func (s *ChatService) GetMessages(ctx context.Context, roomID uint, page, limit int, requesterID uint) ([]domain.MessageView, error) {
	// 分页参数越界一律拒绝，不做静默修正
	if page < 1 || limit < 1 || limit > maxGetMessageLimit {
		return nil, ErrInvalidInput
	}

	isMember, err := s.rooms.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	// 第一页尝试缓存窗口 (窗口上限 50 条，limit 更小时取尾部)
	if page == 1 {
		cached, err := s.stateRepo.GetMessageWindow(ctx, roomID)
		if err == nil {
			if len(cached) > limit {
				cached = cached[len(cached)-limit:]
			}
			views := make([]domain.MessageView, 0, len(cached))
			for _, c := range cached {
				views = append(views, c.View(requesterID))
			}
			return views, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Cache window unavailable, falling back to store")
		}
	}

	// 回源：存储返回最新在前，翻转为时间升序
	offset := (page - 1) * limit
	messages, err := s.messageRepo.ListByRoom(ctx, roomID, offset, limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list messages")
		return nil, ErrInternalServer
	}

	views := make([]domain.MessageView, 0, len(messages))
	cached := make([]domain.CachedMessage, 0, len(messages))
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.User == nil {
			// 发送者行已不存在的孤儿消息不出现在历史中
			logrus.WithFields(logrus.Fields{
				"message_id": m.ID,
				"user_id":    m.UserID,
			}).Warn("Skipping message with missing sender")
			continue
		}
		views = append(views, m.View(m.User.Username, requesterID))
		cached = append(cached, domain.CachedMessage{
			ID:        m.ID,
			Content:   m.Content,
			UserID:    m.UserID,
			RoomID:    m.RoomID,
			Username:  m.User.Username,
			CreatedAt: m.CreatedAt,
		})
	}

	// 第一页回源成功后重建缓存窗口
	if page == 1 && len(cached) > 0 {
		if err := s.stateRepo.SetMessageWindow(ctx, roomID, cached); err != nil {
			logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to rebuild cache window")
		}
	}
	return views, nil
}

// Delete 删除请求者自己的消息并使房间的缓存窗口失效。
// 请求者必须是房间成员，否则返回 ErrNotMember；消息不存在或
// 不属于指定房间时返回 ErrMessageNotFound；消息属于他人时返回
// ErrForbidden。
func (s *ChatService) Delete(ctx context.Context, messageID, roomID, requesterID uint) error {
	// 与发送同样先过成员确认：退出房间的用户对房间不再有任何写权限，
	// 包括删除自己留下的消息
	isMember, err := s.rooms.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return err
	}
	if !isMember {
		return ErrNotMember
	}

	message, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		logrus.WithError(err).WithField("message_id", messageID).Error("Failed to query message")
		return ErrInternalServer
	}
	if message.RoomID != roomID {
		return ErrMessageNotFound
	}
	if message.UserID != requesterID {
		return ErrForbidden
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		logrus.WithError(err).WithField("message_id", messageID).Error("Failed to delete message")
		return ErrInternalServer
	}

	// 缓存窗口整体失效，下一次读取回源重建
	if err := s.stateRepo.InvalidateMessageWindow(ctx, roomID); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Failed to invalidate cache window")
	}

	logrus.WithFields(logrus.Fields{
		"message_id": messageID,
		"room_id":    roomID,
		"user_id":    requesterID,
	}).Info("Message deleted")
	return nil
}
