package repository

import (
	"context"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// MessageRepository 定义了消息数据的存储和检索操作。
type MessageRepository interface {
	// Create 在单个事务内持久化消息：先确认发送者用户行存在，
	// 再写入消息行，保证不会出现没有所属用户的消息。
	// 用户不存在时返回 repository.ErrUserNotFound。
	Create(ctx context.Context, message *domain.Message) error

	// FindByID 根据消息 ID 查找消息，附带发送者信息。
	// 不存在时返回 repository.ErrMessageNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Message, error)

	// ListByRoom 返回房间的消息，按 created_at 降序 (最新在前)，
	// offset/limit 分页，附带发送者信息。
	ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Message, error)

	// Delete 在单个事务内删除指定消息行。
	// 不存在时返回 repository.ErrMessageNotFound。
	Delete(ctx context.Context, id uint) error
}
