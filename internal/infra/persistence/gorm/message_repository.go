package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Create 实现事务内持久化消息。
// 先在事务内确认发送者用户行存在，再写入消息行：要么整条消息连同
// 其所有者引用一起可见，要么什么都不写入。
func (r *GormMessageRepository) Create(ctx context.Context, message *domain.Message) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := tx.First(&user, message.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrUserNotFound
			}
			return err
		}
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		message.User = &user
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("gorm: create message (room %d, user %d): %w", message.RoomID, message.UserID, err)
	}
	return nil
}

// FindByID 实现根据消息 ID 查找消息，附带发送者信息
func (r *GormMessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	var message domain.Message
	err := r.db.WithContext(ctx).Preload("User").First(&message, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMessageNotFound
		}
		return nil, fmt.Errorf("gorm: find message by id %d: %w", id, err)
	}
	return &message, nil
}

// ListByRoom 实现按 created_at 降序分页返回房间消息
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list messages for room %d (offset %d, limit %d): %w", roomID, offset, limit, err)
	}
	return messages, nil
}

// Delete 实现事务内删除消息行
func (r *GormMessageRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&domain.Message{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return repository.ErrMessageNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return err
		}
		return fmt.Errorf("gorm: delete message %d: %w", id, err)
	}
	return nil
}
