package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

// GormMembershipRepository 是 MembershipRepository 接口的 GORM 实现
type GormMembershipRepository struct {
	db *gorm.DB
}

// NewGormMembershipRepository 创建 GormMembershipRepository 实例
func NewGormMembershipRepository(db *gorm.DB) *GormMembershipRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMembershipRepository")
	}
	return &GormMembershipRepository{db: db}
}

// Find 实现查找指定 (roomID, userID) 的成员关系
func (r *GormMembershipRepository) Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error) {
	var membership domain.Membership
	err := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("gorm: find membership (room %d, user %d): %w", roomID, userID, err)
	}
	return &membership, nil
}

// Create 实现创建成员关系。
// (room_id, user_id) 上的唯一索引保证同一用户不会在同一房间出现两条记录；
// 冲突映射为 repository.ErrDuplicateEntry。
func (r *GormMembershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	result := r.db.WithContext(ctx).Create(membership)
	if err := result.Error; err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create membership (room %d, user %d): %w", membership.RoomID, membership.UserID, err)
	}
	return nil
}

// Delete 实现删除成员关系
func (r *GormMembershipRepository) Delete(ctx context.Context, roomID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Delete(&domain.Membership{})
	if err := result.Error; err != nil {
		return fmt.Errorf("gorm: delete membership (room %d, user %d): %w", roomID, userID, err)
	}
	if result.RowsAffected == 0 {
		return repository.ErrMembershipNotFound
	}
	return nil
}

// ListByRoom 实现按 joined_at 升序返回房间成员，附带用户信息
func (r *GormMembershipRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships for room %d: %w", roomID, err)
	}
	return memberships, nil
}

// ListByUser 实现按 joined_at 升序返回用户加入的全部成员关系
func (r *GormMembershipRepository) ListByUser(ctx context.Context, userID uint) ([]domain.Membership, error) {
	var memberships []domain.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list memberships for user %d: %w", userID, err)
	}
	return memberships, nil
}
