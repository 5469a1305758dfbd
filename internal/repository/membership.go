package repository

import (
	"context"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// MembershipRepository 定义了房间成员关系的存储和检索操作。
// 成员关系是所有房间级操作的授权依据，读路径不允许缓存。
type MembershipRepository interface {
	// Find 查找指定 (roomID, userID) 的成员关系。
	// 不存在时返回 repository.ErrMembershipNotFound。
	Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error)

	// Create 创建成员关系。
	// (roomID, userID) 唯一约束冲突映射为 repository.ErrDuplicateEntry。
	Create(ctx context.Context, membership *domain.Membership) error

	// Delete 删除指定 (roomID, userID) 的成员关系。
	// 不存在时返回 repository.ErrMembershipNotFound。
	Delete(ctx context.Context, roomID, userID uint) error

	// ListByRoom 返回房间的全部成员，按 joined_at 升序，附带用户信息。
	ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error)

	// ListByUser 返回用户加入的全部成员关系，按 joined_at 升序。
	ListByUser(ctx context.Context, userID uint) ([]domain.Membership, error)
}
