package repository

import (
	"context"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 如果房间不存在，应返回 repository.ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByName 根据房间名称查找房间。
	// 如果房间不存在，应返回 repository.ErrRoomNotFound。
	FindByName(ctx context.Context, name string) (*domain.Room, error)

	// Save 保存房间信息。
	// 房间名称的唯一约束冲突映射为 repository.ErrDuplicateEntry。
	Save(ctx context.Context, room *domain.Room) error

	// Delete 删除房间及其关联的成员关系与消息 (单个事务)。
	// 如果房间不存在，应返回 repository.ErrRoomNotFound。
	Delete(ctx context.Context, id uint) error
}
