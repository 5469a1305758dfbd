package domain

import "time"

// Room 表示一个聊天房间。
type Room struct {
	ID        uint      `gorm:"primaryKey" json:"id"`                                  // 房间唯一标识符 (主键)
	Name      string    `gorm:"type:varchar(191);uniqueIndex:idx_room_name;not null" json:"name"` // 房间名称，必须唯一且不能为空
	CreatorID uint      `gorm:"index;not null" json:"creatorId"`                       // 创建该房间的用户 ID (外键关联到 User.ID)
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`                       // 房间创建时间 (GORM 自动填充)
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}
