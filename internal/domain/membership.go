package domain

import "time"

// Membership 表示用户与房间之间的成员关系，是所有房间级操作的唯一授权依据。
// 约束：每个 (room_id, user_id) 组合最多存在一条记录。
type Membership struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	RoomID   uint      `gorm:"uniqueIndex:idx_room_user;not null" json:"roomId"` // 所属房间 ID
	UserID   uint      `gorm:"uniqueIndex:idx_room_user;not null" json:"userId"` // 成员用户 ID
	JoinedAt time.Time `gorm:"autoCreateTime;index" json:"joinedAt"`             // 加入时间，成员列表按此排序

	// 关联的用户，用于成员列表投影 (按需 Preload)
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// RoomMember 是成员列表投影中的单个条目。
type RoomMember struct {
	UserID   uint      `json:"userId"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}
