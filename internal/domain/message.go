package domain

import "time"

// Message 表示房间内的一条持久化消息。
// 创建后不可修改，只能由其所有者硬删除 (没有软删除或编辑)。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"` // 已转义的消息内容 (转义可能超过原始长度上限)
	UserID    uint      `gorm:"index;not null" json:"userId"`               // 发送者用户 ID
	RoomID    uint      `gorm:"index;not null" json:"roomId"`               // 所属房间 ID
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`

	// 关联的发送者，用于广播/历史视图 (按需 Preload)
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// MessageView 是暴露给客户端的消息视图：携带发送者的公开身份和
// 针对当前请求者计算的 canDelete 标志。
type MessageView struct {
	ID        uint           `json:"id"`
	Content   string         `json:"content"`
	UserID    uint           `json:"userId"`
	RoomID    uint           `json:"roomId"`
	CreatedAt time.Time      `json:"createdAt"`
	User      PublicIdentity `json:"user"`
	CanDelete bool           `json:"canDelete"`
}

// View 基于请求者身份构造消息视图。username 来自已解析的发送者。
func (m *Message) View(username string, requesterID uint) MessageView {
	return MessageView{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
		User:      PublicIdentity{ID: m.UserID, Username: username},
		CanDelete: m.UserID == requesterID,
	}
}

// CachedMessage 是写入共享缓存窗口的消息形态。与 MessageView 相比
// 不携带 canDelete：该标志依赖请求者，必须在读取时计算。
type CachedMessage struct {
	ID        uint      `json:"id"`
	Content   string    `json:"content"`
	UserID    uint      `json:"userId"`
	RoomID    uint      `json:"roomId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// View 基于请求者身份将缓存条目转换为客户端视图。
func (c CachedMessage) View(requesterID uint) MessageView {
	return MessageView{
		ID:        c.ID,
		Content:   c.Content,
		UserID:    c.UserID,
		RoomID:    c.RoomID,
		CreatedAt: c.CreatedAt,
		User:      PublicIdentity{ID: c.UserID, Username: c.Username},
		CanDelete: c.UserID == requesterID,
	}
}
