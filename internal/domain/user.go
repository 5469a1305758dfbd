// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// User 表示应用程序中的用户。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 用户唯一标识符 (主键)
	Username  string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null" json:"username"`
	Password  string    `gorm:"type:text;not null" json:"-"` // 存储的是哈希后的密码，不能为空
	Email     *string   `gorm:"type:varchar(191);uniqueIndex:idx_email" json:"email,omitempty"` // 可选，NULL 不参与唯一约束
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"` // 用户记录创建时间 (GORM 自动填充)
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

// PublicIdentity 是可以安全广播给房间内其他用户的身份视图。
// 绝不包含密码哈希或邮箱等凭据信息。
type PublicIdentity struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// Public 返回用户的公开身份视图。
func (u *User) Public() PublicIdentity {
	return PublicIdentity{ID: u.ID, Username: u.Username}
}
