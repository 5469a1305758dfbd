// Package tasks 定义异步任务的类型与载荷。
// 任务由服务层入队，由独立的 worker 进程消费。
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// TypeSessionRefresh 成员活动后延长会话记录 TTL
	TypeSessionRefresh = "session:refresh"
)

// SessionRefreshPayload 会话刷新任务的载荷。
type SessionRefreshPayload struct {
	UserID uint `json:"user_id"`
}

// NewSessionRefreshTask 构造会话刷新任务。
func NewSessionRefreshTask(userID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(SessionRefreshPayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSessionRefresh, payload), nil
}
