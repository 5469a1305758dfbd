package tasks

import (
	"github.com/hibiken/asynq"
)

// Enqueuer 封装 asynq 客户端，实现服务层的 SessionRefresher。
// 入队是 fire-and-forget：失败由调用方记日志，不影响主操作。
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

// EnqueueSessionRefresh 将会话刷新任务放入默认队列。
func (e *Enqueuer) EnqueueSessionRefresh(userID uint) error {
	task, err := NewSessionRefreshTask(userID)
	if err != nil {
		return err
	}
	_, err = e.client.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(3))
	return err
}
