package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/repository"
	"github.com/ricky-ultimate/convo-backend/internal/tasks"
)

// SessionRefreshHandler 消费会话刷新任务，延长用户会话记录的 TTL。
// 会话记录不存在时 (已过期或用户已登出) 视为成功，不重试。
type SessionRefreshHandler struct {
	stateRepo  repository.StateRepository
	sessionTTL time.Duration
}

func NewSessionRefreshHandler(stateRepo repository.StateRepository, sessionTTL time.Duration) *SessionRefreshHandler {
	return &SessionRefreshHandler{
		stateRepo:  stateRepo,
		sessionTTL: sessionTTL,
	}
}

func (h *SessionRefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload tasks.SessionRefreshPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		// 载荷损坏无法通过重试修复
		return fmt.Errorf("unmarshal session refresh payload: %w: %v", asynq.SkipRetry, err)
	}

	if err := h.stateRepo.RefreshSession(ctx, payload.UserID, h.sessionTTL); err != nil {
		logrus.WithError(err).WithField("user_id", payload.UserID).Error("Failed to refresh session TTL")
		return err
	}

	logrus.WithField("user_id", payload.UserID).Debug("Session TTL refreshed")
	return nil
}
