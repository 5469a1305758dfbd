// Package http 提供 REST 接口：认证、房间管理与消息历史。
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ricky-ultimate/convo-backend/internal/service"
)

// respondError 把服务层错误映射为 HTTP 状态码。
// 未分类错误一律 500，细节只在日志里。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNotMember), errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrMembershipNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrDuplicateRoomName),
		errors.Is(err, service.ErrRegistrationFailed):
		status = http.StatusConflict
	case errors.Is(err, service.ErrRateLimited):
		status = http.StatusTooManyRequests
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = service.ErrInternalServer.Error()
	}
	c.JSON(status, gin.H{"error": message})
}

// currentUserID 读取 JWT 中间件写入的用户 ID。
func currentUserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}
