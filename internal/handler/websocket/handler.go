// Package websocket 负责 WebSocket 握手：校验 JWT、升级连接并
// 把客户端交给 hub。
package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/hub"
	"github.com/ricky-ultimate/convo-backend/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由部署层的反向代理控制
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler 处理 /ws 握手请求。
type Handler struct {
	hub       *hub.Hub
	jwtSecret string
}

func NewHandler(h *hub.Hub, jwtSecret string) *Handler {
	return &Handler{hub: h, jwtSecret: jwtSecret}
}

// Serve 校验令牌并升级连接。浏览器端无法为 WebSocket 握手设置
// Authorization 头，令牌通过 query 参数传递。
func (h *Handler) Serve(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token required"})
		return
	}

	userID, username, err := service.ParseToken(tokenString, h.jwtSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := hub.NewClient(h.hub, conn, uuid.NewString(), userID, username)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
