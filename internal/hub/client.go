package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// 单帧写入超时
	writeWait = 10 * time.Second
	// 收到 pong 后的读取存活窗口
	pongWait = 60 * time.Second
	// ping 间隔，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10
	// 入站帧大小上限 (1000 字符内容按 UTF-8 最宽编码仍留有余量)
	maxMessageSize = 8192
	// 出站缓冲满即判定客户端过慢并断开
	sendBufferSize = 256
)

// Client 代表一条已鉴权的 WebSocket 连接。
// 同一用户可以持有多条连接，限流配额按连接 (ConnID) 计算。
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// 出站帧缓冲，由 writePump 独占消费
	send chan []byte

	// ConnID 连接唯一标识，用作限流 key
	ConnID   string
	UserID   uint
	Username string
}

func NewClient(h *Hub, conn *websocket.Conn, connID string, userID uint, username string) *Client {
	return &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		ConnID:   connID,
		UserID:   userID,
		Username: username,
	}
}

// enqueue 把一帧放入出站缓冲。缓冲已满说明客户端消费过慢，
// 丢弃该帧并返回 false，由调用方决定是否断开。
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendError 向本连接定向发送错误事件。
func (c *Client) sendError(message, code string) {
	payload, err := NewEnvelope(EventError, ErrorData{Message: message, Code: code})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal error event")
		return
	}
	c.enqueue(payload)
}

// ReadPump 消费入站帧并逐帧分发，连接断开时负责注销。
// 每条连接一个 goroutine。
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("conn_id", c.ConnID).Warn("Unexpected connection close")
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.sendError("Malformed frame", CodeInvalidRequest)
			continue
		}
		c.hub.HandleEvent(c, envelope)
	}
}

// WritePump 独占写出站帧并维持 ping。每条连接一个 goroutine。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
