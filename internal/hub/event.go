package hub

import (
	"encoding/json"
	"time"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

// 入站事件类型 (客户端 → 服务端)
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventMessage        = "message"
	EventDeleteMessage  = "deleteMessage"
	EventGetRoomMembers = "getRoomMembers"
)

// 出站事件类型 (服务端 → 客户端)
const (
	EventUserJoined      = "userJoined"
	EventUserLeft        = "userLeft"
	EventMessagesUpdated = "messagesUpdated"
	EventRoomMembers     = "roomMembers"
	EventError           = "error"
)

// 出站错误码。客户端据此区分失败类别，不解析错误文本。
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimit      = "RATE_LIMIT"
	CodeServerError    = "SERVER_ERROR"
)

// Envelope 是 WebSocket 连接上所有帧的统一外壳。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 序列化一个完整的出站帧。
func NewEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// === 入站载荷 ===

type JoinRoomData struct {
	RoomID uint `json:"roomId"`
}

type LeaveRoomData struct {
	RoomID uint `json:"roomId"`
}

type MessageData struct {
	RoomID  uint   `json:"roomId"`
	Content string `json:"content"`
}

type DeleteMessageData struct {
	RoomID    uint `json:"roomId"`
	MessageID uint `json:"messageId"`
}

type GetRoomMembersData struct {
	RoomID uint `json:"roomId"`
}

// === 出站载荷 ===

// PresenceData 成员进出房间的广播载荷。
type PresenceData struct {
	RoomID uint                  `json:"roomId"`
	User   domain.PublicIdentity `json:"user"`
}

// MessageEventData 新消息的广播载荷。广播对房间内所有成员一致，
// 不携带 canDelete：该标志依赖接收者，由客户端比对 userId 得出。
type MessageEventData struct {
	ID        uint                  `json:"id"`
	Content   string                `json:"content"`
	UserID    uint                  `json:"userId"`
	RoomID    uint                  `json:"roomId"`
	CreatedAt time.Time             `json:"createdAt"`
	User      domain.PublicIdentity `json:"user"`
}

// MessagesUpdatedData 删除操作后的广播载荷，携带刷新后的近期消息。
type MessagesUpdatedData struct {
	RoomID   uint               `json:"roomId"`
	Messages []MessageEventData `json:"messages"`
}

// RoomMembersData 成员列表的定向回复载荷。
type RoomMembersData struct {
	RoomID  uint                `json:"roomId"`
	Members []domain.RoomMember `json:"members"`
}

// ErrorData 定向错误回复载荷，只发给出错的连接。
type ErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// newMessageEventData 从持久化消息构造广播载荷。
func newMessageEventData(m *domain.Message) MessageEventData {
	username := ""
	if m.User != nil {
		username = m.User.Username
	}
	return MessageEventData{
		ID:        m.ID,
		Content:   m.Content,
		UserID:    m.UserID,
		RoomID:    m.RoomID,
		CreatedAt: m.CreatedAt,
		User:      domain.PublicIdentity{ID: m.UserID, Username: username},
	}
}
