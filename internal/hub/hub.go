// Package hub 管理 WebSocket 连接的注册、房间索引与事件分发。
// 广播统一经由 Redis Pub/Sub：本实例发布，所有订阅该房间频道的
// 实例 (含自身) 收到后投递给各自的本地连接，水平扩容时多实例
// 行为一致。
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
	"github.com/ricky-ultimate/convo-backend/internal/service"
)

// Hub 维护本实例的连接集合与房间索引。
// 房间级操作先经 RoomService 确认成员资格，再操作本地索引。
type Hub struct {
	rooms     *service.RoomService
	chat      *service.ChatService
	stateRepo repository.StateRepository

	mu sync.RWMutex
	// roomClients 房间 → 本地连接集合
	roomClients map[uint]map[*Client]bool
	// clientRooms 连接 → 已加入的房间集合 (注销时反向清理)
	clientRooms map[*Client]map[uint]bool
	// cancels 房间 → pub/sub 订阅取消函数
	cancels map[uint]func()
	// localOnly 订阅失败的房间。广播对这些房间额外做本地投递，
	// 下一次 attach 会重试订阅
	localOnly map[uint]bool

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(rooms *service.RoomService, chat *service.ChatService, stateRepo repository.StateRepository) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:       rooms,
		chat:        chat,
		stateRepo:   stateRepo,
		roomClients: make(map[uint]map[*Client]bool),
		clientRooms: make(map[*Client]map[uint]bool),
		cancels:     make(map[uint]func()),
		localOnly:   make(map[uint]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Run 处理连接的注册与注销。单 goroutine 运行。
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.ctx.Done():
			return
		}
	}
}

// Stop 停止 Run 循环并取消全部 pub/sub 订阅。
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, stop := range h.cancels {
		stop()
		delete(h.cancels, roomID)
	}
}

// Register 将新连接交给 Run 循环登记。
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister 注销连接。ReadPump 退出时调用。
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clientRooms[client] = make(map[uint]bool)
	logrus.WithFields(logrus.Fields{
		"conn_id": client.ConnID,
		"user_id": client.UserID,
	}).Info("Connection registered")
}

// removeClient 清理连接的全部本地状态。连接断开不影响持久化的
// 成员关系，也不广播 userLeft：离开房间是显式操作。
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	rooms, ok := h.clientRooms[client]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clientRooms, client)
	for roomID := range rooms {
		h.detachFromRoomLocked(client, roomID)
	}
	h.mu.Unlock()

	close(client.send)
	logrus.WithFields(logrus.Fields{
		"conn_id": client.ConnID,
		"user_id": client.UserID,
	}).Info("Connection unregistered")
}

// attachToRoom 把连接挂入房间的本地索引。房间的首个本地连接
// 触发对房间广播频道的订阅。
func (h *Hub) attachToRoom(client *Client, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rooms, ok := h.clientRooms[client]; ok {
		rooms[roomID] = true
	}
	if h.roomClients[roomID] == nil {
		h.roomClients[roomID] = make(map[*Client]bool)
	}
	h.roomClients[roomID][client] = true

	if _, subscribed := h.cancels[roomID]; !subscribed {
		ch, stop, err := h.stateRepo.SubscribeRoom(h.ctx, roomID)
		if err != nil {
			// 标记为仅本地投递，后续 attach 重试订阅
			h.localOnly[roomID] = true
			logrus.WithError(err).WithField("room_id", roomID).Error("Failed to subscribe room channel")
			return
		}
		delete(h.localOnly, roomID)
		h.cancels[roomID] = stop
		go h.forwardRoomEvents(roomID, ch)
	}
}

// detachFromRoom 把连接从房间的本地索引摘除。
func (h *Hub) detachFromRoom(client *Client, roomID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms, ok := h.clientRooms[client]; ok {
		delete(rooms, roomID)
	}
	h.detachFromRoomLocked(client, roomID)
}

// detachFromRoomLocked 摘除房间索引并在房间清空时退订频道。
// 调用方必须持有 h.mu 写锁。
func (h *Hub) detachFromRoomLocked(client *Client, roomID uint) {
	clients, ok := h.roomClients[roomID]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.roomClients, roomID)
		delete(h.localOnly, roomID)
		if stop, subscribed := h.cancels[roomID]; subscribed {
			stop()
			delete(h.cancels, roomID)
		}
	}
}

// forwardRoomEvents 把房间频道收到的帧投递给本地成员。
// 频道关闭 (退订或 Stop) 时退出。
func (h *Hub) forwardRoomEvents(roomID uint, ch <-chan []byte) {
	for payload := range ch {
		h.deliverLocal(roomID, payload)
	}
}

// deliverLocal 把一帧投递给房间的全部本地连接。
// 出站缓冲已满的慢连接直接注销，避免拖垮整个房间的投递。
func (h *Hub) deliverLocal(roomID uint, payload []byte) {
	h.mu.RLock()
	var slow []*Client
	for client := range h.roomClients[roomID] {
		if !client.enqueue(payload) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		logrus.WithFields(logrus.Fields{
			"conn_id": client.ConnID,
			"room_id": roomID,
		}).Warn("Dropping slow connection")
		go h.Unregister(client)
	}
}

// broadcast 发布一帧到房间频道。发布失败、或房间频道未订阅成功
// (本实例收不到自己发布的帧) 时退化为本地投递，单实例部署下行为不变。
func (h *Hub) broadcast(ctx context.Context, roomID uint, event string, data interface{}) {
	payload, err := NewEnvelope(event, data)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("Failed to marshal broadcast event")
		return
	}

	h.mu.RLock()
	localOnly := h.localOnly[roomID]
	h.mu.RUnlock()

	if err := h.stateRepo.PublishRoomEvent(ctx, roomID, payload); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Warn("Publish failed, delivering locally")
		h.deliverLocal(roomID, payload)
		return
	}
	if localOnly {
		h.deliverLocal(roomID, payload)
	}
}

// HandleEvent 分发一个入站事件。在连接的 ReadPump goroutine 中执行，
// 慢操作 (数据库、Redis) 只阻塞该连接自身。
func (h *Hub) HandleEvent(client *Client, envelope Envelope) {
	ctx := h.ctx
	switch envelope.Event {
	case EventJoinRoom:
		var data JoinRoomData
		if err := json.Unmarshal(envelope.Data, &data); err != nil || data.RoomID == 0 {
			client.sendError("Invalid joinRoom payload", CodeInvalidRequest)
			return
		}
		h.handleJoinRoom(ctx, client, data.RoomID)
	case EventLeaveRoom:
		var data LeaveRoomData
		if err := json.Unmarshal(envelope.Data, &data); err != nil || data.RoomID == 0 {
			client.sendError("Invalid leaveRoom payload", CodeInvalidRequest)
			return
		}
		h.handleLeaveRoom(ctx, client, data.RoomID)
	case EventMessage:
		var data MessageData
		if err := json.Unmarshal(envelope.Data, &data); err != nil || data.RoomID == 0 {
			client.sendError("Invalid message payload", CodeInvalidRequest)
			return
		}
		h.handleMessage(ctx, client, data)
	case EventDeleteMessage:
		var data DeleteMessageData
		if err := json.Unmarshal(envelope.Data, &data); err != nil || data.RoomID == 0 || data.MessageID == 0 {
			client.sendError("Invalid deleteMessage payload", CodeInvalidRequest)
			return
		}
		h.handleDeleteMessage(ctx, client, data)
	case EventGetRoomMembers:
		var data GetRoomMembersData
		if err := json.Unmarshal(envelope.Data, &data); err != nil || data.RoomID == 0 {
			client.sendError("Invalid getRoomMembers payload", CodeInvalidRequest)
			return
		}
		h.handleGetRoomMembers(ctx, client, data.RoomID)
	default:
		client.sendError("Unknown event: "+envelope.Event, CodeInvalidRequest)
	}
}

func (h *Hub) handleJoinRoom(ctx context.Context, client *Client, roomID uint) {
	_, err := h.rooms.Join(ctx, roomID, client.UserID)
	if errors.Is(err, service.ErrAlreadyMember) {
		// 已是成员的重连：只恢复本地索引，不重复广播 userJoined
		h.attachToRoom(client, roomID)
		return
	}
	if err != nil {
		client.sendError(err.Error(), errorCode(err))
		return
	}

	h.attachToRoom(client, roomID)
	h.broadcast(ctx, roomID, EventUserJoined, PresenceData{
		RoomID: roomID,
		User:   domain.PublicIdentity{ID: client.UserID, Username: client.Username},
	})
}

func (h *Hub) handleLeaveRoom(ctx context.Context, client *Client, roomID uint) {
	// 本地退订无条件执行：即使成员关系删除失败，这条连接也不应
	// 继续收到该房间的广播
	h.detachFromRoom(client, roomID)

	if err := h.rooms.Leave(ctx, roomID, client.UserID); err != nil {
		client.sendError(err.Error(), errorCode(err))
		return
	}

	h.broadcast(ctx, roomID, EventUserLeft, PresenceData{
		RoomID: roomID,
		User:   domain.PublicIdentity{ID: client.UserID, Username: client.Username},
	})
}

func (h *Hub) handleMessage(ctx context.Context, client *Client, data MessageData) {
	message, err := h.chat.Send(ctx, data.RoomID, data.Content, client.UserID, client.ConnID)
	if err != nil {
		client.sendError(err.Error(), errorCode(err))
		return
	}
	h.broadcast(ctx, data.RoomID, EventMessage, newMessageEventData(message))
}

func (h *Hub) handleDeleteMessage(ctx context.Context, client *Client, data DeleteMessageData) {
	if err := h.chat.Delete(ctx, data.MessageID, data.RoomID, client.UserID); err != nil {
		client.sendError(err.Error(), errorCode(err))
		return
	}

	// 广播刷新后的近期消息，房间内所有客户端据此重绘
	views, err := h.chat.GetMessages(ctx, data.RoomID, 1, 50, client.UserID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", data.RoomID).Error("Failed to load messages after delete")
		return
	}
	messages := make([]MessageEventData, 0, len(views))
	for _, v := range views {
		messages = append(messages, MessageEventData{
			ID:        v.ID,
			Content:   v.Content,
			UserID:    v.UserID,
			RoomID:    v.RoomID,
			CreatedAt: v.CreatedAt,
			User:      v.User,
		})
	}
	h.broadcast(ctx, data.RoomID, EventMessagesUpdated, MessagesUpdatedData{
		RoomID:   data.RoomID,
		Messages: messages,
	})
}

func (h *Hub) handleGetRoomMembers(ctx context.Context, client *Client, roomID uint) {
	members, err := h.rooms.ListMembers(ctx, roomID, client.UserID)
	if err != nil {
		client.sendError(err.Error(), errorCode(err))
		return
	}

	payload, err := NewEnvelope(EventRoomMembers, RoomMembersData{RoomID: roomID, Members: members})
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal roomMembers event")
		return
	}
	client.enqueue(payload)
}

// errorCode 把服务层错误映射为出站错误码。
func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return CodeInvalidRequest
	case errors.Is(err, service.ErrAuthenticationFailed), errors.Is(err, service.ErrNotMember):
		// 成员资格缺失对 socket 客户端而言等同于未授权
		return CodeUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return CodeForbidden
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrMembershipNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrAlreadyMember), errors.Is(err, service.ErrDuplicateRoomName):
		return CodeConflict
	case errors.Is(err, service.ErrRateLimited):
		return CodeRateLimit
	default:
		return CodeServerError
	}
}
