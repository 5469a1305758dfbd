package hub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
	"github.com/ricky-ultimate/convo-backend/internal/repository/mocks"
	"github.com/ricky-ultimate/convo-backend/internal/service"
)

func newTestHub(stateRepo *mocks.StateRepository) (*Hub, *mocks.MembershipRepository, *mocks.RoomRepository, *mocks.UserRepository, *mocks.MessageRepository) {
	membershipRepo := new(mocks.MembershipRepository)
	roomRepo := new(mocks.RoomRepository)
	userRepo := new(mocks.UserRepository)
	messageRepo := new(mocks.MessageRepository)
	rooms := service.NewRoomService(roomRepo, userRepo, membershipRepo, nil)
	chat := service.NewChatService(messageRepo, stateRepo, rooms, nil, service.RateLimitPolicy{Points: 5, Window: 10 * time.Second})
	return NewHub(rooms, chat, stateRepo), membershipRepo, roomRepo, userRepo, messageRepo
}

// expectSubscription 让 SubscribeRoom 返回一个可控频道，并记录退订调用。
func expectSubscription(stateRepo *mocks.StateRepository, roomID uint) (chan []byte, *bool) {
	ch := make(chan []byte, 8)
	stopped := false
	stateRepo.On("SubscribeRoom", mock.Anything, roomID).
		Return((<-chan []byte)(ch), func() { stopped = true; close(ch) }, nil)
	return ch, &stopped
}

func TestEnvelopeShape(t *testing.T) {
	payload, err := NewEnvelope(EventUserJoined, PresenceData{
		RoomID: 3,
		User:   domain.PublicIdentity{ID: 1, Username: "alice"},
	})
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(payload, &envelope))
	assert.Equal(t, EventUserJoined, envelope.Event)

	var data PresenceData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, uint(3), data.RoomID)
	assert.Equal(t, "alice", data.User.Username)
}

func TestAttachDetachManagesSubscription(t *testing.T) {
	// Arrange
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	_, stopped := expectSubscription(stateRepo, 3)

	a := NewClient(h, nil, "conn-a", 1, "alice")
	b := NewClient(h, nil, "conn-b", 2, "bob")
	h.addClient(a)
	h.addClient(b)

	// Act: 两个连接先后挂入同一房间
	h.attachToRoom(a, 3)
	h.attachToRoom(b, 3)

	// Assert: 只订阅一次
	stateRepo.AssertNumberOfCalls(t, "SubscribeRoom", 1)

	// 第一个连接离开不退订
	h.detachFromRoom(a, 3)
	assert.False(t, *stopped)

	// 最后一个连接离开后退订
	h.detachFromRoom(b, 3)
	assert.True(t, *stopped)
}

func TestForwardRoomEventsDeliversToLocalClients(t *testing.T) {
	// Arrange
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	ch, _ := expectSubscription(stateRepo, 3)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)
	h.attachToRoom(client, 3)

	// Act: 频道收到一帧
	frame := []byte(`{"event":"message","data":{}}`)
	ch <- frame

	// Assert: 帧被投递到本地连接的出站缓冲
	select {
	case got := <-client.send:
		assert.Equal(t, frame, got)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered to local client")
	}
}

func TestBroadcastFallsBackToLocalDelivery(t *testing.T) {
	// Arrange: 发布失败
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	expectSubscription(stateRepo, 3)
	stateRepo.On("PublishRoomEvent", mock.Anything, uint(3), mock.Anything).Return(assert.AnError)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)
	h.attachToRoom(client, 3)

	// Act
	h.broadcast(h.ctx, 3, EventUserLeft, PresenceData{RoomID: 3})

	// Assert: 退化为本地投递，帧仍然到达
	select {
	case got := <-client.send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(got, &envelope))
		assert.Equal(t, EventUserLeft, envelope.Event)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered locally")
	}
}

func TestBroadcastDeliversLocallyWhenSubscriptionFailed(t *testing.T) {
	// Arrange: 订阅失败但发布可用 (本实例收不到自己发布的帧)
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	stateRepo.On("SubscribeRoom", mock.Anything, uint(3)).
		Return((<-chan []byte)(nil), (func())(nil), assert.AnError)
	stateRepo.On("PublishRoomEvent", mock.Anything, uint(3), mock.Anything).Return(nil)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)
	h.attachToRoom(client, 3)

	// Act
	h.broadcast(h.ctx, 3, EventUserJoined, PresenceData{RoomID: 3})

	// Assert: 帧仍通过本地投递到达
	select {
	case got := <-client.send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(got, &envelope))
		assert.Equal(t, EventUserJoined, envelope.Event)
	case <-time.After(time.Second):
		t.Fatal("frame was not delivered locally")
	}
}

func TestAttachRetriesFailedSubscription(t *testing.T) {
	// Arrange: 首次订阅失败，第二次成功
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	stateRepo.On("SubscribeRoom", mock.Anything, uint(3)).
		Return((<-chan []byte)(nil), (func())(nil), assert.AnError).Once()
	ch, _ := expectSubscription(stateRepo, 3)
	stateRepo.On("PublishRoomEvent", mock.Anything, uint(3), mock.Anything).Return(nil)

	a := NewClient(h, nil, "conn-a", 1, "alice")
	b := NewClient(h, nil, "conn-b", 2, "bob")
	h.addClient(a)
	h.addClient(b)

	// Act: 第二个连接 attach 时重试订阅
	h.attachToRoom(a, 3)
	h.attachToRoom(b, 3)

	// Assert: 订阅恢复，频道帧正常投递，广播不再额外本地投递
	stateRepo.AssertNumberOfCalls(t, "SubscribeRoom", 2)
	frame := []byte(`{"event":"message","data":{}}`)
	ch <- frame
	for _, client := range []*Client{a, b} {
		select {
		case got := <-client.send:
			assert.Equal(t, frame, got)
		case <-time.After(time.Second):
			t.Fatal("frame was not delivered after subscription recovered")
		}
	}

	h.broadcast(h.ctx, 3, EventUserLeft, PresenceData{RoomID: 3})
	assert.Empty(t, a.send)
}

func TestRemoveClientCleansRoomIndex(t *testing.T) {
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	_, stopped := expectSubscription(stateRepo, 3)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)
	h.attachToRoom(client, 3)

	// Act: 连接断开
	h.removeClient(client)

	// Assert: 房间索引清空并退订
	h.mu.RLock()
	_, hasRoom := h.roomClients[3]
	_, hasClient := h.clientRooms[client]
	h.mu.RUnlock()
	assert.False(t, hasRoom)
	assert.False(t, hasClient)
	assert.True(t, *stopped)
}

func TestHandleJoinRoomBroadcastsUserJoined(t *testing.T) {
	// Arrange
	stateRepo := new(mocks.StateRepository)
	h, membershipRepo, roomRepo, userRepo, _ := newTestHub(stateRepo)
	expectSubscription(stateRepo, 3)
	userRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.User{ID: 1, Username: "alice"}, nil)
	roomRepo.On("FindByID", mock.Anything, uint(3)).Return(&domain.Room{ID: 3, Name: "general"}, nil)
	membershipRepo.On("Create", mock.Anything, mock.Anything).Return(nil)

	var published []byte
	stateRepo.On("PublishRoomEvent", mock.Anything, uint(3), mock.Anything).
		Run(func(args mock.Arguments) {
			published = args.Get(2).([]byte)
		}).Return(nil)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)

	// Act
	h.HandleEvent(client, Envelope{Event: EventJoinRoom, Data: json.RawMessage(`{"roomId":3}`)})

	// Assert
	require.NotNil(t, published)
	var envelope Envelope
	require.NoError(t, json.Unmarshal(published, &envelope))
	assert.Equal(t, EventUserJoined, envelope.Event)

	var data PresenceData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, "alice", data.User.Username)
}

func TestHandleJoinRoomRejoinAttachesWithoutBroadcast(t *testing.T) {
	// Arrange: 用户已是成员 (断线重连)
	stateRepo := new(mocks.StateRepository)
	h, membershipRepo, roomRepo, userRepo, _ := newTestHub(stateRepo)
	expectSubscription(stateRepo, 3)
	userRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.User{ID: 1, Username: "alice"}, nil)
	roomRepo.On("FindByID", mock.Anything, uint(3)).Return(&domain.Room{ID: 3}, nil)
	membershipRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)

	// Act
	h.HandleEvent(client, Envelope{Event: EventJoinRoom, Data: json.RawMessage(`{"roomId":3}`)})

	// Assert: 恢复本地索引但不广播，也不回错误
	h.mu.RLock()
	attached := h.roomClients[3][client]
	h.mu.RUnlock()
	assert.True(t, attached)
	stateRepo.AssertNotCalled(t, "PublishRoomEvent", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, client.send)
}

func TestHandleLeaveRoomDetachesEvenWhenNotAMember(t *testing.T) {
	// Arrange: 成员关系不存在
	stateRepo := new(mocks.StateRepository)
	h, membershipRepo, _, _, _ := newTestHub(stateRepo)
	expectSubscription(stateRepo, 3)
	membershipRepo.On("Delete", mock.Anything, uint(3), uint(1)).
		Return(repository.ErrNotFound)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)
	h.attachToRoom(client, 3)

	// Act
	h.HandleEvent(client, Envelope{Event: EventLeaveRoom, Data: json.RawMessage(`{"roomId":3}`)})

	// Assert: 本地退订无条件执行，同时回错误帧
	h.mu.RLock()
	_, attached := h.roomClients[3]
	h.mu.RUnlock()
	assert.False(t, attached)

	select {
	case got := <-client.send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(got, &envelope))
		assert.Equal(t, EventError, envelope.Event)
	case <-time.After(time.Second):
		t.Fatal("error event was not sent")
	}
	stateRepo.AssertNotCalled(t, "PublishRoomEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessageSendsErrorOnRateLimit(t *testing.T) {
	// Arrange
	stateRepo := new(mocks.StateRepository)
	h, membershipRepo, _, _, _ := newTestHub(stateRepo)
	membershipRepo.On("Find", mock.Anything, uint(3), uint(1)).
		Return(&domain.Membership{RoomID: 3, UserID: 1}, nil)
	stateRepo.On("ConsumeRateLimit", mock.Anything, "conn:conn-a", 5, 10*time.Second).Return(false, nil)

	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)

	// Act
	h.HandleEvent(client, Envelope{Event: EventMessage, Data: json.RawMessage(`{"roomId":3,"content":"hi"}`)})

	// Assert: 定向错误回复携带 RATE_LIMIT 码，不广播
	select {
	case got := <-client.send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(got, &envelope))
		assert.Equal(t, EventError, envelope.Event)
		var data ErrorData
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
		assert.Equal(t, CodeRateLimit, data.Code)
	case <-time.After(time.Second):
		t.Fatal("error event was not sent")
	}
	stateRepo.AssertNotCalled(t, "PublishRoomEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEventMalformedPayload(t *testing.T) {
	stateRepo := new(mocks.StateRepository)
	h, _, _, _, _ := newTestHub(stateRepo)
	client := NewClient(h, nil, "conn-a", 1, "alice")
	h.addClient(client)

	h.HandleEvent(client, Envelope{Event: EventJoinRoom, Data: json.RawMessage(`{"roomId":"three"}`)})

	select {
	case got := <-client.send:
		var envelope Envelope
		require.NoError(t, json.Unmarshal(got, &envelope))
		var data ErrorData
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
		assert.Equal(t, CodeInvalidRequest, data.Code)
	case <-time.After(time.Second):
		t.Fatal("error event was not sent")
	}
}

func TestErrorCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{service.ErrInvalidInput, CodeInvalidRequest},
		{service.ErrAuthenticationFailed, CodeUnauthorized},
		{service.ErrNotMember, CodeUnauthorized},
		{service.ErrForbidden, CodeForbidden},
		{service.ErrRoomNotFound, CodeNotFound},
		{service.ErrMessageNotFound, CodeNotFound},
		{service.ErrMembershipNotFound, CodeNotFound},
		{service.ErrAlreadyMember, CodeConflict},
		{service.ErrDuplicateRoomName, CodeConflict},
		{service.ErrRateLimited, CodeRateLimit},
		{service.ErrInternalServer, CodeServerError},
		{assert.AnError, CodeServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, errorCode(tc.err), tc.err.Error())
	}
}
