// Package mocks 提供 repository 接口的 testify mock 实现，供服务层单元测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
)

type UserRepository struct {
	mock.Mock
}

func (m *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if user, ok := args.Get(0).(*domain.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	args := m.Called(ctx, id)
	if user, ok := args.Get(0).(*domain.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *UserRepository) Save(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

type RoomRepository struct {
	mock.Mock
}

func (m *RoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	args := m.Called(ctx, id)
	if room, ok := args.Get(0).(*domain.Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) FindByName(ctx context.Context, name string) (*domain.Room, error) {
	args := m.Called(ctx, name)
	if room, ok := args.Get(0).(*domain.Room); ok {
		return room, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoomRepository) Save(ctx context.Context, room *domain.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *RoomRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MembershipRepository struct {
	mock.Mock
}

func (m *MembershipRepository) Find(ctx context.Context, roomID, userID uint) (*domain.Membership, error) {
	args := m.Called(ctx, roomID, userID)
	if membership, ok := args.Get(0).(*domain.Membership); ok {
		return membership, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MembershipRepository) Create(ctx context.Context, membership *domain.Membership) error {
	args := m.Called(ctx, membership)
	return args.Error(0)
}

func (m *MembershipRepository) Delete(ctx context.Context, roomID, userID uint) error {
	args := m.Called(ctx, roomID, userID)
	return args.Error(0)
}

func (m *MembershipRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.Membership, error) {
	args := m.Called(ctx, roomID)
	if memberships, ok := args.Get(0).([]domain.Membership); ok {
		return memberships, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MembershipRepository) ListByUser(ctx context.Context, userID uint) ([]domain.Membership, error) {
	args := m.Called(ctx, userID)
	if memberships, ok := args.Get(0).([]domain.Membership); ok {
		return memberships, args.Error(1)
	}
	return nil, args.Error(1)
}

type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Create(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MessageRepository) FindByID(ctx context.Context, id uint) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if message, ok := args.Get(0).(*domain.Message); ok {
		return message, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) ListByRoom(ctx context.Context, roomID uint, offset, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, roomID, offset, limit)
	if messages, ok := args.Get(0).([]domain.Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MessageRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) GetMessageWindow(ctx context.Context, roomID uint) ([]domain.CachedMessage, error) {
	args := m.Called(ctx, roomID)
	if messages, ok := args.Get(0).([]domain.CachedMessage); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StateRepository) SetMessageWindow(ctx context.Context, roomID uint, messages []domain.CachedMessage) error {
	args := m.Called(ctx, roomID, messages)
	return args.Error(0)
}

func (m *StateRepository) AppendToMessageWindow(ctx context.Context, roomID uint, message domain.CachedMessage) error {
	args := m.Called(ctx, roomID, message)
	return args.Error(0)
}

func (m *StateRepository) InvalidateMessageWindow(ctx context.Context, roomID uint) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *StateRepository) ConsumeRateLimit(ctx context.Context, key string, points int, duration time.Duration) (bool, error) {
	args := m.Called(ctx, key, points, duration)
	return args.Bool(0), args.Error(1)
}

func (m *StateRepository) SetSession(ctx context.Context, userID uint, token string, ttl time.Duration) error {
	args := m.Called(ctx, userID, token, ttl)
	return args.Error(0)
}

func (m *StateRepository) RefreshSession(ctx context.Context, userID uint, ttl time.Duration) error {
	args := m.Called(ctx, userID, ttl)
	return args.Error(0)
}

func (m *StateRepository) DeleteSession(ctx context.Context, userID uint) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *StateRepository) PublishRoomEvent(ctx context.Context, roomID uint, payload []byte) error {
	args := m.Called(ctx, roomID, payload)
	return args.Error(0)
}

func (m *StateRepository) SubscribeRoom(ctx context.Context, roomID uint) (<-chan []byte, func(), error) {
	args := m.Called(ctx, roomID)
	ch, _ := args.Get(0).(<-chan []byte)
	stop, _ := args.Get(1).(func())
	return ch, stop, args.Error(2)
}

func (m *StateRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
