package service_test

import (
	"context"
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

// mockRefresher 记录会话刷新入队调用。
type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) EnqueueSessionRefresh(userID uint) error {
	args := m.Called(userID)
	return args.Error(0)
}

type roomServiceMocks struct {
	roomRepo       *mocks.RoomRepository
	userRepo       *mocks.UserRepository
	membershipRepo *mocks.MembershipRepository
	refresher      *mockRefresher
}

func newRoomService() (*service.RoomService, *roomServiceMocks) {
	m := &roomServiceMocks{
		roomRepo:       new(mocks.RoomRepository),
		userRepo:       new(mocks.UserRepository),
		membershipRepo: new(mocks.MembershipRepository),
		refresher:      new(mockRefresher),
	}
	svc := service.NewRoomService(m.roomRepo, m.userRepo, m.membershipRepo, m.refresher)
	return svc, m
}

func TestCreateRoomSuccess(t *testing.T) {
	// Arrange
	svc, m := newRoomService()
	m.roomRepo.On("Save", mock.Anything, mock.AnythingOfType("*domain.Room")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 3
		}).Return(nil)

	// Act
	room, err := svc.CreateRoom(context.Background(), "  general  ", 1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(3), room.ID)
	assert.Equal(t, "general", room.Name) // 首尾空白被去除
	assert.Equal(t, uint(1), room.CreatorID)
}

func TestCreateRoomInvalidName(t *testing.T) {
	svc, _ := newRoomService()

	longName := make([]rune, 51)
	for i := range longName {
		longName[i] = 'a'
	}

	cases := []struct {
		name     string
		roomName string
	}{
		{"empty", ""},
		{"whitespace only", "   "},
		{"over 50 chars", string(longName)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRoom(context.Background(), tc.roomName, 1)
			assert.ErrorIs(t, err, service.ErrInvalidInput)
		})
	}
}

func TestCreateRoomDuplicateName(t *testing.T) {
	svc, m := newRoomService()
	m.roomRepo.On("Save", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	_, err := svc.CreateRoom(context.Background(), "general", 1)

	assert.ErrorIs(t, err, service.ErrDuplicateRoomName)
}

func TestGetRoomByName(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc, m := newRoomService()
		m.roomRepo.On("FindByName", mock.Anything, "general").
			Return(&domain.Room{ID: 3, Name: "general"}, nil)

		room, err := svc.GetRoomByName(context.Background(), " general ")

		require.NoError(t, err)
		assert.Equal(t, uint(3), room.ID)
	})

	t.Run("missing", func(t *testing.T) {
		svc, m := newRoomService()
		m.roomRepo.On("FindByName", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)

		_, err := svc.GetRoomByName(context.Background(), "ghost")

		assert.ErrorIs(t, err, service.ErrRoomNotFound)
	})
}

func TestDeleteRoom(t *testing.T) {
	t.Run("creator can delete", func(t *testing.T) {
		svc, m := newRoomService()
		m.roomRepo.On("FindByID", mock.Anything, uint(3)).
			Return(&domain.Room{ID: 3, CreatorID: 1}, nil)
		m.roomRepo.On("Delete", mock.Anything, uint(3)).Return(nil)

		err := svc.DeleteRoom(context.Background(), 3, 1)

		assert.NoError(t, err)
	})

	t.Run("non-creator forbidden", func(t *testing.T) {
		svc, m := newRoomService()
		m.roomRepo.On("FindByID", mock.Anything, uint(3)).
			Return(&domain.Room{ID: 3, CreatorID: 1}, nil)

		err := svc.DeleteRoom(context.Background(), 3, 2)

		assert.ErrorIs(t, err, service.ErrForbidden)
		m.roomRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}

func TestIsMember(t *testing.T) {
	t.Run("member", func(t *testing.T) {
		svc, m := newRoomService()
		m.membershipRepo.On("Find", mock.Anything, uint(3), uint(1)).
			Return(&domain.Membership{RoomID: 3, UserID: 1}, nil)

		isMember, err := svc.IsMember(context.Background(), 3, 1)

		require.NoError(t, err)
		assert.True(t, isMember)
	})

	t.Run("not a member", func(t *testing.T) {
		svc, m := newRoomService()
		m.membershipRepo.On("Find", mock.Anything, uint(3), uint(1)).
			Return(nil, repository.ErrNotFound)

		isMember, err := svc.IsMember(context.Background(), 3, 1)

		// 房间不存在和不是成员都返回 false，不返回错误
		require.NoError(t, err)
		assert.False(t, isMember)
	})
}

func TestJoinSuccess(t *testing.T) {
	// Arrange
	svc, m := newRoomService()
	m.userRepo.On("FindByID", mock.Anything, uint(1)).
		Return(&domain.User{ID: 1, Username: "alice"}, nil)
	m.roomRepo.On("FindByID", mock.Anything, uint(3)).
		Return(&domain.Room{ID: 3, Name: "general"}, nil)
	m.membershipRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Membership")).Return(nil)
	m.refresher.On("EnqueueSessionRefresh", uint(1)).Return(nil)

	// Act
	room, err := svc.Join(context.Background(), 3, 1)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	// 加入成功后必须刷新会话 TTL
	m.refresher.AssertCalled(t, "EnqueueSessionRefresh", uint(1))
}

func TestJoinRoomNotFound(t *testing.T) {
	svc, m := newRoomService()
	m.userRepo.On("FindByID", mock.Anything, uint(1)).
		Return(&domain.User{ID: 1}, nil)
	m.roomRepo.On("FindByID", mock.Anything, uint(99)).Return(nil, repository.ErrNotFound)

	_, err := svc.Join(context.Background(), 99, 1)

	assert.ErrorIs(t, err, service.ErrRoomNotFound)
}

func TestJoinAlreadyMember(t *testing.T) {
	svc, m := newRoomService()
	m.userRepo.On("FindByID", mock.Anything, uint(1)).Return(&domain.User{ID: 1}, nil)
	m.roomRepo.On("FindByID", mock.Anything, uint(3)).Return(&domain.Room{ID: 3}, nil)
	m.membershipRepo.On("Create", mock.Anything, mock.Anything).Return(repository.ErrDuplicateEntry)

	_, err := svc.Join(context.Background(), 3, 1)

	// 重复加入幂等失败，不产生第二条成员记录
	assert.ErrorIs(t, err, service.ErrAlreadyMember)
	m.refresher.AssertNotCalled(t, "EnqueueSessionRefresh", mock.Anything)
}

func TestLeave(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc, m := newRoomService()
		m.membershipRepo.On("Delete", mock.Anything, uint(3), uint(1)).Return(nil)

		err := svc.Leave(context.Background(), 3, 1)

		assert.NoError(t, err)
	})

	t.Run("not a member", func(t *testing.T) {
		svc, m := newRoomService()
		m.membershipRepo.On("Delete", mock.Anything, uint(3), uint(1)).
			Return(repository.ErrNotFound)

		err := svc.Leave(context.Background(), 3, 1)

		assert.ErrorIs(t, err, service.ErrMembershipNotFound)
	})
}

func TestListMembers(t *testing.T) {
	// Arrange
	svc, m := newRoomService()
	earlier := time.Now().Add(-time.Hour)
	later := time.Now()
	m.membershipRepo.On("Find", mock.Anything, uint(3), uint(1)).
		Return(&domain.Membership{RoomID: 3, UserID: 1}, nil)
	m.membershipRepo.On("ListByRoom", mock.Anything, uint(3)).Return([]domain.Membership{
		{UserID: 1, JoinedAt: earlier, User: &domain.User{ID: 1, Username: "alice"}},
		{UserID: 2, JoinedAt: later, User: &domain.User{ID: 2, Username: "bob"}},
	}, nil)

	// Act
	members, err := svc.ListMembers(context.Background(), 3, 1)

	// Assert
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
	assert.Equal(t, "bob", members[1].Username)
	assert.True(t, members[0].JoinedAt.Before(members[1].JoinedAt))
}

func TestListMembersRequiresMembership(t *testing.T) {
	svc, m := newRoomService()
	m.membershipRepo.On("Find", mock.Anything, uint(3), uint(9)).
		Return(nil, repository.ErrNotFound)

	_, err := svc.ListMembers(context.Background(), 3, 9)

	assert.ErrorIs(t, err, service.ErrNotMember)
	m.membershipRepo.AssertNotCalled(t, "ListByRoom", mock.Anything, mock.Anything)
}

func TestListRoomsForUserSkipsDeletedRooms(t *testing.T) {
	svc, m := newRoomService()
	m.membershipRepo.On("ListByUser", mock.Anything, uint(1)).Return([]domain.Membership{
		{RoomID: 3, UserID: 1},
		{RoomID: 4, UserID: 1},
	}, nil)
	m.roomRepo.On("FindByID", mock.Anything, uint(3)).Return(&domain.Room{ID: 3, Name: "general"}, nil)
	m.roomRepo.On("FindByID", mock.Anything, uint(4)).Return(nil, repository.ErrNotFound)

	rooms, err := svc.ListRoomsForUser(context.Background(), 1)

	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, uint(3), rooms[0].ID)
}
