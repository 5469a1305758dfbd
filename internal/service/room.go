package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

const maxRoomNameLength = 50

// RoomService 是房间与成员关系的唯一权威：任何房间级操作
// (加入、发送、删除、成员列表) 都必须经由它确认成员资格。
type RoomService struct {
	roomRepo       repository.RoomRepository
	userRepo       repository.UserRepository
	membershipRepo repository.MembershipRepository
	refresher      SessionRefresher
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	userRepo repository.UserRepository,
	membershipRepo repository.MembershipRepository,
	refresher SessionRefresher,
) *RoomService {
	return &RoomService{
		roomRepo:       roomRepo,
		userRepo:       userRepo,
		membershipRepo: membershipRepo,
		refresher:      refresher,
	}
}

// CreateRoom 创建房间。房间名去除首尾空白后必须为 1~50 个字符且全局唯一。
func (s *RoomService) CreateRoom(ctx context.Context, name string, creatorID uint) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxRoomNameLength {
		return nil, ErrInvalidInput
	}

	room := &domain.Room{
		Name:      name,
		CreatorID: creatorID,
	}
	if err := s.roomRepo.Save(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrDuplicateRoomName
		}
		logrus.WithError(err).WithField("room_name", name).Error("Failed to create room")
		return nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"room_id":    room.ID,
		"room_name":  room.Name,
		"creator_id": creatorID,
	}).Info("Room created")
	return room, nil
}

// GetRoom 按 ID 查询房间。
func (s *RoomService) GetRoom(ctx context.Context, roomID uint) (*domain.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to query room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// GetRoomByName 按名称查询房间 (名称全局唯一)。
func (s *RoomService) GetRoomByName(ctx context.Context, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	room, err := s.roomRepo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_name", name).Error("Failed to query room")
		return nil, ErrInternalServer
	}
	return room, nil
}

// DeleteRoom 删除房间及其全部成员关系与消息，只允许创建者执行。
// 房间的缓存窗口不主动失效：成员关系已随房间删除，任何读取都会
// 先被成员确认挡下，残留的窗口由 TTL 回收。
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, requesterID uint) error {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to query room")
		return ErrInternalServer
	}
	if room.CreatorID != requesterID {
		return ErrForbidden
	}

	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to delete room")
		return ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": requesterID,
	}).Info("Room deleted")
	return nil
}

// IsMember 判断用户是否为房间成员。房间不存在时返回 false 而非错误：
// 对调用方而言"房间不存在"和"不是成员"都意味着操作不被允许。
func (s *RoomService) IsMember(ctx context.Context, roomID, userID uint) (bool, error) {
	_, err := s.membershipRepo.Find(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		}).Error("Failed to query membership")
		return false, ErrInternalServer
	}
	return true, nil
}

// Join 将用户加入房间。加入成功后异步刷新会话 TTL。
func (s *RoomService) Join(ctx context.Context, roomID, userID uint) (*domain.Room, error) {
	if _, err := s.userRepo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to query user")
		return nil, ErrInternalServer
	}

	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to query room")
		return nil, ErrInternalServer
	}

	membership := &domain.Membership{
		RoomID: roomID,
		UserID: userID,
	}
	if err := s.membershipRepo.Create(ctx, membership); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrAlreadyMember
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		}).Error("Failed to create membership")
		return nil, ErrInternalServer
	}

	if s.refresher != nil {
		if err := s.refresher.EnqueueSessionRefresh(userID); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("Failed to enqueue session refresh")
		}
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Info("User joined room")
	return room, nil
}

// Leave 将用户移出房间。用户不是成员时返回 ErrMembershipNotFound。
func (s *RoomService) Leave(ctx context.Context, roomID, userID uint) error {
	if err := s.membershipRepo.Delete(ctx, roomID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMembershipNotFound
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		}).Error("Failed to delete membership")
		return ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"room_id": roomID,
		"user_id": userID,
	}).Info("User left room")
	return nil
}

// ListMembers 返回房间成员列表 (按加入时间升序)。
// 请求者必须是房间成员。
func (s *RoomService) ListMembers(ctx context.Context, roomID, requesterID uint) ([]domain.RoomMember, error) {
	isMember, err := s.IsMember(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotMember
	}

	memberships, err := s.membershipRepo.ListByRoom(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to list memberships")
		return nil, ErrInternalServer
	}

	members := make([]domain.RoomMember, 0, len(memberships))
	for _, m := range memberships {
		member := domain.RoomMember{
			UserID:   m.UserID,
			JoinedAt: m.JoinedAt,
		}
		if m.User != nil {
			member.Username = m.User.Username
		}
		members = append(members, member)
	}
	return members, nil
}

// ListRoomsForUser 返回用户已加入的全部房间。
// 成员关系指向的房间若已被删除则跳过。
func (s *RoomService) ListRoomsForUser(ctx context.Context, userID uint) ([]domain.Room, error) {
	memberships, err := s.membershipRepo.ListByUser(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to list memberships")
		return nil, ErrInternalServer
	}

	rooms := make([]domain.Room, 0, len(memberships))
	for _, m := range memberships {
		room, err := s.roomRepo.FindByID(ctx, m.RoomID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			logrus.WithError(err).WithField("room_id", m.RoomID).Error("Failed to query room")
			return nil, ErrInternalServer
		}
		rooms = append(rooms, *room)
	}
	return rooms, nil
}
