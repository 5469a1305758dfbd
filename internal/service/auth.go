package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/ricky-ultimate/convo-backend/internal/domain"
	"github.com/ricky-ultimate/convo-backend/internal/repository"
)

// AuthService 处理注册、登录、登出。
// 登录成功后在 Redis 写入会话记录，成员活动会异步刷新其 TTL。
type AuthService struct {
	userRepo   repository.UserRepository
	stateRepo  repository.StateRepository
	jwtSecret  []byte
	jwtExpiry  time.Duration
	sessionTTL time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	stateRepo repository.StateRepository,
	jwtSecret string,
	jwtExpiry time.Duration,
	sessionTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		stateRepo:  stateRepo,
		jwtSecret:  []byte(jwtSecret),
		jwtExpiry:  jwtExpiry,
		sessionTTL: sessionTTL,
	}
}

// Register 创建新用户。用户名去除首尾空白后不能为空，密码至少 6 位。
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > 50 {
		return nil, ErrInvalidInput
	}
	if len(password) < 6 {
		return nil, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		return nil, ErrInternalServer
	}

	user := &domain.User{
		Username: username,
		Password: string(hash),
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrRegistrationFailed
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to create user")
		return nil, ErrInternalServer
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")
	return user, nil
}

// Login 校验凭证并签发 JWT，同时写入会话记录。
// 会话记录写入失败只记日志：令牌本身已携带过期时间，缓存不可用
// 不应阻断登录。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", nil, ErrInvalidInput
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).WithField("username", username).Error("Failed to query user")
		return "", nil, ErrInternalServer
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, ErrAuthenticationFailed
	}

	token, err := s.generateToken(user)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to sign token")
		return "", nil, ErrInternalServer
	}

	if err := s.stateRepo.SetSession(ctx, user.ID, token, s.sessionTTL); err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Warn("Failed to store session record")
	}

	logrus.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User logged in")
	return token, user, nil
}

// Logout 删除用户的会话记录。JWT 本身无法撤销，只清理服务端状态。
func (s *AuthService) Logout(ctx context.Context, userID uint) error {
	if err := s.stateRepo.DeleteSession(ctx, userID); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Failed to delete session record")
		return ErrInternalServer
	}
	return nil
}

// generateToken 签发携带 user_id 和 username 的 HS256 令牌。
func (s *AuthService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.jwtExpiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ParseToken 校验令牌签名与有效期，返回 user_id 和 username。
// HTTP 中间件和 WebSocket 握手共用该逻辑。
func ParseToken(tokenString, secret string) (uint, string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, "", ErrAuthenticationFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", ErrAuthenticationFailed
	}
	rawID, ok := claims["user_id"].(float64)
	if !ok || rawID <= 0 {
		return 0, "", ErrAuthenticationFailed
	}
	username, _ := claims["username"].(string)
	return uint(rawID), username, nil
}
