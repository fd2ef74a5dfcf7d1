package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sergeiliashko/zero2prod/internal/model"
	"github.com/sergeiliashko/zero2prod/internal/repository"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// 用户不存在时也跑一次校验，避免用响应时间探测用户名
const dummyPasswordHash = "$argon2id$v=19$m=15000,t=2,p=1$" +
	"Z2VuZXJpY3NhbHR2YWx1ZQ$K5fsgraDLJIEzJDWZrfAHpb1Y5uL3u0g6+Yq2Q2bThc"

// AuthService 后台用户认证：口令登录 + API Bearer token
type AuthService struct {
	users     repository.UserRepository
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users repository.UserRepository, jwtSecret string, jwtTTL time.Duration) *AuthService {
	if jwtTTL <= 0 {
		jwtTTL = time.Hour
	}
	return &AuthService{users: users, jwtSecret: []byte(jwtSecret), jwtTTL: jwtTTL}
}

// ValidateCredentials 校验用户名口令，成功返回用户
func (s *AuthService) ValidateCredentials(ctx context.Context, username, password string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	hash := dummyPasswordHash
	if user != nil {
		hash = user.PasswordHash
	}
	ok, err := VerifyPassword(hash, password)
	if err != nil || !ok || user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ChangePassword 校验当前口令后替换哈希
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return ErrInvalidCredentials
	}
	ok, err := VerifyPassword(user.PasswordHash, current)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, hash)
}

// IssueToken 给 API 调用方签发 Bearer token
func (s *AuthService) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

// VerifyToken 解析并校验 Bearer token，返回用户 id
func (s *AuthService) VerifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
