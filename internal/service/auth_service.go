package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/adsboard-next/internal/cache"
	"github.com/adsboard-next/internal/config"
	"github.com/adsboard-next/internal/constants"
	"github.com/adsboard-next/internal/logger"
	"github.com/adsboard-next/internal/models"
	"github.com/adsboard-next/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService 后台用户认证服务
// 只负责身份，角色与权限判定由 authz.Service 完成。
type AuthService struct {
	cfg      *config.Config
	userRepo repository.UserRepository
}

// NewAuthService 创建认证服务实例
func NewAuthService(cfg *config.Config, userRepo repository.UserRepository) *AuthService {
	return &AuthService{
		cfg:      cfg,
		userRepo: userRepo,
	}
}

// HashPassword 使用 bcrypt 加密密码
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword 验证密码
func (s *AuthService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword 校验密码是否符合策略
func (s *AuthService) ValidatePassword(password string) error {
	if s == nil || s.cfg == nil {
		return nil
	}
	return validatePassword(s.cfg.Security.PasswordPolicy, password)
}

// JWTClaims JWT 声明
type JWTClaims struct {
	UserID       uint   `json:"user_id"`
	Email        string `json:"email"`
	TokenVersion uint64 `json:"token_version"`
	jwt.RegisteredClaims
}

// GenerateJWT 生成 JWT Token
func (s *AuthService) GenerateJWT(user *models.User) (string, time.Time, error) {
	now := time.Now()
	hours := s.cfg.JWT.ExpireHours
	if hours <= 0 {
		hours = 24
	}
	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	claims := JWTClaims{
		UserID:       user.ID,
		Email:        user.Email,
		TokenVersion: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.JWT.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析 JWT Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid && claims.UserID != 0 {
		return claims, nil
	}
	return nil, errors.New("无效的 token")
}

// Login 后台用户登录
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, time.Time, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	user, err := s.userRepo.WithContext(ctx).GetByEmail(email)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if user == nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err := s.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if user.Status != constants.UserStatusActive {
		return nil, "", time.Time{}, ErrUserDisabled
	}

	token, expiresAt, err := s.GenerateJWT(user)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	now := time.Now()
	if err := s.userRepo.WithContext(ctx).UpdateLastLogin(user.ID, now); err != nil {
		logger.Warnw("user_last_login_update_failed", "user_id", user.ID, "error", err)
	} else {
		user.LastLoginAt = &now
	}
	if err := cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user)); err != nil {
		logger.Debugw("user_auth_state_cache_set_failed", "user_id", user.ID, "error", err)
	}
	return user, token, expiresAt, nil
}

// ChangePassword 修改密码并使旧 Token 全部失效
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if err := s.VerifyPassword(user.PasswordHash, oldPassword); err != nil {
		return ErrInvalidPassword
	}
	if err := s.ValidatePassword(newPassword); err != nil {
		return err
	}
	hashedPassword, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}

	now := time.Now()
	user.PasswordHash = hashedPassword
	user.TokenVersion++
	user.TokenInvalidBefore = &now
	if err := s.userRepo.WithContext(ctx).Update(user); err != nil {
		return err
	}
	_ = cache.SetUserAuthState(ctx, cache.BuildUserAuthState(user))
	return nil
}

// VerifyTokenState 校验 Token 是否仍然有效（账号状态、Token 版本、失效时间点）
// 优先读取 Redis 快照，未命中时回源数据库并回写缓存。
func (s *AuthService) VerifyTokenState(ctx context.Context, claims *JWTClaims) error {
	if claims == nil || claims.UserID == 0 {
		return ErrTokenRevoked
	}
	state, hit, err := cache.GetUserAuthState(ctx, claims.UserID)
	if err != nil {
		logger.Debugw("user_auth_state_cache_get_failed", "user_id", claims.UserID, "error", err)
	}
	if !hit || state == nil {
		user, err := s.userRepo.WithContext(ctx).GetByID(claims.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrTokenRevoked
		}
		state = cache.BuildUserAuthState(user)
		_ = cache.SetUserAuthState(ctx, state)
	}

	if state.Status != constants.UserStatusActive {
		return ErrUserDisabled
	}
	if state.TokenVersion != claims.TokenVersion {
		return ErrTokenRevoked
	}
	if state.TokenInvalidBefore > 0 && claims.IssuedAt != nil && claims.IssuedAt.Unix() < state.TokenInvalidBefore {
		return ErrTokenRevoked
	}
	return nil
}
