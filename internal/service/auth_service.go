package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("用户名或密码错误")
	ErrUserNotFound       = errors.New("账号不存在")
	ErrUserDisabled       = errors.New("账号已停用")
	ErrSessionNotFound    = errors.New("会话不存在")
	ErrInvalidToken       = errors.New("无效的令牌")
	ErrTokenExpired       = errors.New("令牌已过期")
)

// sessionTTL 运维端会话有效期
const sessionTTL = 7 * 24 * time.Hour

// authService 认证服务实现
type authService struct {
	db          *gorm.DB
	userRepo    repository.UserRepository
	sessionRepo repository.UserSessionRepository
	jwtManager  *utils.JWTManager
	log         *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(
	db *gorm.DB,
	userRepo repository.UserRepository,
	sessionRepo repository.UserSessionRepository,
	jwtManager *utils.JWTManager,
	log *zap.Logger,
) AuthService {
	return &authService{
		db:          db,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		jwtManager:  jwtManager,
		log:         log,
	}
}

// Login 运维账号登录
func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil || user == nil {
		s.log.Warn("Login failed: user not found", zap.String("username", req.Username))
		return nil, ErrInvalidCredentials
	}

	// 检查账号状态
	if !user.IsActive() {
		return nil, ErrUserDisabled
	}

	// 验证密码
	valid, err := utils.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !valid {
		s.log.Warn("Login failed: invalid password", zap.Uint("userID", user.ID))
		return nil, ErrInvalidCredentials
	}

	// 创建会话
	sessionID, err := utils.GenerateSessionID()
	if err != nil {
		return nil, fmt.Errorf("生成会话ID失败: %w", err)
	}

	// 生成JWT令牌
	accessToken, err := s.jwtManager.GenerateAccessToken(
		user.ID, user.Username, user.Role, sessionID)
	if err != nil {
		return nil, fmt.Errorf("生成访问令牌失败: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("生成刷新令牌失败: %w", err)
	}

	session := &models.UserSession{
		UserID:       user.ID,
		SessionID:    sessionID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		IP:           req.IP,
		UserAgent:    req.Device,
		LastActiveAt: time.Now(),
		ExpireAt:     time.Now().Add(sessionTTL),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		s.log.Error("Failed to create session", zap.Error(err))
		return nil, fmt.Errorf("创建会话失败: %w", err)
	}

	// 更新登录信息
	user.UpdateLoginInfo(req.IP)
	_ = s.userRepo.Update(ctx, user)

	s.log.Info("User logged in successfully",
		zap.Uint("userID", user.ID),
		zap.String("username", user.Username),
		zap.String("role", user.Role))

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// Logout 登出
func (s *authService) Logout(ctx context.Context, userID uint, token string) error {
	if _, err := s.jwtManager.ValidateToken(token); err != nil {
		return ErrInvalidToken
	}

	if err := s.sessionRepo.Delete(ctx, token); err != nil {
		s.log.Error("Failed to delete session", zap.Error(err), zap.Uint("userID", userID))
		return fmt.Errorf("删除会话失败: %w", err)
	}

	s.log.Info("User logged out successfully", zap.Uint("userID", userID))
	return nil
}

// RefreshToken 刷新访问令牌
// 要求刷新令牌对应的会话仍在库中，登出或被撤销后刷新失败
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if claims.TokenType != utils.TokenTypeRefresh {
		return nil, errors.New("不是刷新令牌")
	}

	session, err := s.sessionRepo.FindByRefreshToken(ctx, refreshToken)
	if err != nil || session == nil {
		return nil, ErrSessionNotFound
	}

	// 获取用户信息
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil || user == nil {
		return nil, ErrUserNotFound
	}

	if !user.IsActive() {
		return nil, ErrUserDisabled
	}

	// 生成新的访问令牌并顺延会话
	accessToken, err := s.jwtManager.GenerateAccessToken(
		user.ID, user.Username, user.Role, claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("生成访问令牌失败: %w", err)
	}

	if err := s.sessionRepo.UpdateToken(ctx, session.SessionID, accessToken, time.Now().Add(sessionTTL)); err != nil {
		s.log.Error("Failed to rotate session token", zap.Error(err), zap.Uint("userID", user.ID))
		return nil, fmt.Errorf("更新会话失败: %w", err)
	}

	s.log.Info("Token refreshed successfully", zap.Uint("userID", user.ID))

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.jwtManager.GetTokenExpiry(utils.TokenTypeAccess).Seconds()),
		TokenType:    "Bearer",
	}, nil
}

// ValidateToken 验证访问令牌
// JWT校验通过后还要求对应会话仍然在库且未过期，被撤销的令牌立即失效
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil || session == nil {
		return nil, ErrSessionNotFound
	}

	if session.IsExpired() {
		return nil, ErrTokenExpired
	}

	_ = s.sessionRepo.UpdateLastActive(ctx, token)

	return &TokenClaims{
		UserID:    claims.UserID,
		Username:  claims.Username,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		IssuedAt:  claims.IssuedAt.Unix(),
		ExpiresAt: claims.ExpiresAt.Unix(),
	}, nil
}

// ValidateSession 验证会话
func (s *authService) ValidateSession(ctx context.Context, token string) (*models.UserSession, error) {
	session, err := s.sessionRepo.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if session.IsExpired() {
		return nil, ErrTokenExpired
	}

	return session, nil
}

// GetActiveSessions 获取活跃会话
func (s *authService) GetActiveSessions(ctx context.Context, userID uint) ([]*models.UserSession, error) {
	return s.sessionRepo.FindByUserID(ctx, userID)
}

// RevokeSession 撤销会话
func (s *authService) RevokeSession(ctx context.Context, token string) error {
	return s.sessionRepo.Delete(ctx, token)
}

// RevokeAllSessions 撤销用户所有会话
func (s *authService) RevokeAllSessions(ctx context.Context, userID uint) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		s.log.Error("Failed to revoke sessions", zap.Error(err), zap.Uint("userID", userID))
		return fmt.Errorf("撤销会话失败: %w", err)
	}
	return nil
}

// CleanupExpiredSessions 清理过期会话，由组装层定时调用
func (s *authService) CleanupExpiredSessions(ctx context.Context) error {
	return s.sessionRepo.CleanupExpired(ctx)
}
