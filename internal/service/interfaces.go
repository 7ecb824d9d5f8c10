package service

import (
	"context"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
)

// UserService 运维账号服务接口
type UserService interface {
	// 账号管理
	GetUserByID(ctx context.Context, userID uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error)
	UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	UpdateNickname(ctx context.Context, userID uint, nickname string) error
	GetUserList(ctx context.Context, page, pageSize int) ([]*models.User, int64, error)

	// 账号状态
	UpdateUserStatus(ctx context.Context, userID uint, status string) error
	DisableUser(ctx context.Context, userID uint) error
	EnableUser(ctx context.Context, userID uint) error
}

// AuthService 运维端认证服务接口
type AuthService interface {
	// 登录登出
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	Logout(ctx context.Context, userID uint, token string) error
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)

	// 验证
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
	ValidateSession(ctx context.Context, token string) (*models.UserSession, error)

	// 会话管理
	GetActiveSessions(ctx context.Context, userID uint) ([]*models.UserSession, error)
	RevokeSession(ctx context.Context, token string) error
	RevokeAllSessions(ctx context.Context, userID uint) error
	CleanupExpiredSessions(ctx context.Context) error
}

// CreateUserRequest 创建运维账号请求（仅管理员）
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20"`
	Password string `json:"password" binding:"required,min=6"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"` // admin/operator，默认operator
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Device   string `json:"device"`
	IP       string `json:"-"` // 客户端IP，由handler设置
}

// AuthResponse 认证响应
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	TokenType    string       `json:"token_type"`
}

// TokenClaims JWT Claims
type TokenClaims struct {
	UserID    uint   `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// PaymentNotifier 支付交易落库后的通知回调
// 组装层挂接WebSocket推送与MQTT上报，回调在支付调用方协程内执行
type PaymentNotifier func(tx *models.PaymentTransaction)
