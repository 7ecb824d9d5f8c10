package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// 认证通过后写入gin上下文的键
const (
	ctxUserID    = "userID"
	ctxUsername  = "username"
	ctxRole      = "role"
	ctxSessionID = "sessionID"
	ctxToken     = "token"
)

// AuthMiddleware JWT认证中间件
type AuthMiddleware struct {
	authService service.AuthService
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(authService service.AuthService) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// RequireAuth 拒绝未携带有效令牌的请求
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

// RequireRole 在认证基础上校验角色
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}

		role, _ := GetUserRole(c)
		for _, want := range roles {
			if role == want {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"code":    "INSUFFICIENT_PERMISSION",
			"message": "权限不足",
		})
		c.Abort()
	}
}

// OptionalAuth 带令牌时解析身份，无令牌直接放行。
// 机台前端与设备服务同机部署，事件流不强制登录
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if claims, err := m.authService.ValidateToken(c.Request.Context(), token); err == nil {
				setIdentity(c, claims, token)
			}
		}
		c.Next()
	}
}

// authenticate 校验令牌并写入身份，失败时响应401并中止请求
func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	token := extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "NO_TOKEN",
			"message": "缺少认证令牌",
		})
		c.Abort()
		return false
	}

	claims, err := m.authService.ValidateToken(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_TOKEN",
			"message": "无效的令牌",
			"details": err.Error(),
		})
		c.Abort()
		return false
	}

	setIdentity(c, claims, token)
	return true
}

func setIdentity(c *gin.Context, claims *service.TokenClaims, token string) {
	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxUsername, claims.Username)
	c.Set(ctxRole, claims.Role)
	c.Set(ctxSessionID, claims.SessionID)
	c.Set(ctxToken, token)
}

// extractToken 依次尝试Authorization头、X-Access-Token头、token查询参数。
// 查询参数留给浏览器WebSocket这类设不了Header的客户端
func extractToken(c *gin.Context) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	return c.Query("token")
}

// GetUserID 从上下文取账号ID
func GetUserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(ctxUserID)
	if !ok {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}

// GetUsername 从上下文取用户名
func GetUsername(c *gin.Context) (string, bool) {
	value, ok := c.Get(ctxUsername)
	if !ok {
		return "", false
	}
	username, ok := value.(string)
	return username, ok
}

// GetUserRole 从上下文取角色
func GetUserRole(c *gin.Context) (string, bool) {
	value, ok := c.Get(ctxRole)
	if !ok {
		return "", false
	}
	role, ok := value.(string)
	return role, ok
}

// GetSessionID 从上下文取会话ID
func GetSessionID(c *gin.Context) (string, bool) {
	value, ok := c.Get(ctxSessionID)
	if !ok {
		return "", false
	}
	sessionID, ok := value.(string)
	return sessionID, ok
}

// GetToken 从上下文取原始令牌
func GetToken(c *gin.Context) (string, bool) {
	value, ok := c.Get(ctxToken)
	if !ok {
		return "", false
	}
	token, ok := value.(string)
	return token, ok
}
