package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// stubAuthService 只实现令牌校验，其余方法中间件不会调用
type stubAuthService struct {
	service.AuthService
	claims map[string]*service.TokenClaims
}

func (s *stubAuthService) ValidateToken(ctx context.Context, token string) (*service.TokenClaims, error) {
	if claims, ok := s.claims[token]; ok {
		return claims, nil
	}
	return nil, errors.New("无效的令牌")
}

func newAuthTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	auth := NewAuthMiddleware(&stubAuthService{
		claims: map[string]*service.TokenClaims{
			"operator-token": {UserID: 7, Username: "operator01", Role: "operator", SessionID: "sess-op"},
			"admin-token":    {UserID: 1, Username: "admin", Role: "admin", SessionID: "sess-admin"},
		},
	})

	engine := gin.New()
	engine.GET("/protected", auth.RequireAuth(), func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	engine.GET("/admin", auth.RequireRole("admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	engine.GET("/open", auth.OptionalAuth(), func(c *gin.Context) {
		username, ok := GetUsername(c)
		if !ok {
			username = "anonymous"
		}
		c.JSON(http.StatusOK, gin.H{"username": username})
	})
	return engine
}

// TestRequireAuthRejectsMissingToken 无令牌返回401
func TestRequireAuthRejectsMissingToken(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "NO_TOKEN")
}

// TestRequireAuthRejectsInvalidToken 无效令牌返回401
func TestRequireAuthRejectsInvalidToken(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

// TestRequireAuthAcceptsBearerToken 有效令牌放行并写入身份
func TestRequireAuthAcceptsBearerToken(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer operator-token")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":7`)
}

// TestRequireAuthAcceptsQueryToken WebSocket客户端走查询参数
func TestRequireAuthAcceptsQueryToken(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/protected?token=operator-token", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestRequireAuthAcceptsAccessTokenHeader X-Access-Token头也能认证
func TestRequireAuthAcceptsAccessTokenHeader(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("X-Access-Token", "operator-token")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestRequireRoleForbidsWrongRole 角色不符返回403
func TestRequireRoleForbidsWrongRole(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer operator-token")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "INSUFFICIENT_PERMISSION")
}

// TestRequireRoleAllowsMatchingRole 管理员放行
func TestRequireRoleAllowsMatchingRole(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestOptionalAuthAllowsAnonymous 无令牌照常放行
func TestOptionalAuthAllowsAnonymous(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest("GET", "/open", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "anonymous")
}

// TestOptionalAuthParsesToken 带令牌时解析出身份
func TestOptionalAuthParsesToken(t *testing.T) {
	engine := newAuthTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/open", nil)
	req.Header.Set("Authorization", "Bearer operator-token")
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "operator01")
}
