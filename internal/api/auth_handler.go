package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/middleware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// AuthHandler 运维端认证处理器
type AuthHandler struct {
	authService service.AuthService
	userService service.UserService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService service.AuthService, userService service.UserService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		userService: userService,
	}
}

// Login 运维账号登录
// @Summary 运维账号登录
// @Description 使用用户名密码登录运维端
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body service.LoginRequest true "登录信息"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	// 获取客户端信息
	req.IP = c.ClientIP()
	if req.Device == "" {
		req.Device = c.GetHeader("User-Agent")
	}

	resp, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		status := http.StatusUnauthorized
		if err == service.ErrUserDisabled {
			status = http.StatusForbidden
		}

		c.JSON(status, ErrorResponse{
			Code:    "LOGIN_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Logout 登出
// @Summary 运维账号登出
// @Description 退出登录并清除会话
// @Tags Auth
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "未登录",
		})
		return
	}

	token, ok := middleware.GetToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "NO_TOKEN",
			Message: "缺少令牌",
		})
		return
	}

	err := h.authService.Logout(c.Request.Context(), userID, token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "LOGOUT_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "登出成功",
	})
}

// RefreshToken 刷新令牌
// @Summary 刷新访问令牌
// @Description 使用刷新令牌获取新的访问令牌
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "刷新令牌"
// @Success 200 {object} service.AuthResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/refresh [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	resp, err := h.authService.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "REFRESH_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetProfile 获取当前账号资料
// @Summary 获取当前账号资料
// @Description 获取登录账号的详细信息与活跃会话
// @Tags Auth
// @Security Bearer
// @Success 200 {object} UserProfileResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/profile [get]
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "未登录",
		})
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "USER_NOT_FOUND",
			Message: "账号不存在",
		})
		return
	}

	// 会话列表查询失败不影响资料返回
	sessions, _ := h.authService.GetActiveSessions(c.Request.Context(), userID)

	c.JSON(http.StatusOK, UserProfileResponse{
		User:     user,
		Sessions: sessions,
	})
}

// UpdateNickname 更新昵称
// @Summary 更新当前账号昵称
// @Tags Auth
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body UpdateNicknameRequest true "昵称"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/profile [put]
func (h *AuthHandler) UpdateNickname(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "未登录",
		})
		return
	}

	var req UpdateNicknameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	err := h.userService.UpdateNickname(c.Request.Context(), userID, req.Nickname)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UPDATE_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "更新成功",
	})
}

// UpdatePassword 修改密码
// @Summary 修改密码
// @Description 修改当前账号的登录密码
// @Tags Auth
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body UpdatePasswordRequest true "密码信息"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/auth/password [put]
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "未登录",
		})
		return
	}

	var req UpdatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	err := h.userService.UpdatePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UPDATE_FAILED",
			Message: err.Error(),
		})
		return
	}

	// 修改密码后吊销其他会话
	_ = h.authService.RevokeAllSessions(c.Request.Context(), userID)

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "密码修改成功，请重新登录",
	})
}

// 请求和响应结构体

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdatePasswordRequest 更新密码请求
type UpdatePasswordRequest struct {
	OldPassword     string `json:"old_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirm_password" binding:"required,eqfield=NewPassword"`
}

// UpdateNicknameRequest 更新昵称请求
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname" binding:"required,max=50"`
}

// UserProfileResponse 账号资料响应
type UserProfileResponse struct {
	User     interface{} `json:"user"`
	Sessions interface{} `json:"sessions,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
