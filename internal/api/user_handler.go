package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// UserHandler 运维账号管理处理器（仅管理员）
type UserHandler struct {
	userService service.UserService
	authService service.AuthService
}

// NewUserHandler 创建账号管理处理器
func NewUserHandler(userService service.UserService, authService service.AuthService) *UserHandler {
	return &UserHandler{
		userService: userService,
		authService: authService,
	}
}

// ListUsers 账号列表
// @Summary 运维账号列表
// @Tags Admin
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页条数" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	users, total, err := h.userService.GetUserList(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "LIST_FAILED",
			Message: "查询账号列表失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"users":     users,
	})
}

// CreateUser 创建账号
// @Summary 创建运维账号
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body service.CreateUserRequest true "账号信息"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/admin/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "CREATE_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "创建成功",
		Data:    user,
	})
}

// UpdateUserStatus 启用/停用账号
// @Summary 修改账号状态
// @Description 状态仅支持 active/disabled，停用同时吊销全部会话
// @Tags Admin
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path int true "账号ID"
// @Param request body UpdateUserStatusRequest true "状态"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/admin/users/{id}/status [put]
func (h *UserHandler) UpdateUserStatus(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_USER_ID",
			Message: "账号ID必须为整数",
		})
		return
	}

	var req UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.userService.UpdateUserStatus(c.Request.Context(), uint(userID), req.Status); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "UPDATE_FAILED",
			Message: err.Error(),
		})
		return
	}

	// 停用账号时强制下线
	if req.Status == "disabled" {
		_ = h.authService.RevokeAllSessions(c.Request.Context(), uint(userID))
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "状态更新成功",
	})
}

// GetUserSessions 查询账号活跃会话
// @Summary 查询账号活跃会话
// @Tags Admin
// @Security Bearer
// @Param id path int true "账号ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/users/{id}/sessions [get]
func (h *UserHandler) GetUserSessions(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_USER_ID",
			Message: "账号ID必须为整数",
		})
		return
	}

	sessions, err := h.authService.GetActiveSessions(c.Request.Context(), uint(userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询会话失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// RevokeUserSessions 吊销账号全部会话
// @Summary 吊销账号全部会话
// @Tags Admin
// @Security Bearer
// @Param id path int true "账号ID"
// @Success 200 {object} SuccessResponse
// @Router /api/v1/admin/users/{id}/sessions [delete]
func (h *UserHandler) RevokeUserSessions(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_USER_ID",
			Message: "账号ID必须为整数",
		})
		return
	}

	if err := h.authService.RevokeAllSessions(c.Request.Context(), uint(userID)); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "REVOKE_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "会话已吊销",
	})
}

// CleanupSessions 清理过期会话
// @Summary 清理过期会话
// @Tags Admin
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/admin/sessions/cleanup [post]
func (h *UserHandler) CleanupSessions(c *gin.Context) {
	if err := h.authService.CleanupExpiredSessions(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "CLEANUP_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "过期会话已清理",
	})
}

// UpdateUserStatusRequest 账号状态更新请求
type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active disabled"`
}
