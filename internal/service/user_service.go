package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// userService 运维账号服务实现
type userService struct {
	db       *gorm.DB
	userRepo repository.UserRepository
	log      *zap.Logger
}

// NewUserService 创建运维账号服务
func NewUserService(db *gorm.DB, userRepo repository.UserRepository, log *zap.Logger) UserService {
	return &userService{
		db:       db,
		userRepo: userRepo,
		log:      log,
	}
}

// GetUserByID 根据ID获取账号
func (s *userService) GetUserByID(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		s.log.Error("Failed to get user by ID", zap.Error(err), zap.Uint("userID", userID))
		return nil, fmt.Errorf("获取账号失败: %w", err)
	}
	return user, nil
}

// GetUserByUsername 根据用户名获取账号
func (s *userService) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		s.log.Error("Failed to get user by username", zap.Error(err), zap.String("username", username))
		return nil, fmt.Errorf("获取账号失败: %w", err)
	}
	return user, nil
}

// CreateUser 创建运维账号
func (s *userService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	// 检查用户名是否已存在
	if user, _ := s.userRepo.FindByUsername(ctx, req.Username); user != nil {
		return nil, errors.New("用户名已存在")
	}

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	role := req.Role
	if role == "" {
		role = "operator"
	}

	user := &models.User{
		Username:     req.Username,
		Nickname:     req.Nickname,
		PasswordHash: hashedPassword,
		Role:         role,
		Status:       "active",
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.log.Error("Failed to create user", zap.Error(err), zap.String("username", req.Username))
		return nil, fmt.Errorf("创建账号失败: %w", err)
	}

	s.log.Info("User created successfully",
		zap.Uint("userID", user.ID),
		zap.String("username", user.Username),
		zap.String("role", user.Role))
	return user, nil
}

// UpdatePassword 修改密码
func (s *userService) UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取账号失败: %w", err)
	}

	// 验证旧密码
	valid, err := utils.VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil || !valid {
		return errors.New("旧密码不正确")
	}

	// 验证新密码
	if len(newPassword) < 6 {
		return errors.New("新密码长度至少6个字符")
	}

	hashedPassword, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		s.log.Error("Failed to update password", zap.Error(err), zap.Uint("userID", userID))
		return fmt.Errorf("更新密码失败: %w", err)
	}

	s.log.Info("Password updated successfully", zap.Uint("userID", userID))
	return nil
}

// UpdateNickname 修改显示名称
func (s *userService) UpdateNickname(ctx context.Context, userID uint, nickname string) error {
	if nickname == "" {
		return errors.New("显示名称不能为空")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取账号失败: %w", err)
	}

	user.Nickname = nickname
	if err := s.userRepo.Update(ctx, user); err != nil {
		s.log.Error("Failed to update nickname", zap.Error(err), zap.Uint("userID", userID))
		return fmt.Errorf("更新显示名称失败: %w", err)
	}

	s.log.Info("Nickname updated successfully", zap.Uint("userID", userID))
	return nil
}

// GetUserList 获取账号列表
func (s *userService) GetUserList(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	pagination := repository.NewPagination(page, pageSize)
	users, err := s.userRepo.GetAll(ctx, pagination)
	if err != nil {
		s.log.Error("Failed to get user list", zap.Error(err))
		return nil, 0, fmt.Errorf("获取账号列表失败: %w", err)
	}
	return users, pagination.Total, nil
}

// UpdateUserStatus 更新账号状态
func (s *userService) UpdateUserStatus(ctx context.Context, userID uint, status string) error {
	if status != "active" && status != "disabled" {
		return errors.New("无效的状态")
	}

	if err := s.userRepo.UpdateStatus(ctx, userID, status); err != nil {
		s.log.Error("Failed to update user status", zap.Error(err), zap.Uint("userID", userID), zap.String("status", status))
		return fmt.Errorf("更新状态失败: %w", err)
	}

	s.log.Info("User status updated", zap.Uint("userID", userID), zap.String("status", status))
	return nil
}

// DisableUser 停用账号
func (s *userService) DisableUser(ctx context.Context, userID uint) error {
	return s.UpdateUserStatus(ctx, userID, "disabled")
}

// EnableUser 启用账号
func (s *userService) EnableUser(ctx context.Context, userID uint) error {
	return s.UpdateUserStatus(ctx, userID, "active")
}

// validateCreateRequest 验证创建账号请求
func (s *userService) validateCreateRequest(req *CreateUserRequest) error {
	if len(req.Username) < 3 || len(req.Username) > 20 {
		return errors.New("用户名长度必须在3-20个字符之间")
	}
	if !usernamePattern.MatchString(req.Username) {
		return errors.New("用户名只能包含字母、数字和下划线")
	}
	if len(req.Password) < 6 {
		return errors.New("密码长度至少6个字符")
	}
	if req.Role != "" && req.Role != "admin" && req.Role != "operator" {
		return errors.New("无效的角色")
	}
	return nil
}
