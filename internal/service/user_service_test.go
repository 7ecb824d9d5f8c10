package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
)

// UserServiceTestSuite 运维账号服务测试套件
type UserServiceTestSuite struct {
	suite.Suite
	ctx         context.Context
	db          *gorm.DB
	userService UserService
	userRepo    repository.UserRepository
	logger      *zap.Logger
}

func (suite *UserServiceTestSuite) SetupSuite() {
	suite.ctx = context.Background()
	suite.logger = zap.NewNop()
}

func (suite *UserServiceTestSuite) SetupTest() {
	// 每个测试创建新的内存数据库（避免并发问题）
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	suite.NoError(err)

	// 自动迁移
	err = db.AutoMigrate(&models.User{}, &models.UserSession{})
	suite.NoError(err)

	suite.db = db

	// 创建repository和service
	suite.userRepo = repository.NewUserRepository(suite.db)
	suite.userService = NewUserService(suite.db, suite.userRepo, suite.logger)

	// 创建测试账号
	suite.createTestUsers()
}

func (suite *UserServiceTestSuite) createTestUsers() {
	hashedPassword, _ := utils.HashPassword("password123")
	users := []models.User{
		{
			Username:     "admin1",
			Nickname:     "总店管理员",
			PasswordHash: hashedPassword,
			Role:         "admin",
			Status:       "active",
		},
		{
			Username:     "operator1",
			Nickname:     "门店运维",
			PasswordHash: hashedPassword,
			Role:         "operator",
			Status:       "active",
		},
		{
			Username:     "disabled1",
			Nickname:     "停用账号",
			PasswordHash: hashedPassword,
			Role:         "operator",
			Status:       "disabled",
		},
	}

	for _, user := range users {
		suite.db.Create(&user)
	}
}

// TestGetUserByID 测试根据ID获取账号
func (suite *UserServiceTestSuite) TestGetUserByID() {
	var testUser models.User
	suite.db.First(&testUser, "username = ?", "operator1")

	user, err := suite.userService.GetUserByID(suite.ctx, testUser.ID)
	suite.NoError(err)
	suite.NotNil(user)
	suite.Equal("operator1", user.Username)
	suite.Equal("operator", user.Role)

	// 获取不存在的账号
	user, err = suite.userService.GetUserByID(suite.ctx, 99999)
	suite.Error(err)
	suite.Nil(user)
}

// TestGetUserByUsername 测试根据用户名获取账号
func (suite *UserServiceTestSuite) TestGetUserByUsername() {
	user, err := suite.userService.GetUserByUsername(suite.ctx, "admin1")
	suite.NoError(err)
	suite.NotNil(user)
	suite.True(user.IsAdmin())

	user, err = suite.userService.GetUserByUsername(suite.ctx, "nonexistent")
	suite.Error(err)
	suite.Nil(user)
}

// TestCreateUser 测试创建账号
func (suite *UserServiceTestSuite) TestCreateUser() {
	user, err := suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "operator2",
		Password: "secret123",
		Nickname: "二号运维",
	})
	suite.NoError(err)
	suite.NotNil(user)
	suite.Equal("operator2", user.Username)
	suite.Equal("operator", user.Role) // 默认角色
	suite.Equal("active", user.Status)

	// 密码已加密且可验证
	valid, err := utils.VerifyPassword("secret123", user.PasswordHash)
	suite.NoError(err)
	suite.True(valid)
}

// TestCreateUserDuplicate 测试重复用户名
func (suite *UserServiceTestSuite) TestCreateUserDuplicate() {
	_, err := suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "operator1",
		Password: "secret123",
	})
	suite.Error(err)
	suite.Contains(err.Error(), "用户名已存在")
}

// TestCreateUserValidation 测试创建账号的输入校验
func (suite *UserServiceTestSuite) TestCreateUserValidation() {
	// 用户名过短
	_, err := suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "ab",
		Password: "secret123",
	})
	suite.Error(err)

	// 用户名含非法字符
	_, err = suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "bad name!",
		Password: "secret123",
	})
	suite.Error(err)

	// 密码过短
	_, err = suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "operator9",
		Password: "123",
	})
	suite.Error(err)

	// 非法角色
	_, err = suite.userService.CreateUser(suite.ctx, &CreateUserRequest{
		Username: "operator9",
		Password: "secret123",
		Role:     "superuser",
	})
	suite.Error(err)
}

// TestUpdatePassword 测试修改密码
func (suite *UserServiceTestSuite) TestUpdatePassword() {
	var testUser models.User
	suite.db.First(&testUser, "username = ?", "operator1")

	err := suite.userService.UpdatePassword(suite.ctx, testUser.ID, "password123", "newPassword456")
	suite.NoError(err)

	// 验证新密码
	var updatedUser models.User
	suite.db.First(&updatedUser, testUser.ID)
	valid, _ := utils.VerifyPassword("newPassword456", updatedUser.PasswordHash)
	suite.True(valid)

	// 使用错误的旧密码
	err = suite.userService.UpdatePassword(suite.ctx, testUser.ID, "wrongOldPassword", "anotherNewPassword")
	suite.Error(err)
}

// TestUpdateNickname 测试修改显示名称
func (suite *UserServiceTestSuite) TestUpdateNickname() {
	var testUser models.User
	suite.db.First(&testUser, "username = ?", "operator1")

	err := suite.userService.UpdateNickname(suite.ctx, testUser.ID, "夜班运维")
	suite.NoError(err)

	var updatedUser models.User
	suite.db.First(&updatedUser, testUser.ID)
	suite.Equal("夜班运维", updatedUser.Nickname)

	// 空名称拒绝
	err = suite.userService.UpdateNickname(suite.ctx, testUser.ID, "")
	suite.Error(err)
}

// TestGetUserList 测试获取账号列表
func (suite *UserServiceTestSuite) TestGetUserList() {
	users, total, err := suite.userService.GetUserList(suite.ctx, 1, 10)
	suite.NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(users, 3)

	// 测试分页
	users, total, err = suite.userService.GetUserList(suite.ctx, 1, 2)
	suite.NoError(err)
	suite.Equal(int64(3), total)
	suite.Len(users, 2)
}

// TestUpdateUserStatus 测试更新账号状态
func (suite *UserServiceTestSuite) TestUpdateUserStatus() {
	var testUser models.User
	suite.db.First(&testUser, "username = ?", "operator1")

	err := suite.userService.UpdateUserStatus(suite.ctx, testUser.ID, "disabled")
	suite.NoError(err)

	var updatedUser models.User
	suite.db.First(&updatedUser, testUser.ID)
	suite.Equal("disabled", updatedUser.Status)

	// 非法状态拒绝
	err = suite.userService.UpdateUserStatus(suite.ctx, testUser.ID, "banned")
	suite.Error(err)
}

// TestDisableEnableUser 测试停用与启用
func (suite *UserServiceTestSuite) TestDisableEnableUser() {
	var testUser models.User
	suite.db.First(&testUser, "username = ?", "operator1")

	suite.NoError(suite.userService.DisableUser(suite.ctx, testUser.ID))

	var updatedUser models.User
	suite.db.First(&updatedUser, testUser.ID)
	suite.False(updatedUser.IsActive())

	suite.NoError(suite.userService.EnableUser(suite.ctx, testUser.ID))
	suite.db.First(&updatedUser, testUser.ID)
	suite.True(updatedUser.IsActive())
}

func TestUserServiceSuite(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}
