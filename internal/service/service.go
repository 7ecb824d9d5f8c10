package service

import (
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/payment"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 服务配置
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:          "change-me-in-production",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
}

// Services 服务集合
type Services struct {
	Auth      AuthService
	User      UserService
	Payment   *PaymentService
	DeviceLog *DeviceLogService
}

// NewServices 创建服务集合
// dispatcher 由组装层先构建好各支付终端后传入
func NewServices(db *gorm.DB, config *Config, dispatcher *payment.Service, log *zap.Logger) *Services {
	// 初始化仓储
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewUserSessionRepository(db)
	txRepo := repository.NewPaymentTransactionRepository(db)

	// 初始化JWT管理器
	jwtManager := utils.NewJWTManager(
		config.JWTSecret,
		config.AccessTokenExpiry,
		config.RefreshTokenExpiry,
	)

	// 初始化服务
	authService := NewAuthService(db, userRepo, sessionRepo, jwtManager, log)
	userService := NewUserService(db, userRepo, log)
	paymentService := NewPaymentService(dispatcher, txRepo, log)
	deviceLogService := NewDeviceLogService(db, log)

	return &Services{
		Auth:      authService,
		User:      userService,
		Payment:   paymentService,
		DeviceLog: deviceLogService,
	}
}

// Close 关闭需要落盘的服务
func (s *Services) Close() {
	if s.DeviceLog != nil {
		s.DeviceLog.Close()
	}
}
