package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 仓储实例（使用懒加载）
	userOnce sync.Once
	user     UserRepository

	userSessionOnce sync.Once
	userSession     UserSessionRepository

	paymentTxOnce sync.Once
	paymentTx     PaymentTransactionRepository

	deviceLogOnce sync.Once
	deviceLog     *DeviceLogRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db: db,
	}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// User 获取运维账号仓储
func (m *Manager) User() UserRepository {
	m.userOnce.Do(func() {
		m.user = NewUserRepository(m.db)
	})
	return m.user
}

// UserSession 获取运维端会话仓储
func (m *Manager) UserSession() UserSessionRepository {
	m.userSessionOnce.Do(func() {
		m.userSession = NewUserSessionRepository(m.db)
	})
	return m.userSession
}

// PaymentTransaction 获取支付交易仓储
func (m *Manager) PaymentTransaction() PaymentTransactionRepository {
	m.paymentTxOnce.Do(func() {
		m.paymentTx = NewPaymentTransactionRepository(m.db)
	})
	return m.paymentTx
}

// DeviceLog 获取设备日志仓储
func (m *Manager) DeviceLog() *DeviceLogRepository {
	m.deviceLogOnce.Do(func() {
		m.deviceLog = NewDeviceLogRepository(m.db)
	})
	return m.deviceLog
}
