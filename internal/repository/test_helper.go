package repository

import (
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 为测试套件设置测试数据库
// 使用内存数据库，不依赖文件系统
func SetupTestDB() *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.UserSession{},
		&models.PaymentTransaction{},
		&models.DeviceLog{},
	)
	if err != nil {
		panic(err)
	}

	return db
}

// CleanupTestDB 清理测试数据库
func CleanupTestDB(db *gorm.DB) {
	sqlDB, _ := db.DB()
	if sqlDB != nil {
		sqlDB.Close()
	}
}

// NewTestTransaction 创建测试交易记录
func NewTestTransaction(orderNo, method string, amount int64, status string) *models.PaymentTransaction {
	tx := &models.PaymentTransaction{
		OrderNo:  orderNo,
		Method:   method,
		Amount:   amount,
		Currency: "KRW",
		Status:   status,
	}
	if status == models.TxStatusSuccess || status == models.TxStatusFailed {
		now := time.Now()
		tx.ProcessedAt = &now
	}
	return tx
}

// NewTestDeviceLog 创建测试设备日志
func NewTestDeviceLog(channel models.DeviceChannel, direction models.LogDirection, line string) *models.DeviceLog {
	return &models.DeviceLog{
		Channel:   channel,
		Direction: direction,
		Line:      line,
		SessionID: "test-session",
	}
}
