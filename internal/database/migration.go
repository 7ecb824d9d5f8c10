package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/logger"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
	"go.uber.org/zap"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 清理过期锁文件
	CleanupStaleLocks()

	// 获取迁移锁，避免多个进程同时迁移
	dbPath := getDBPath()
	if dbPath != "" {
		lockFile, err := acquireMigrationLock(dbPath)
		if err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile)
	}

	// 定义需要迁移的模型
	migrationModels := []interface{}{
		// 运维账号相关
		&models.User{},
		&models.UserSession{},

		// 支付相关
		&models.PaymentTransaction{},

		// 设备通信日志
		&models.DeviceLog{},
	}

	// 执行迁移
	logger.Info("开始数据库迁移...")

	// SQLite 迁移期间关闭外键约束，避免重建表时锁定
	if DB.Dialector.Name() == "sqlite" {
		DB.Exec("PRAGMA foreign_keys = OFF")
		defer DB.Exec("PRAGMA foreign_keys = ON")
	}

	for _, model := range migrationModels {
		tableName := getTableName(model)

		// 检查表是否存在且有数据
		if shouldSkipMigration(tableName) {
			logger.Info("跳过大型表的迁移", zap.String("table", tableName))
			continue
		}

		if err := DB.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return err
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	// 创建索引
	if err := createIndexes(); err != nil {
		return err
	}

	// 初始化默认数据
	if err := initDefaultData(); err != nil {
		return err
	}

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建数据库索引
func createIndexes() error {
	// 账号表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_users_username"), zap.Error(err))
	}

	// 会话表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_user_sessions_user_id ON user_sessions(user_id)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_user_sessions_user_id"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_user_sessions_expire_at ON user_sessions(expire_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_user_sessions_expire_at"), zap.Error(err))
	}

	// 交易表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_payment_transactions_method ON payment_transactions(method)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_payment_transactions_method"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_payment_transactions_status ON payment_transactions(status)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_payment_transactions_status"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_payment_transactions_created_at ON payment_transactions(created_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_payment_transactions_created_at"), zap.Error(err))
	}

	// 设备日志表索引
	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_logs_channel ON device_logs(channel)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_logs_channel"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_logs_direction ON device_logs(direction)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_logs_direction"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_logs_event_kind ON device_logs(event_kind)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_logs_event_kind"), zap.Error(err))
	}

	if err := DB.Exec("CREATE INDEX IF NOT EXISTS idx_device_logs_created_at ON device_logs(created_at)").Error; err != nil {
		logger.Warn("创建索引失败", zap.String("index", "idx_device_logs_created_at"), zap.Error(err))
	}

	logger.Info("数据库索引创建完成")
	return nil
}

// initDefaultData 初始化默认数据
// 账号表为空时创建默认管理员，首次部署后必须修改密码
func initDefaultData() error {
	var count int64
	DB.Model(&models.User{}).Count(&count)
	if count > 0 {
		return nil
	}

	passwordHash, err := utils.HashPassword("admin123")
	if err != nil {
		return fmt.Errorf("生成默认管理员密码失败: %w", err)
	}

	admin := models.User{
		Username:     "admin",
		Nickname:     "기본 관리자",
		PasswordHash: passwordHash,
		Role:         "admin",
		Status:       "active",
	}

	if err := DB.Create(&admin).Error; err != nil {
		logger.Error("创建默认管理员失败", zap.Error(err))
		return err
	}

	logger.Warn("已创建默认管理员账号，请尽快修改密码",
		zap.String("username", admin.Username))
	return nil
}

// getTableName 获取模型对应的表名
func getTableName(model interface{}) string {
	// 使用反射获取类型
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	// 尝试调用TableName方法
	if tabler, ok := model.(interface{ TableName() string }); ok {
		return tabler.TableName()
	}

	// 否则使用GORM默认的表名规则
	modelName := t.Name()
	// 转换为蛇形命名并复数化
	tableName := toSnakeCase(modelName) + "s"
	return tableName
}

// toSnakeCase 将驼峰命名转换为蛇形命名
func toSnakeCase(s string) string {
	var result []rune
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}

// shouldSkipMigration 检查是否应该跳过迁移
func shouldSkipMigration(tableName string) bool {
	// device_logs 持续增长，表结构变更靠手工维护，数据量大时跳过AutoMigrate
	if tableName == "device_logs" {
		var count int64
		var exists bool

		// 检查表是否存在
		err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name=?", tableName).Scan(&exists).Error
		if err != nil || !exists {
			return false
		}

		// 检查表中的数据量
		DB.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName)).Scan(&count)

		// 如果表存在且数据量超过10000条，跳过迁移
		if count > 10000 {
			logger.Info("表中数据量较大，跳过AutoMigrate",
				zap.String("table", tableName),
				zap.Int64("count", count))

			// 仅添加新的索引，不修改表结构
			ensureIndexesForLargeTable(tableName)
			return true
		}
	}
	return false
}

// ensureIndexesForLargeTable 为大表确保索引存在
func ensureIndexesForLargeTable(tableName string) {
	if tableName == "device_logs" {
		// 仅创建不存在的索引，避免重建表
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_device_logs_channel ON device_logs(channel)",
			"CREATE INDEX IF NOT EXISTS idx_device_logs_direction ON device_logs(direction)",
			"CREATE INDEX IF NOT EXISTS idx_device_logs_event_kind ON device_logs(event_kind)",
			"CREATE INDEX IF NOT EXISTS idx_device_logs_session_id ON device_logs(session_id)",
			"CREATE INDEX IF NOT EXISTS idx_device_logs_timestamp ON device_logs(timestamp)",
			"CREATE INDEX IF NOT EXISTS idx_device_logs_created_at ON device_logs(created_at)",
		}

		for _, idx := range indexes {
			if err := DB.Exec(idx).Error; err != nil {
				// 忽略索引已存在的错误
				if !strings.Contains(err.Error(), "already exists") {
					logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
				}
			}
		}
	}
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables() error {
	if DB == nil {
		return fmt.Errorf("数据库未初始化")
	}

	// 获取所有表名
	var tables []string
	if err := DB.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tables).Error; err != nil {
		return err
	}

	// 删除所有表
	for _, table := range tables {
		if err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)).Error; err != nil {
			logger.Error("删除表失败", zap.String("table", table), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}
