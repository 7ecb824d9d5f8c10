package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/logger"
	"go.uber.org/zap"
)

const (
	lockRetryCount    = 30
	lockRetryInterval = time.Second
	// staleLockAge 迁移中途断电会残留锁文件，超龄后视为无主强制清理
	staleLockAge = 5 * time.Minute
)

// acquireMigrationLock 以独占方式创建锁文件，拿不到时等待重试。
// 现场升级时看门狗可能短时间内拉起两个进程，靠文件锁保证只有一个做迁移。
func acquireMigrationLock(dbPath string) (*os.File, error) {
	lockPath := dbPath + ".migration.lock"

	for attempt := 1; attempt <= lockRetryCount; attempt++ {
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			// 写入PID，现场排查时能看出锁被哪个进程持有
			fmt.Fprintf(lockFile, "%d\n", os.Getpid())
			logger.Debug("获取迁移锁成功", zap.String("lock", lockPath))
			return lockFile, nil
		}

		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			logger.Warn("迁移锁文件超龄，强制清理", zap.String("lock", lockPath))
			os.Remove(lockPath)
			continue
		}

		logger.Debug("等待迁移锁", zap.Int("attempt", attempt), zap.String("lock", lockPath))
		time.Sleep(lockRetryInterval)
	}

	return nil, fmt.Errorf("等待%d秒后仍未拿到迁移锁: %s", lockRetryCount, lockPath)
}

// releaseMigrationLock 关闭并删除锁文件
func releaseMigrationLock(lockFile *os.File) {
	if lockFile == nil {
		return
	}

	lockPath := lockFile.Name()
	lockFile.Close()
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("删除迁移锁文件失败", zap.String("lock", lockPath), zap.Error(err))
	}
}

// getDBPath 取SQLite库文件的实际路径。
// 非SQLite走数据库自身的并发控制，内存库不跨进程，都返回空串表示不加锁。
func getDBPath() string {
	if DB == nil {
		return ""
	}

	switch DB.Dialector.Name() {
	case "sqlite", "sqlite3":
	default:
		return ""
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return ""
	}

	// database_list第一行main库就是当前打开的文件，内存库file为空
	var seq int
	var name, file string
	if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}

// CleanupStaleLocks 清理库文件目录下超龄的锁文件
func CleanupStaleLocks() {
	dbPath := getDBPath()
	if dbPath == "" {
		return
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(dbPath), "*.lock"))
	for _, lockPath := range matches {
		info, err := os.Stat(lockPath)
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) > staleLockAge {
			logger.Info("清理过期锁文件", zap.String("file", lockPath))
			os.Remove(lockPath)
		}
	}
}
