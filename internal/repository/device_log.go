package repository

import (
	"fmt"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"gorm.io/gorm"
)

// DeviceLogRepository 设备通信日志仓库
// 写入量大，不嵌入BaseRepo，批量插入为主
type DeviceLogRepository struct {
	db *gorm.DB
}

// NewDeviceLogRepository 创建设备日志仓库
func NewDeviceLogRepository(db *gorm.DB) *DeviceLogRepository {
	return &DeviceLogRepository{
		db: db,
	}
}

// Create 创建日志记录
func (r *DeviceLogRepository) Create(log *models.DeviceLog) error {
	return r.db.Create(log).Error
}

// CreateBatch 批量创建日志记录
func (r *DeviceLogRepository) CreateBatch(logs []*models.DeviceLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.CreateInBatches(logs, 100).Error
}

// GetByID 根据ID获取日志
func (r *DeviceLogRepository) GetByID(id uint) (*models.DeviceLog, error) {
	var log models.DeviceLog
	err := r.db.First(&log, id).Error
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// GetBySessionID 根据会话ID获取日志
func (r *DeviceLogRepository) GetBySessionID(sessionID string) ([]*models.DeviceLog, error) {
	var logs []*models.DeviceLog
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}

// Query 查询日志
func (r *DeviceLogRepository) Query(query *models.DeviceLogQuery) ([]*models.DeviceLog, int64, error) {
	db := r.db.Model(&models.DeviceLog{})

	if query.Channel != "" {
		db = db.Where("channel = ?", query.Channel)
	}
	if query.Direction != "" {
		db = db.Where("direction = ?", query.Direction)
	}
	if query.EventKind != "" {
		db = db.Where("event_kind = ?", query.EventKind)
	}
	if query.SessionID != "" {
		db = db.Where("session_id = ?", query.SessionID)
	}
	if query.Keyword != "" {
		db = db.Where("line LIKE ?", "%"+query.Keyword+"%")
	}
	db = db.Scopes(TimeRange(query.StartTime, query.EndTime))

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var logs []*models.DeviceLog
	if err := db.Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

// GetLatest 获取最新的日志记录
func (r *DeviceLogRepository) GetLatest(limit int, channel models.DeviceChannel) ([]*models.DeviceLog, error) {
	var logs []*models.DeviceLog
	db := r.db.Order("created_at DESC").Limit(limit)
	if channel != "" {
		db = db.Where("channel = ?", channel)
	}
	err := db.Find(&logs).Error
	return logs, err
}

// GetStats 获取统计信息
func (r *DeviceLogRepository) GetStats(startTime, endTime *time.Time) (*models.DeviceLogStats, error) {
	stats := &models.DeviceLogStats{}
	base := func() *gorm.DB {
		return r.db.Model(&models.DeviceLog{}).Scopes(TimeRange(startTime, endTime))
	}

	if err := base().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("direction = ?", models.DirectionSend).
		Count(&stats.TotalSend).Error; err != nil {
		return nil, err
	}
	stats.TotalReceive = stats.TotalCount - stats.TotalSend

	if err := base().Where("channel = ?", models.DeviceChannelDispenser).
		Count(&stats.TotalDispenser).Error; err != nil {
		return nil, err
	}
	if err := base().Where("channel = ?", models.DeviceChannelCard).
		Count(&stats.TotalCard).Error; err != nil {
		return nil, err
	}
	if err := base().Where("event_kind = ?", "unrecognized").
		Count(&stats.Unrecognized).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// DeleteOldLogs 删除旧日志
func (r *DeviceLogRepository) DeleteOldLogs(beforeTime time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", beforeTime).Delete(&models.DeviceLog{})
	return result.RowsAffected, result.Error
}

// CleanupLogs 清理日志（保留最近N天的数据）
func (r *DeviceLogRepository) CleanupLogs(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be greater than 0")
	}
	beforeTime := time.Now().AddDate(0, 0, -retentionDays)
	return r.DeleteOldLogs(beforeTime)
}
