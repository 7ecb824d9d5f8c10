package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DeviceLogService 设备通信日志服务
// 串口每行一条，先进内存缓冲再批量落库，记录永远不阻塞串口读写协程
type DeviceLogService struct {
	repo      *repository.DeviceLogRepository
	logger    *zap.Logger
	mu        sync.Mutex
	buffer    []*models.DeviceLog
	bufferCh  chan *models.DeviceLog
	stopCh    chan struct{}
	doneCh    chan struct{}
	sessionID string
}

// NewDeviceLogService 创建设备通信日志服务
func NewDeviceLogService(db *gorm.DB, logger *zap.Logger) *DeviceLogService {
	service := &DeviceLogService{
		repo:      repository.NewDeviceLogRepository(db),
		logger:    logger,
		buffer:    make([]*models.DeviceLog, 0, 100),
		bufferCh:  make(chan *models.DeviceLog, 1000),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		sessionID: uuid.New().String(),
	}

	// 启动后台写入协程
	go service.backgroundWriter()

	return service
}

// SessionID 本次启动的会话ID
func (s *DeviceLogService) SessionID() string {
	return s.sessionID
}

// backgroundWriter 后台写入协程
func (s *DeviceLogService) backgroundWriter() {
	defer close(s.doneCh)

	ticker := time.NewTicker(5 * time.Second) // 每5秒批量写入一次
	defer ticker.Stop()

	for {
		select {
		case log := <-s.bufferCh:
			s.mu.Lock()
			s.buffer = append(s.buffer, log)
			// 缓冲区满了立即写入
			if len(s.buffer) >= 100 {
				s.flushBuffer()
			}
			s.mu.Unlock()

		case <-ticker.C:
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()

		case <-s.stopCh:
			// 退出前先接干通道再写入剩余的日志
			for {
				select {
				case log := <-s.bufferCh:
					s.mu.Lock()
					s.buffer = append(s.buffer, log)
					s.mu.Unlock()
					continue
				default:
				}
				break
			}
			s.mu.Lock()
			s.flushBuffer()
			s.mu.Unlock()
			return
		}
	}
}

// flushBuffer 写入缓冲区的日志到数据库，调用方持有锁
func (s *DeviceLogService) flushBuffer() {
	if len(s.buffer) == 0 {
		return
	}

	if err := s.repo.CreateBatch(s.buffer); err != nil {
		s.logger.Error("批量写入设备日志失败", zap.Error(err))
	} else {
		s.logger.Debug("批量写入设备日志成功", zap.Int("count", len(s.buffer)))
	}

	// 清空缓冲区
	s.buffer = s.buffer[:0]
}

// Record 记录一行串口通信
// 实现 hardware.DeviceLogRecorder；写入前脱敏，出货板接收行同时做分类标注
func (s *DeviceLogService) Record(channel, direction, line string) {
	log := &models.DeviceLog{
		Channel:   models.DeviceChannel(channel),
		Direction: models.LogDirection(direction),
		Line:      utils.SanitizeSerialLine(line),
		SessionID: s.sessionID,
		CreatedAt: time.Now(),
		Timestamp: time.Now().UnixMilli(),
	}

	if log.Channel == models.DeviceChannelDispenser && log.Direction == models.DirectionReceive {
		log.EventKind = classifyEventKind(line)
	}

	// 异步写入
	select {
	case s.bufferCh <- log:
	default:
		s.logger.Warn("设备日志缓冲区满，丢弃日志",
			zap.String("channel", channel),
			zap.String("direction", direction))
	}
}

// classifyEventKind 标注出货板上行消息的分类结果
func classifyEventKind(line string) string {
	event, err := hardware.Classify(line)
	if err != nil || event == nil {
		return string(hardware.EventUnrecognized)
	}
	return string(event.Kind())
}

// Query 查询日志
func (s *DeviceLogService) Query(query *models.DeviceLogQuery) ([]*models.DeviceLog, int64, error) {
	return s.repo.Query(query)
}

// GetStats 获取统计信息
func (s *DeviceLogService) GetStats(startTime, endTime *time.Time) (*models.DeviceLogStats, error) {
	return s.repo.GetStats(startTime, endTime)
}

// GetLatestLogs 获取最新的日志
func (s *DeviceLogService) GetLatestLogs(limit int, channel models.DeviceChannel) ([]*models.DeviceLog, error) {
	return s.repo.GetLatest(limit, channel)
}

// GetSessionLogs 获取某次启动会话的全部日志
func (s *DeviceLogService) GetSessionLogs(sessionID string) ([]*models.DeviceLog, error) {
	return s.repo.GetBySessionID(sessionID)
}

// CleanupOldLogs 清理旧日志
func (s *DeviceLogService) CleanupOldLogs(retentionDays int) (int64, error) {
	return s.repo.CleanupLogs(retentionDays)
}

// ExportLogs 导出日志为JSON格式
func (s *DeviceLogService) ExportLogs(query *models.DeviceLogQuery) ([]byte, error) {
	logs, _, err := s.Query(query)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(logs, "", "  ")
}

// Close 关闭服务，等待剩余日志落库
func (s *DeviceLogService) Close() {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(3 * time.Second):
		s.logger.Warn("设备日志落库超时，可能丢失尾部日志")
	}
}

// DeviceLogRecorder 编译期检查
var _ hardware.DeviceLogRecorder = (*DeviceLogService)(nil)
