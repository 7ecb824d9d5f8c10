package models

import (
	"time"

	"gorm.io/gorm"
)

// DeviceChannel 设备通道
type DeviceChannel string

const (
	DeviceChannelDispenser DeviceChannel = "dispenser" // 出货控制板
	DeviceChannelCard      DeviceChannel = "card"      // 刷卡终端
)

// LogDirection 通信方向
type LogDirection string

const (
	DirectionSend    LogDirection = "SEND"
	DirectionReceive LogDirection = "RECEIVE"
)

// DeviceLog 设备串口通信日志
// 记录与外设往来的每一行，敏感字段在写入前已脱敏
type DeviceLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`

	Channel   DeviceChannel `gorm:"type:varchar(20);index;not null" json:"channel"`
	Direction LogDirection  `gorm:"type:varchar(10);index;not null" json:"direction"`
	Line      string        `gorm:"type:text" json:"line"`
	EventKind string        `gorm:"type:varchar(30);index" json:"event_kind,omitempty"` // 接收行的分类结果，发送行为空
	SessionID string        `gorm:"type:varchar(64);index" json:"session_id"`           // 本次启动的会话ID
	Timestamp int64         `gorm:"index" json:"timestamp"`                             // Unix毫秒
}

// TableName 指定表名
func (DeviceLog) TableName() string {
	return "device_logs"
}

// BeforeCreate 创建前的钩子
func (l *DeviceLog) BeforeCreate(tx *gorm.DB) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	if l.Timestamp == 0 {
		l.Timestamp = time.Now().UnixMilli()
	}
	return nil
}

// DeviceLogQuery 查询参数
type DeviceLogQuery struct {
	Channel   DeviceChannel `json:"channel,omitempty"`
	Direction LogDirection  `json:"direction,omitempty"`
	EventKind string        `json:"event_kind,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
	Keyword   string        `json:"keyword,omitempty"`
	StartTime *time.Time    `json:"start_time,omitempty"`
	EndTime   *time.Time    `json:"end_time,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Offset    int           `json:"offset,omitempty"`
	OrderBy   string        `json:"order_by,omitempty"`
}

// DeviceLogStats 统计信息
type DeviceLogStats struct {
	TotalCount     int64 `json:"total_count"`
	TotalSend      int64 `json:"total_send"`
	TotalReceive   int64 `json:"total_receive"`
	TotalDispenser int64 `json:"total_dispenser"`
	TotalCard      int64 `json:"total_card"`
	Unrecognized   int64 `json:"unrecognized"` // 分类失败的接收行
}
