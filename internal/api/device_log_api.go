package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// DeviceLogAPI 设备通信日志API
type DeviceLogAPI struct {
	service *service.DeviceLogService
}

// NewDeviceLogAPI 创建设备日志API
func NewDeviceLogAPI(service *service.DeviceLogService) *DeviceLogAPI {
	return &DeviceLogAPI{
		service: service,
	}
}

// RegisterRoutes 注册路由
func (api *DeviceLogAPI) RegisterRoutes(router *gin.RouterGroup) {
	logs := router.Group("/device-logs")
	{
		logs.GET("", api.QueryLogs)                          // 查询日志列表
		logs.GET("/latest", api.GetLatestLogs)               // 获取最新日志
		logs.GET("/stats", api.GetStats)                     // 获取统计信息
		logs.GET("/session/:session_id", api.GetSessionLogs) // 按启动会话查询
		logs.POST("/cleanup", api.CleanupLogs)               // 清理旧日志
		logs.GET("/export", api.ExportLogs)                  // 导出日志
	}
}

// QueryLogs 查询日志列表
func (api *DeviceLogAPI) QueryLogs(c *gin.Context) {
	query := &models.DeviceLogQuery{}

	// 解析查询参数
	if channel := c.Query("channel"); channel != "" {
		query.Channel = models.DeviceChannel(channel)
	}
	if direction := c.Query("direction"); direction != "" {
		query.Direction = models.LogDirection(direction)
	}
	query.EventKind = c.Query("event_kind")
	query.SessionID = c.Query("session_id")
	query.Keyword = c.Query("keyword")

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 分页参数
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	query.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	query.OrderBy = c.DefaultQuery("order_by", "created_at DESC")

	// 查询日志
	logs, total, err := api.service.Query(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "查询失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   logs,
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// GetLatestLogs 获取最新日志
func (api *DeviceLogAPI) GetLatestLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	channel := models.DeviceChannel(c.Query("channel"))

	logs, err := api.service.GetLatestLogs(limit, channel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  logs,
		"count": len(logs),
	})
}

// GetStats 获取统计信息
func (api *DeviceLogAPI) GetStats(c *gin.Context) {
	var startTime, endTime *time.Time

	// 解析时间范围
	if start := c.Query("start_time"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			startTime = &t
		}
	}
	if end := c.Query("end_time"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			endTime = &t
		}
	}

	stats, err := api.service.GetStats(startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取统计失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetSessionLogs 按启动会话查询日志
func (api *DeviceLogAPI) GetSessionLogs(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "会话ID不能为空",
		})
		return
	}

	logs, err := api.service.GetSessionLogs(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "获取会话日志失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       logs,
		"count":      len(logs),
		"session_id": sessionID,
	})
}

// CleanupLogs 清理旧日志
func (api *DeviceLogAPI) CleanupLogs(c *gin.Context) {
	// 获取保留天数
	retentionDays, _ := strconv.Atoi(c.DefaultPostForm("retention_days", "30"))
	if retentionDays < 1 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "保留天数必须大于0",
		})
		return
	}

	count, err := api.service.CleanupOldLogs(retentionDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "清理失败",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "清理成功",
		"deleted":        count,
		"retention_days": retentionDays,
	})
}

// ExportLogs 导出日志
func (api *DeviceLogAPI) ExportLogs(c *gin.Context) {
	query := &models.DeviceLogQuery{}

	// 解析查询参数（与QueryLogs相同）
	if channel := c.Query("channel"); channel != "" {
		query.Channel = models.DeviceChannel(channel)
	}
	if direction := c.Query("direction"); direction != "" {
		query.Direction = models.LogDirection(direction)
	}
	query.EventKind = c.Query("event_kind")
	query.SessionID = c.Query("session_id")

	// 时间范围
	if startTime := c.Query("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			query.StartTime = &t
		}
	}
	if endTime := c.Query("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			query.EndTime = &t
		}
	}

	// 导出限制
	query.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "1000"))

	// 导出日志
	data, err := api.service.ExportLogs(query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "导出失败",
			"message": err.Error(),
		})
		return
	}

	// 设置响应头
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", "attachment; filename=device_logs_export.json")
	c.Data(http.StatusOK, "application/json", data)
}
