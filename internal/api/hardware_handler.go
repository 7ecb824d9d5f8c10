package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
)

// HardwareHandler 出货控制板处理器
type HardwareHandler struct {
	controller *hardware.Controller
	logger     *zap.Logger
}

// NewHardwareHandler 创建硬件处理器
func NewHardwareHandler(controller *hardware.Controller, logger *zap.Logger) *HardwareHandler {
	return &HardwareHandler{
		controller: controller,
		logger:     logger,
	}
}

// GetStatus 查询控制板状态
// @Summary 查询控制板状态
// @Description 返回串口连接状态、固件就绪标志与设备状态快照
// @Tags Hardware
// @Security Bearer
// @Success 200 {object} hardware.StatusReport
// @Router /api/v1/hardware/status [get]
func (h *HardwareHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Status())
}

// Initialize 打开串口连接
// @Summary 打开串口连接
// @Description 连接出货控制板，port为空时使用配置端口
// @Tags Hardware
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body InitializeRequest false "端口"
// @Success 200 {object} hardware.StatusReport
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/hardware/initialize [post]
func (h *HardwareHandler) Initialize(c *gin.Context) {
	var req InitializeRequest
	// 允许空Body
	_ = c.ShouldBindJSON(&req)

	if err := h.controller.Initialize(req.Port); err != nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Code:    "INITIALIZE_FAILED",
			Message: "串口连接失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, h.controller.Status())
}

// Disconnect 断开串口连接
// @Summary 断开串口连接
// @Tags Hardware
// @Security Bearer
// @Success 200 {object} SuccessResponse
// @Router /api/v1/hardware/disconnect [post]
func (h *HardwareHandler) Disconnect(c *gin.Context) {
	h.controller.Disconnect()
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "已断开连接",
	})
}

// GetDistance 读取感应距离
// @Summary 读取感应距离
// @Description 返回最近一次超声波读数（厘米），未连接时返回模拟值
// @Tags Hardware
// @Security Bearer
// @Success 200 {object} DistanceResponse
// @Router /api/v1/hardware/distance [get]
func (h *HardwareHandler) GetDistance(c *gin.Context) {
	distance := h.controller.ReadDistance()
	state := h.controller.DeviceState()

	c.JSON(http.StatusOK, DistanceResponse{
		DistanceCM: distance,
		Detected:   state.Sensor.Detected,
		Connected:  h.controller.IsConnected(),
		LastUpdate: state.Sensor.LastUpdate,
	})
}

// PressButton 触发矩阵键盘出货按钮
// @Summary 触发出货按钮
// @Description 按货道编号(1-40)触发矩阵键盘出货，固件确认经WebSocket异步上报
// @Tags Hardware
// @Security Bearer
// @Param button path int true "按钮编号 1-40"
// @Success 200 {object} hardware.MatrixButtonResult
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/hardware/buttons/{button} [post]
func (h *HardwareHandler) PressButton(c *gin.Context) {
	button, err := strconv.Atoi(c.Param("button"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_BUTTON",
			Message: "按钮编号必须为整数",
		})
		return
	}

	result, err := h.controller.SendMatrixButton(button)
	if err != nil {
		c.JSON(hardwareErrorStatus(err), ErrorResponse{
			Code:    "BUTTON_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SetOutput 控制LED或电机
// @Summary 控制输出设备
// @Description 打开或关闭 led1/led2/motor，实际状态以固件回报为准
// @Tags Hardware
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body SetOutputRequest true "设备与开关"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/hardware/outputs [post]
func (h *HardwareHandler) SetOutput(c *gin.Context) {
	var req SetOutputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	if err := h.controller.SetOutput(req.Device, req.On); err != nil {
		c.JSON(hardwareErrorStatus(err), ErrorResponse{
			Code:    "OUTPUT_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "命令已下发",
	})
}

// Probe 深度健康检查
// @Summary 固件探测
// @Description 发送状态探测并同步等待固件回报
// @Tags Hardware
// @Security Bearer
// @Success 200 {object} ProbeResponse
// @Failure 504 {object} ErrorResponse
// @Router /api/v1/hardware/probe [post]
func (h *HardwareHandler) Probe(c *gin.Context) {
	start := time.Now()
	line, err := h.controller.Probe(c.Request.Context())
	if err != nil {
		c.JSON(hardwareErrorStatus(err), ErrorResponse{
			Code:    "PROBE_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, ProbeResponse{
		Response:  line,
		ElapsedMS: time.Since(start).Milliseconds(),
	})
}

// SendCommand 发送原始命令（诊断用）
// @Summary 发送原始串口命令
// @Description 直接向固件发送一行命令，可选等待指定前缀的响应
// @Tags Hardware
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body RawCommandRequest true "命令"
// @Success 200 {object} RawCommandResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/hardware/command [post]
func (h *HardwareHandler) SendCommand(c *gin.Context) {
	var req RawCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	h.logger.Info("下发诊断命令",
		zap.String("command", req.Command),
		zap.String("expect_prefix", req.ExpectPrefix))

	// 不要求响应时发后即返
	if req.ExpectPrefix == "" {
		if err := h.controller.SendCommand(req.Command); err != nil {
			c.JSON(hardwareErrorStatus(err), ErrorResponse{
				Code:    "COMMAND_FAILED",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, RawCommandResponse{Sent: true})
		return
	}

	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	prefix := req.ExpectPrefix
	line, err := h.controller.SendCommandWithResponse(c.Request.Context(), req.Command,
		func(l string) bool { return len(l) >= len(prefix) && l[:len(prefix)] == prefix },
		timeout)
	if err != nil {
		c.JSON(hardwareErrorStatus(err), ErrorResponse{
			Code:    "COMMAND_FAILED",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, RawCommandResponse{Sent: true, Response: line})
}

// hardwareErrorStatus 按错误码映射HTTP状态
func hardwareErrorStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrInvalidParam:
		return http.StatusBadRequest
	case errors.ErrNotConnected, errors.ErrConnectionLost:
		return http.StatusServiceUnavailable
	case errors.ErrSerialTimeout, errors.ErrTimeout:
		return http.StatusGatewayTimeout
	case errors.ErrCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// 请求和响应结构体

// InitializeRequest 串口连接请求
type InitializeRequest struct {
	Port string `json:"port"`
}

// SetOutputRequest 输出控制请求
type SetOutputRequest struct {
	Device string `json:"device" binding:"required"`
	On     bool   `json:"on"`
}

// DistanceResponse 距离读数响应
type DistanceResponse struct {
	DistanceCM float64    `json:"distance_cm"`
	Detected   bool       `json:"is_detected"`
	Connected  bool       `json:"connected"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

// ProbeResponse 固件探测响应
type ProbeResponse struct {
	Response  string `json:"response"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// RawCommandRequest 原始命令请求
type RawCommandRequest struct {
	Command      string `json:"command" binding:"required"`
	ExpectPrefix string `json:"expect_prefix"`
	TimeoutMS    int    `json:"timeout_ms"`
}

// RawCommandResponse 原始命令响应
type RawCommandResponse struct {
	Sent     bool   `json:"sent"`
	Response string `json:"response,omitempty"`
}
