package hardware

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// State 串口连接状态
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// 矩阵键盘按钮编号范围
const (
	MatrixButtonMin = 1
	MatrixButtonMax = 40
)

// statusProbeCommand 状态探测命令，固件以 STATUS:READY 与 VERSION: 回应
const statusProbeCommand = "STATUS"

// 未连接时的模拟距离区间（厘米）
const (
	simDistanceMin = 20.0
	simDistanceMax = 120.0
)

const logChannelDispenser = "dispenser"

// DeviceLogRecorder 串口通信日志持久化接口
type DeviceLogRecorder interface {
	Record(channel, direction, line string)
}

// MatrixButtonResult 出货按钮发送结果
type MatrixButtonResult struct {
	Button    int  `json:"button"`
	Simulated bool `json:"simulated,omitempty"`
}

// StatusReport 控制器综合状态
type StatusReport struct {
	State           string      `json:"state"`
	Port            string      `json:"port"`
	FirmwareReady   bool        `json:"firmware_ready"`
	FirmwareVersion string      `json:"firmware_version,omitempty"`
	PendingRequests int         `json:"pending_requests"`
	Device          DeviceState `json:"device"`
}

// Controller 出货控制板控制器
// 管理串口生命周期，持续读取固件上行消息并维护设备状态，
// 出货按钮、LED、电机命令经同一串口下发
type Controller struct {
	config   Config
	logger   *zap.Logger
	openPort func(Config) (SerialPort, error)

	mu       sync.RWMutex
	state    State
	port     SerialPort
	stopCh   chan struct{}
	portPath string
	ready    bool
	version  string

	framer     *LineFramer
	correlator *Correlator
	store      *StateStore
	events     chan Event
	wg         sync.WaitGroup

	deviceLog DeviceLogRecorder
}

// NewController 创建出货控制板控制器
func NewController(config Config, logger *zap.Logger) *Controller {
	config = config.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		config:     config,
		logger:     logger,
		openPort:   OpenSerial,
		state:      StateDisconnected,
		portPath:   config.Port,
		framer:     NewLineFramer(),
		correlator: NewCorrelator(logger),
		store:      NewStateStore(),
		events:     make(chan Event, config.EventBuffer),
	}
}

// SetPortOpener 替换串口打开函数，测试与模拟模式注入用
func (c *Controller) SetPortOpener(open func(Config) (SerialPort, error)) {
	c.openPort = open
}

// SetDeviceLogRecorder 挂接串口通信日志持久化
func (c *Controller) SetDeviceLogRecorder(recorder DeviceLogRecorder) {
	c.deviceLog = recorder
}

// Initialize 打开串口并启动读取循环
// portPath 为空时使用配置中的端口；打开失败回到断开状态并返回错误
// 成功后发送一次状态探测，不等待响应，就绪与版本经事件异步回填
func (c *Controller) Initialize(portPath string) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		current := c.state
		c.mu.Unlock()
		c.logger.Debug("硬件已在连接流程中，跳过初始化", zap.String("state", current.String()))
		return nil
	}
	c.state = StateConnecting

	cfg := c.config
	if portPath != "" {
		cfg.Port = portPath
	}
	c.portPath = cfg.Port
	c.mu.Unlock()

	c.logger.Info("连接出货控制板",
		zap.String("port", cfg.Port),
		zap.Int("baud_rate", cfg.BaudRate))

	port, err := c.openPort(cfg)
	if err != nil {
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.logger.Error("串口打开失败", zap.String("port", cfg.Port), zap.Error(err))
		return err
	}

	c.mu.Lock()
	c.port = port
	c.stopCh = make(chan struct{})
	c.framer.Reset()
	c.state = StateConnected
	stopCh := c.stopCh
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(port, stopCh)

	if err := c.SendCommand(statusProbeCommand); err != nil {
		c.logger.Warn("状态探测发送失败", zap.Error(err))
	}

	c.publish(ConnectionEvent{State: StateConnected.String()})
	c.logger.Info("出货控制板已连接", zap.String("port", cfg.Port))
	return nil
}

// readLoop 持续读取串口数据并按行处理
func (c *Controller) readLoop(port SerialPort, stopCh chan struct{}) {
	defer c.wg.Done()

	buffer := make([]byte, 1024)
	lastDropped := c.framer.Dropped()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		n, err := port.Read(buffer)
		if err != nil {
			errStr := err.Error()
			switch {
			case strings.Contains(errStr, "timeout"):
				continue
			case strings.Contains(errStr, "EOF"):
				time.Sleep(5 * time.Millisecond)
				continue
			case strings.Contains(errStr, "device not configured"),
				strings.Contains(errStr, "broken pipe"),
				strings.Contains(errStr, "input/output error"),
				strings.Contains(errStr, "file already closed"),
				strings.Contains(errStr, "port closed"):
				c.connectionLost(err)
				return
			default:
				c.logger.Debug("串口读取错误", zap.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		if n == 0 {
			// 部分驱动超时返回零字节且无错误，稍等避免空转
			time.Sleep(5 * time.Millisecond)
			continue
		}

		for _, line := range c.framer.Push(buffer[:n]) {
			c.handleLine(line)
		}

		if dropped := c.framer.Dropped(); dropped != lastDropped {
			lastDropped = dropped
			c.logger.Warn("串口数据长期无换行，缓冲已丢弃", zap.Int("total_drops", dropped))
		}
	}
}

// handleLine 处理一行固件消息：先更新状态并发布事件，再派发给等待中的请求
func (c *Controller) handleLine(line string) {
	c.logger.Debug("收到控制板消息", zap.String("raw", line))
	c.recordLog("RECEIVE", line)

	event, err := Classify(line)
	if err != nil {
		c.logger.Warn("控制板消息解析失败", zap.String("raw", line), zap.Error(err))
	} else {
		switch ev := event.(type) {
		case UnrecognizedEvent:
			c.logger.Debug("未识别的控制板消息", zap.String("raw", ev.Raw))
		case FirmwareStatusEvent:
			c.mu.Lock()
			if ev.Ready {
				c.ready = true
			}
			if ev.Version != "" {
				c.version = ev.Version
			}
			c.mu.Unlock()
			c.publish(event)
		default:
			c.store.Apply(event)
			c.publish(event)
		}
	}

	c.correlator.Dispatch(line)
}

// publish 非阻塞发布事件，通道满时丢弃
func (c *Controller) publish(event Event) {
	select {
	case c.events <- event:
	default:
		c.logger.Warn("硬件事件通道已满，丢弃事件", zap.String("kind", string(event.Kind())))
	}
}

// connectionLost 读取循环检测到串口失效时收尾
func (c *Controller) connectionLost(cause error) {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	port := c.port
	c.port = nil
	stopCh := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if port != nil {
		_ = port.Close()
	}

	c.store.ResetOutputs()
	c.correlator.FailAll(errors.Wrap(cause, errors.ErrConnectionLost, "串口连接丢失"))
	c.publish(ConnectionEvent{State: StateDisconnected.String()})
	c.logger.Error("出货控制板连接丢失", zap.Error(cause))
}

// Disconnect 断开串口连接
// 幂等且不报错：先逻辑停止 LED 与电机输出，再关闭串口，内部错误只记录
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected && c.port == nil {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	port := c.port
	c.port = nil
	stopCh := c.stopCh
	c.stopCh = nil
	c.mu.Unlock()

	// 输出停机指令尽力而为，设备拔出时写入失败也无妨
	if port != nil {
		for _, command := range []string{"LED1:OFF", "LED2:OFF", "MOTOR:OFF"} {
			_, _ = port.Write([]byte(command + "\n"))
		}
	}
	c.store.ResetOutputs()
	c.correlator.FailAll(errors.New(errors.ErrConnectionLost, "连接已主动断开"))

	if stopCh != nil {
		close(stopCh)
	}
	if port != nil {
		if err := port.Close(); err != nil {
			c.logger.Warn("关闭串口失败", zap.Error(err))
		}
	}
	c.wg.Wait()

	c.publish(ConnectionEvent{State: StateDisconnected.String()})
	c.logger.Info("出货控制板已断开")
}

// SendCommand 发送一条命令，不等待响应
func (c *Controller) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New(errors.ErrInvalidParam, "命令不能为空")
	}
	return c.writeLine(command)
}

// SendCommandWithResponse 发送命令并等待匹配的响应行
func (c *Controller) SendCommandWithResponse(ctx context.Context, command string, matches func(string) bool, timeout time.Duration) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New(errors.ErrInvalidParam, "命令不能为空")
	}
	if timeout <= 0 {
		timeout = c.config.CommandTimeout
	}

	req := c.correlator.Register(command, matches)
	if err := c.writeLine(command); err != nil {
		c.correlator.Cancel(req)
		return "", err
	}
	return c.correlator.Wait(ctx, req, timeout)
}

// Probe 发送状态探测并等待固件回报，深度健康检查用
func (c *Controller) Probe(ctx context.Context) (string, error) {
	return c.SendCommandWithResponse(ctx, statusProbeCommand, func(line string) bool {
		return line == "STATUS:READY" || strings.HasPrefix(line, prefixVersion)
	}, c.config.CommandTimeout)
}

// SendMatrixButton 触发矩阵键盘按钮出货
// 编号超出 [1, 40] 时直接拒绝，不向串口写任何数据；
// 发后即忘，固件确认经事件通道异步上报；未连接时模拟成功保证演示流程可走通
func (c *Controller) SendMatrixButton(button int) (*MatrixButtonResult, error) {
	if button < MatrixButtonMin || button > MatrixButtonMax {
		return nil, errors.Newf(errors.ErrInvalidParam,
			"按钮编号 %d 超出范围 [%d, %d]", button, MatrixButtonMin, MatrixButtonMax)
	}

	if err := c.writeLine(strconv.Itoa(button)); err != nil {
		if errors.GetCode(err) == errors.ErrNotConnected {
			c.logger.Info("硬件未连接，模拟出货按钮", zap.Int("button", button))
			return &MatrixButtonResult{Button: button, Simulated: true}, nil
		}
		return nil, err
	}

	c.logger.Info("已发送出货按钮", zap.Int("button", button))
	return &MatrixButtonResult{Button: button}, nil
}

// SetOutput 控制 LED 或电机开关，实际状态以固件 CONTROLLER 回报为准
func (c *Controller) SetOutput(device string, on bool) error {
	dev := strings.ToUpper(strings.TrimSpace(device))
	switch dev {
	case "LED1", "LED2", "MOTOR":
	default:
		return errors.Newf(errors.ErrInvalidParam, "不支持的输出设备: %s", device)
	}

	stateWord := "OFF"
	if on {
		stateWord = "ON"
	}
	return c.SendCommand(dev + ":" + stateWord)
}

// ReadDistance 读取当前感应距离（厘米），从不失败
// 已连接时触发一次状态探测并返回最近读数，未连接或尚无读数时返回模拟值
func (c *Controller) ReadDistance() float64 {
	if c.State() == StateConnected {
		if err := c.writeLine(statusProbeCommand); err != nil {
			c.logger.Debug("距离探测发送失败", zap.Error(err))
		}
		if distance, ok := c.store.LastDistance(); ok {
			return distance
		}
	}
	return simDistanceMin + rand.Float64()*(simDistanceMax-simDistanceMin)
}

// State 返回连接状态
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected 是否已连接
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// DeviceState 返回设备状态快照
func (c *Controller) DeviceState() DeviceState {
	return c.store.Snapshot()
}

// Events 返回硬件事件通道
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Status 返回控制器综合状态
func (c *Controller) Status() StatusReport {
	c.mu.RLock()
	state := c.state
	portPath := c.portPath
	ready := c.ready
	version := c.version
	c.mu.RUnlock()

	return StatusReport{
		State:           state.String(),
		Port:            portPath,
		FirmwareReady:   ready,
		FirmwareVersion: version,
		PendingRequests: c.correlator.PendingCount(),
		Device:          c.store.Snapshot(),
	}
}

// writeLine 带换行写入串口
func (c *Controller) writeLine(line string) error {
	c.mu.RLock()
	port := c.port
	state := c.state
	c.mu.RUnlock()

	if state != StateConnected || port == nil {
		return errors.New(errors.ErrNotConnected, "出货控制板未连接")
	}

	if _, err := port.Write([]byte(line + "\n")); err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortWrite, "串口写入失败: %s", line)
	}

	c.logger.Debug("发送控制板命令", zap.String("command", line))
	c.recordLog("SEND", line)
	return nil
}

func (c *Controller) recordLog(direction, line string) {
	if c.deviceLog != nil {
		c.deviceLog.Record(logChannelDispenser, direction, line)
	}
}
