package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/utils"
)

const logChannelCard = "card"

// CardOptions 刷卡终端参数
type CardOptions struct {
	Port          string
	BaudRate      int
	ReadTimeout   time.Duration
	Timeout       time.Duration // 支付等待上限
	CancelTimeout time.Duration // 取消等待上限
	StatusTimeout time.Duration // 状态探测上限
}

func (o CardOptions) withDefaults() CardOptions {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 100 * time.Millisecond
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.CancelTimeout <= 0 {
		o.CancelTimeout = 10 * time.Second
	}
	if o.StatusTimeout <= 0 {
		o.StatusTimeout = 3 * time.Second
	}
	return o
}

// CardTerminal 刷卡支付终端
// 协议为 \r\n 结尾的 CSV，应答不带标签，同一时刻只允许一笔在途交易
type CardTerminal struct {
	options  CardOptions
	logger   *zap.Logger
	openPort func(hardware.Config) (hardware.SerialPort, error)

	mu        sync.RWMutex
	connected bool
	port      hardware.SerialPort
	stopCh    chan struct{}

	// opMu 串行化交易，应答无标签时并发请求无法区分归属
	opMu sync.Mutex

	framer     *hardware.LineFramer
	correlator *hardware.Correlator
	wg         sync.WaitGroup

	deviceLog hardware.DeviceLogRecorder
}

// NewCardTerminal 创建刷卡终端
func NewCardTerminal(options CardOptions, logger *zap.Logger) *CardTerminal {
	options = options.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CardTerminal{
		options:    options,
		logger:     logger,
		openPort:   hardware.OpenSerial,
		framer:     hardware.NewLineFramer(),
		correlator: hardware.NewCorrelator(logger),
	}
}

// SetPortOpener 替换串口打开函数，测试与模拟模式注入用
func (t *CardTerminal) SetPortOpener(open func(hardware.Config) (hardware.SerialPort, error)) {
	t.openPort = open
}

// SetDeviceLogRecorder 挂接串口通信日志持久化
func (t *CardTerminal) SetDeviceLogRecorder(recorder hardware.DeviceLogRecorder) {
	t.deviceLog = recorder
}

// Connect 打开刷卡终端串口并启动读取循环
func (t *CardTerminal) Connect(_ context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	port, err := t.openPort(hardware.Config{
		Port:        t.options.Port,
		BaudRate:    t.options.BaudRate,
		ReadTimeout: t.options.ReadTimeout,
	})
	if err != nil {
		t.logger.Error("刷卡终端串口打开失败",
			zap.String("port", t.options.Port),
			zap.Error(err))
		return err
	}

	t.mu.Lock()
	t.port = port
	t.stopCh = make(chan struct{})
	t.framer.Reset()
	t.connected = true
	stopCh := t.stopCh
	t.mu.Unlock()

	t.wg.Add(1)
	go t.readLoop(port, stopCh)

	t.logger.Info("刷卡终端已连接", zap.String("port", t.options.Port))
	return nil
}

// Disconnect 断开刷卡终端，幂等且不报错
func (t *CardTerminal) Disconnect() {
	t.mu.Lock()
	if !t.connected && t.port == nil {
		t.mu.Unlock()
		return
	}
	t.connected = false
	port := t.port
	t.port = nil
	stopCh := t.stopCh
	t.stopCh = nil
	t.mu.Unlock()

	t.correlator.FailAll(errors.New(errors.ErrConnectionLost, "刷卡终端已主动断开"))

	if stopCh != nil {
		close(stopCh)
	}
	if port != nil {
		if err := port.Close(); err != nil {
			t.logger.Warn("关闭刷卡终端串口失败", zap.Error(err))
		}
	}
	t.wg.Wait()

	t.logger.Info("刷卡终端已断开")
}

// ProcessPayment 发起一笔刷卡/手机支付
// 无响应超时后结果未知，以 PAYMENT_PROCESSING_ERROR 上报，不能当作确定失败
func (t *CardTerminal) ProcessPayment(ctx context.Context, req *Request) *Response {
	if req == nil {
		return failure(nil, CodeInvalidRequest, "支付请求为空")
	}
	if req.Amount <= 0 || req.OrderID == "" {
		return failure(req, CodeInvalidRequest, "金额或订单号无效")
	}
	if !t.isConnected() {
		return failure(req, CodeNotConnected, "刷卡终端未连接")
	}
	if !t.opMu.TryLock() {
		return failure(req, CodeTerminalBusy, "已有交易进行中")
	}
	defer t.opMu.Unlock()

	command := fmt.Sprintf("PAY,%d,%s,%s",
		req.Amount, req.OrderID, strings.ToUpper(string(req.Method)))

	t.logger.Info("发起刷卡支付",
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", req.Amount),
		zap.String("method", string(req.Method)))

	line, err := t.roundTrip(ctx, command, t.options.Timeout)
	if err != nil {
		t.logger.Warn("刷卡支付无响应，结果未知",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return failure(req, CodePaymentProcessing, "支付无响应，结果未知: "+err.Error())
	}

	return t.parseResultLine(req, line)
}

// CancelPayment 取消一笔刷卡交易
func (t *CardTerminal) CancelPayment(ctx context.Context, transactionID string) *Response {
	if transactionID == "" {
		return failure(nil, CodeInvalidRequest, "交易号为空")
	}
	if !t.isConnected() {
		return &Response{Success: false, Method: MethodCard, TransactionID: transactionID,
			ErrorCode: CodeNotConnected, ErrorMessage: "刷卡终端未连接"}
	}
	if !t.opMu.TryLock() {
		return &Response{Success: false, Method: MethodCard, TransactionID: transactionID,
			ErrorCode: CodeTerminalBusy, ErrorMessage: "已有交易进行中"}
	}
	defer t.opMu.Unlock()

	t.logger.Info("取消刷卡交易", zap.String("transaction_id", transactionID))

	line, err := t.roundTrip(ctx, "CANCEL,"+transactionID, t.options.CancelTimeout)
	if err != nil {
		t.logger.Warn("取消交易无响应",
			zap.String("transaction_id", transactionID),
			zap.Error(err))
		return &Response{Success: false, Method: MethodCard, TransactionID: transactionID,
			ErrorCode: CodeCancelProcessing, ErrorMessage: "取消无响应: " + err.Error()}
	}

	resp := t.parseResultLine(nil, line)
	resp.Method = MethodCard
	if resp.TransactionID == "" {
		resp.TransactionID = transactionID
	}
	if !resp.Success && resp.ErrorCode == "" {
		resp.ErrorCode = CodeCancelProcessing
	}
	return resp
}

// Status 查询刷卡终端状态
func (t *CardTerminal) Status(ctx context.Context) TerminalStatus {
	status := TerminalStatus{Method: MethodCard}

	if !t.isConnected() {
		status.Status = "disconnected"
		return status
	}
	if !t.opMu.TryLock() {
		status.Status = "busy"
		return status
	}
	defer t.opMu.Unlock()

	line, err := t.roundTrip(ctx, "STATUS", t.options.StatusTimeout)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}

	switch line {
	case "READY":
		status.Available = true
		status.Status = "ready"
	case "BUSY":
		status.Status = "busy"
	default:
		status.Status = "error"
		status.Detail = line
	}
	return status
}

// roundTrip 先登记再写串口，等待下一行应答
func (t *CardTerminal) roundTrip(ctx context.Context, command string, timeout time.Duration) (string, error) {
	req := t.correlator.Register(command, nil)
	if err := t.writeLine(command); err != nil {
		t.correlator.Cancel(req)
		return "", err
	}
	return t.correlator.Wait(ctx, req, timeout)
}

// parseResultLine 解析终端应答
// 成功行 SUCCESS,<txId>,<approval>,<receipt>，失败行 <code>,<message>,<errorCode>
func (t *CardTerminal) parseResultLine(req *Request, line string) *Response {
	resp := &Response{}
	if req != nil {
		resp.OrderID = req.OrderID
		resp.Method = req.Method
	}

	parts := strings.SplitN(line, ",", 4)
	if parts[0] == "SUCCESS" {
		resp.Success = true
		if len(parts) > 1 {
			resp.TransactionID = parts[1]
		}
		if len(parts) > 2 {
			resp.ApprovalNumber = parts[2]
		}
		if len(parts) > 3 {
			resp.ReceiptData = parts[3]
		}

		t.logger.Info("刷卡支付成功",
			zap.String("order_id", resp.OrderID),
			zap.String("transaction_id", resp.TransactionID),
			zap.String("approval_number", resp.ApprovalNumber))
		return resp
	}

	failParts := strings.SplitN(line, ",", 3)
	resp.ErrorCode = failParts[0]
	if len(failParts) > 1 {
		resp.ErrorMessage = failParts[1]
	}
	if len(failParts) > 2 && failParts[2] != "" {
		resp.ErrorCode = failParts[2]
	}
	if resp.ErrorMessage == "" {
		resp.ErrorMessage = "终端拒绝交易"
	}

	t.logger.Warn("刷卡支付失败",
		zap.String("order_id", resp.OrderID),
		zap.String("error_code", resp.ErrorCode),
		zap.String("error_message", resp.ErrorMessage))
	return resp
}

func (t *CardTerminal) readLoop(port hardware.SerialPort, stopCh chan struct{}) {
	defer t.wg.Done()

	buffer := make([]byte, 1024)
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
				t.connectionLost(err)
				return
			default:
				t.logger.Debug("刷卡终端读取错误", zap.Error(err))
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}

		for _, line := range t.framer.Push(buffer[:n]) {
			masked := utils.SanitizeSerialLine(line)
			t.logger.Debug("收到刷卡终端消息", zap.String("raw", masked))
			t.recordLog("RECEIVE", masked)

			if !t.correlator.Dispatch(line) {
				t.logger.Debug("刷卡终端消息无人认领", zap.String("raw", masked))
			}
		}
	}
}

func (t *CardTerminal) connectionLost(cause error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	port := t.port
	t.port = nil
	stopCh := t.stopCh
	t.stopCh = nil
	t.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if port != nil {
		_ = port.Close()
	}

	t.correlator.FailAll(errors.Wrap(cause, errors.ErrConnectionLost, "刷卡终端连接丢失"))
	t.logger.Error("刷卡终端连接丢失", zap.Error(cause))
}

func (t *CardTerminal) writeLine(command string) error {
	t.mu.RLock()
	port := t.port
	connected := t.connected
	t.mu.RUnlock()

	if !connected || port == nil {
		return errors.New(errors.ErrNotConnected, "刷卡终端未连接")
	}

	if _, err := port.Write([]byte(command + "\r\n")); err != nil {
		return errors.Wrapf(err, errors.ErrSerialPortWrite, "刷卡终端写入失败")
	}

	masked := utils.SanitizeSerialLine(command)
	t.logger.Debug("发送刷卡终端命令", zap.String("command", masked))
	t.recordLog("SEND", masked)
	return nil
}

func (t *CardTerminal) isConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *CardTerminal) recordLog(direction, line string) {
	if t.deviceLog != nil {
		t.deviceLog.Record(logChannelCard, direction, line)
	}
}
