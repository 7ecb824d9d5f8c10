package payment

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// ipcRequest 发往现金模块进程的按行 JSON 请求
type ipcRequest struct {
	Op        string `json:"op"`
	Amount    int64  `json:"amount,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

// ipcResponse 现金模块进程的按行 JSON 应答
type ipcResponse struct {
	OK             bool   `json:"ok"`
	Status         string `json:"status,omitempty"`
	ReceivedAmount int64  `json:"received_amount,omitempty"`
	Error          string `json:"error,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
}

// IPCCashHandler 经本机 Unix 套接字与现金机具守护进程通信
// 每次操作独立拨号，协议为一行 JSON 请求对一行 JSON 应答
type IPCCashHandler struct {
	socketPath      string
	statusTimeout   time.Duration
	dispenseTimeout time.Duration
	logger          *zap.Logger

	// mu 串行化往返，现金模块一次只处理一件事
	mu sync.Mutex
}

// NewIPCCashHandler 创建现金模块 IPC 客户端
func NewIPCCashHandler(socketPath string, dispenseTimeout time.Duration, logger *zap.Logger) *IPCCashHandler {
	if dispenseTimeout <= 0 {
		dispenseTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IPCCashHandler{
		socketPath:      socketPath,
		statusTimeout:   3 * time.Second,
		dispenseTimeout: dispenseTimeout,
		logger:          logger,
	}
}

// GetStatus 查询现金模块状态
func (h *IPCCashHandler) GetStatus(ctx context.Context) (string, error) {
	resp, err := h.roundTrip(ctx, ipcRequest{Op: "status"}, h.statusTimeout)
	if err != nil {
		return "", err
	}
	if !resp.OK {
		return "", errors.Newf(errors.ErrNetworkRequest, "现金模块报告异常: %s", resp.Error)
	}
	if resp.Status == "" {
		return "ready", nil
	}
	return resp.Status, nil
}

// WaitForCash 等待投币
// 现金模块在协议层报告的失败（超时、退币）作为结果返回，不作为错误
func (h *IPCCashHandler) WaitForCash(ctx context.Context, amount int64, timeout time.Duration) (*CashResult, error) {
	resp, err := h.roundTrip(ctx, ipcRequest{
		Op:        "wait_for_cash",
		Amount:    amount,
		TimeoutMs: timeout.Milliseconds(),
	}, timeout+5*time.Second)
	if err != nil {
		return nil, err
	}

	return &CashResult{
		Success:        resp.OK,
		ReceivedAmount: resp.ReceivedAmount,
		Error:          resp.Error,
		ErrorCode:      resp.ErrorCode,
	}, nil
}

// DispenseChange 吐出找零
func (h *IPCCashHandler) DispenseChange(ctx context.Context, amount int64) error {
	resp, err := h.roundTrip(ctx, ipcRequest{Op: "dispense_change", Amount: amount}, h.dispenseTimeout)
	if err != nil {
		return err
	}
	if !resp.OK {
		return errors.Newf(errors.ErrChangeDispense, "现金模块找零失败: %s", resp.Error)
	}
	return nil
}

// roundTrip 拨号、发一行请求、收一行应答
func (h *IPCCashHandler) roundTrip(ctx context.Context, req ipcRequest, deadline time.Duration) (*ipcResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "unix", h.socketPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrNetworkRequest, "连接现金模块失败: %s", h.socketPath)
	}
	defer conn.Close()

	if deadline > 0 {
		_ = conn.SetDeadline(time.Now().Add(deadline))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, errors.Wrap(err, errors.ErrNetworkRequest, "发送现金模块请求失败")
	}

	h.logger.Debug("现金模块请求已发送",
		zap.String("op", req.Op),
		zap.Int64("amount", req.Amount))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, errors.Wrapf(err, errors.ErrCashTimeout, "现金模块响应超时: %s", req.Op)
		}
		return nil, errors.Wrap(err, errors.ErrNetworkRequest, "读取现金模块应答失败")
	}

	var resp ipcResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrMessageFormat, "现金模块应答格式错误")
	}

	h.logger.Debug("现金模块应答",
		zap.String("op", req.Op),
		zap.Bool("ok", resp.OK),
		zap.Int64("received_amount", resp.ReceivedAmount))
	return &resp, nil
}
