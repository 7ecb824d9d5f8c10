package payment

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// CashResult 现金等待结果
type CashResult struct {
	Success        bool   `json:"success"`
	ReceivedAmount int64  `json:"received_amount"`
	Error          string `json:"error,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
}

// CashHandler 外部现金机具协作接口（纸币器 + 找零器）
type CashHandler interface {
	// GetStatus 查询机具状态
	GetStatus(ctx context.Context) (string, error)

	// WaitForCash 等待顾客投入不少于 amount 的现金，超时放弃
	WaitForCash(ctx context.Context, amount int64, timeout time.Duration) (*CashResult, error)

	// DispenseChange 吐出找零
	DispenseChange(ctx context.Context, amount int64) error
}

// CashTerminal 现金支付终端
// 等待投币、计算并吐出找零后才算成功；现金一经投入不可撤销，取消一律拒绝
type CashTerminal struct {
	handler     CashHandler
	waitTimeout time.Duration
	logger      *zap.Logger

	// opMu 同一时刻只允许一个现金会话
	opMu sync.Mutex
}

// NewCashTerminal 创建现金支付终端
func NewCashTerminal(handler CashHandler, waitTimeout time.Duration, logger *zap.Logger) *CashTerminal {
	if waitTimeout <= 0 {
		waitTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CashTerminal{
		handler:     handler,
		waitTimeout: waitTimeout,
		logger:      logger,
	}
}

// Connect 探测现金机具可用性
func (t *CashTerminal) Connect(ctx context.Context) error {
	status, err := t.handler.GetStatus(ctx)
	if err != nil {
		t.logger.Error("现金机具探测失败", zap.Error(err))
		return err
	}

	t.logger.Info("现金机具就绪", zap.String("status", status))
	return nil
}

// Disconnect 断开现金机具
func (t *CashTerminal) Disconnect() {
	if closer, ok := t.handler.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			t.logger.Warn("关闭现金机具失败", zap.Error(err))
		}
	}
	t.logger.Info("现金机具已断开")
}

// ProcessPayment 执行一笔现金支付
// 投入金额超出应付部分先吐出找零再返回成功，找零失败整笔按失败上报
func (t *CashTerminal) ProcessPayment(ctx context.Context, req *Request) *Response {
	if req == nil {
		return failure(nil, CodeInvalidRequest, "支付请求为空")
	}
	if req.Amount <= 0 || req.OrderID == "" {
		return failure(req, CodeInvalidRequest, "金额或订单号无效")
	}
	if !t.opMu.TryLock() {
		return failure(req, CodeTerminalBusy, "已有现金会话进行中")
	}
	defer t.opMu.Unlock()

	t.logger.Info("等待现金投入",
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", req.Amount),
		zap.Duration("timeout", t.waitTimeout))

	result, err := t.handler.WaitForCash(ctx, req.Amount, t.waitTimeout)
	if err != nil {
		code := CodePaymentProcessing
		switch errors.GetCode(err) {
		case errors.ErrCashTimeout, errors.ErrTimeout, errors.ErrSerialTimeout:
			code = CodeTimeout
		}
		t.logger.Warn("等待现金失败",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return failure(req, code, "等待投币失败: "+err.Error())
	}

	if !result.Success {
		code := result.ErrorCode
		if code == "" {
			code = CodePaymentProcessing
		}
		message := result.Error
		if message == "" {
			message = "现金机具报告失败"
		}
		return failure(req, code, message)
	}

	received := result.ReceivedAmount
	if received < req.Amount {
		return failure(req, CodePaymentProcessing,
			fmt.Sprintf("投币金额不足: 收到 %d，应付 %d", received, req.Amount))
	}

	change := received - req.Amount
	if change > 0 {
		t.logger.Info("吐出找零",
			zap.String("order_id", req.OrderID),
			zap.Int64("change", change))

		if err := t.handler.DispenseChange(ctx, change); err != nil {
			t.logger.Error("找零失败",
				zap.String("order_id", req.OrderID),
				zap.Int64("change", change),
				zap.Error(err))
			return failure(req, CodeChangeDispense,
				fmt.Sprintf("找零 %d 失败: %v", change, err))
		}
	}

	resp := &Response{
		Success:       true,
		OrderID:       req.OrderID,
		Method:        req.Method,
		TransactionID: "CASH-" + uuid.NewString()[:8],
		ChangeAmount:  change,
		ReceiptData: fmt.Sprintf("현금결제 금액:%d 받은금액:%d 거스름돈:%d",
			req.Amount, received, change),
	}

	t.logger.Info("现金支付成功",
		zap.String("order_id", req.OrderID),
		zap.String("transaction_id", resp.TransactionID),
		zap.Int64("received", received),
		zap.Int64("change", change))
	return resp
}

// CancelPayment 现金交易不可取消
func (t *CashTerminal) CancelPayment(_ context.Context, transactionID string) *Response {
	return &Response{
		Success:       false,
		Method:        MethodCash,
		TransactionID: transactionID,
		ErrorCode:     CodeCashCancelNotSupported,
		ErrorMessage:  "现金一经投入不可取消",
	}
}

// Status 查询现金机具状态
func (t *CashTerminal) Status(ctx context.Context) TerminalStatus {
	status := TerminalStatus{Method: MethodCash}

	if !t.opMu.TryLock() {
		status.Status = "busy"
		return status
	}
	defer t.opMu.Unlock()

	state, err := t.handler.GetStatus(ctx)
	if err != nil {
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}

	status.Status = state
	status.Available = state == "ready"
	return status
}
