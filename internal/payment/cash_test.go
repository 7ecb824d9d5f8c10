package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// fakeCashHandler 脚本化现金机具
type fakeCashHandler struct {
	mu        sync.Mutex
	status    string
	statusErr error
	result    *CashResult
	waitErr   error
	dispenses []int64
	dispErr   error
}

func (h *fakeCashHandler) GetStatus(context.Context) (string, error) {
	if h.statusErr != nil {
		return "", h.statusErr
	}
	if h.status == "" {
		return "ready", nil
	}
	return h.status, nil
}

func (h *fakeCashHandler) WaitForCash(context.Context, int64, time.Duration) (*CashResult, error) {
	if h.waitErr != nil {
		return nil, h.waitErr
	}
	return h.result, nil
}

func (h *fakeCashHandler) DispenseChange(_ context.Context, amount int64) error {
	h.mu.Lock()
	h.dispenses = append(h.dispenses, amount)
	h.mu.Unlock()
	return h.dispErr
}

func (h *fakeCashHandler) dispensed() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.dispenses))
	copy(out, h.dispenses)
	return out
}

func TestCashTerminalChangeScenario(t *testing.T) {
	// 应付 5000，投入 6000，先找零 1000 再成功
	handler := &fakeCashHandler{result: &CashResult{Success: true, ReceivedAmount: 6000}}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER1",
		Amount:  5000,
		Method:  MethodCash,
	})

	require.True(t, resp.Success)
	assert.Equal(t, int64(1000), resp.ChangeAmount)
	assert.Equal(t, []int64{1000}, handler.dispensed())
	assert.Contains(t, resp.ReceiptData, "거스름돈:1000")
	assert.Contains(t, resp.ReceiptData, "받은금액:6000")
	assert.NotEmpty(t, resp.TransactionID)
}

func TestCashTerminalExactAmount(t *testing.T) {
	handler := &fakeCashHandler{result: &CashResult{Success: true, ReceivedAmount: 5000}}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER2",
		Amount:  5000,
		Method:  MethodCash,
	})

	require.True(t, resp.Success)
	assert.Zero(t, resp.ChangeAmount)
	// 无找零时不触发吐钞
	assert.Empty(t, handler.dispensed())
	assert.Contains(t, resp.ReceiptData, "거스름돈:0")
}

func TestCashTerminalWaitTimeout(t *testing.T) {
	handler := &fakeCashHandler{
		waitErr: errors.New(errors.ErrCashTimeout, "现金模块响应超时"),
	}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER3",
		Amount:  5000,
		Method:  MethodCash,
	})

	require.False(t, resp.Success)
	assert.Equal(t, CodeTimeout, resp.ErrorCode)
}

func TestCashTerminalHandlerReportedFailure(t *testing.T) {
	// 机具在协议层报告失败（顾客放弃、退币），错误码透传
	handler := &fakeCashHandler{
		result: &CashResult{Success: false, Error: "투입 취소", ErrorCode: "CASH_RETURNED"},
	}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER4",
		Amount:  5000,
		Method:  MethodCash,
	})

	require.False(t, resp.Success)
	assert.Equal(t, "CASH_RETURNED", resp.ErrorCode)
	assert.Equal(t, "투입 취소", resp.ErrorMessage)
}

func TestCashTerminalUnderpaid(t *testing.T) {
	handler := &fakeCashHandler{result: &CashResult{Success: true, ReceivedAmount: 4000}}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER5",
		Amount:  5000,
		Method:  MethodCash,
	})

	require.False(t, resp.Success)
	assert.Equal(t, CodePaymentProcessing, resp.ErrorCode)
	assert.Empty(t, handler.dispensed())
}

func TestCashTerminalDispenseFailure(t *testing.T) {
	handler := &fakeCashHandler{
		result:  &CashResult{Success: true, ReceivedAmount: 10000},
		dispErr: errors.New(errors.ErrChangeDispense, "지폐 부족"),
	}
	terminal := NewCashTerminal(handler, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER6",
		Amount:  7000,
		Method:  MethodCash,
	})

	require.False(t, resp.Success)
	assert.Equal(t, CodeChangeDispense, resp.ErrorCode)
}

func TestCashTerminalCancelNotSupported(t *testing.T) {
	terminal := NewCashTerminal(&fakeCashHandler{}, time.Minute, zap.NewNop())

	resp := terminal.CancelPayment(context.Background(), "CASH-1234")
	require.False(t, resp.Success)
	assert.Equal(t, CodeCashCancelNotSupported, resp.ErrorCode)
	assert.Equal(t, "CASH-1234", resp.TransactionID)
}

func TestCashTerminalValidation(t *testing.T) {
	terminal := NewCashTerminal(&fakeCashHandler{}, time.Minute, zap.NewNop())

	resp := terminal.ProcessPayment(context.Background(), nil)
	assert.Equal(t, CodeInvalidRequest, resp.ErrorCode)

	resp = terminal.ProcessPayment(context.Background(), &Request{OrderID: "O", Amount: -1, Method: MethodCash})
	assert.Equal(t, CodeInvalidRequest, resp.ErrorCode)
}

func TestCashTerminalStatus(t *testing.T) {
	terminal := NewCashTerminal(&fakeCashHandler{status: "ready"}, time.Minute, zap.NewNop())

	status := terminal.Status(context.Background())
	assert.True(t, status.Available)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, MethodCash, status.Method)

	broken := NewCashTerminal(&fakeCashHandler{
		statusErr: errors.New(errors.ErrNetworkRequest, "现金模块不可达"),
	}, time.Minute, zap.NewNop())

	status = broken.Status(context.Background())
	assert.False(t, status.Available)
	assert.Equal(t, "error", status.Status)
}

func TestSimCashHandlerFlow(t *testing.T) {
	handler := NewSimCashHandler(10*time.Millisecond, 1000)

	result, err := handler.WaitForCash(context.Background(), 5000, time.Second)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, int64(6000), result.ReceivedAmount)

	// 投币慢于等待上限时按协议层超时返回
	slow := NewSimCashHandler(time.Second, 0)
	result, err = slow.WaitForCash(context.Background(), 5000, 30*time.Millisecond)
	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Equal(t, CodeTimeout, result.ErrorCode)
}
