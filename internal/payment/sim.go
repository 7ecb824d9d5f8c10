package payment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
)

// simCardPort 模拟刷卡终端固件（mock_mode）
// 状态探测回 READY，支付与取消一律批准
type simCardPort struct {
	mu     sync.Mutex
	closed bool
	rx     []byte
	seq    int

	dataCh chan struct{}
	stopCh chan struct{}
}

// SimCardOpener 返回模拟刷卡终端的打开函数
func SimCardOpener() func(hardware.Config) (hardware.SerialPort, error) {
	return func(hardware.Config) (hardware.SerialPort, error) {
		return &simCardPort{
			dataCh: make(chan struct{}, 1),
			stopCh: make(chan struct{}),
		}, nil
	}
}

func (p *simCardPort) Read(buf []byte) (int, error) {
	for {
		p.mu.Lock()
		if len(p.rx) > 0 {
			n := copy(buf, p.rx)
			p.rx = p.rx[n:]
			p.mu.Unlock()
			return n, nil
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return 0, fmt.Errorf("sim card: port closed")
		}

		select {
		case <-p.dataCh:
		case <-p.stopCh:
		case <-time.After(100 * time.Millisecond):
			return 0, nil
		}
	}
}

func (p *simCardPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, fmt.Errorf("sim card: port closed")
	}
	p.mu.Unlock()

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		p.handleCommand(line)
	}
	return len(data), nil
}

func (p *simCardPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.stopCh)
	return nil
}

func (p *simCardPort) Flush() error {
	p.mu.Lock()
	p.rx = nil
	p.mu.Unlock()
	return nil
}

func (p *simCardPort) handleCommand(command string) {
	switch {
	case command == "STATUS":
		p.feed("READY")

	case strings.HasPrefix(command, "PAY,"):
		parts := strings.Split(command, ",")
		amount := "0"
		if len(parts) > 1 {
			amount = parts[1]
		}

		p.mu.Lock()
		p.seq++
		seq := p.seq
		p.mu.Unlock()

		p.feed(fmt.Sprintf("SUCCESS,SIMTX%04d,SIMAP%04d,APPROVED:%s", seq, seq, amount))

	case strings.HasPrefix(command, "CANCEL,"):
		transactionID := strings.TrimPrefix(command, "CANCEL,")
		p.feed(fmt.Sprintf("SUCCESS,%s,VOID,CANCELLED", transactionID))
	}
}

func (p *simCardPort) feed(line string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.rx = append(p.rx, line+"\r\n"...)
	p.mu.Unlock()

	select {
	case p.dataCh <- struct{}{}:
	default:
	}
}

// SimCashHandler 模拟现金机具（mock_mode）
// 顾客在 InsertDelay 后投入 amount+OverInsert 的现金
type SimCashHandler struct {
	InsertDelay time.Duration
	OverInsert  int64
}

// NewSimCashHandler 创建模拟现金机具
func NewSimCashHandler(insertDelay time.Duration, overInsert int64) *SimCashHandler {
	return &SimCashHandler{InsertDelay: insertDelay, OverInsert: overInsert}
}

// GetStatus 模拟机具永远就绪
func (h *SimCashHandler) GetStatus(_ context.Context) (string, error) {
	return "ready", nil
}

// WaitForCash 延迟后按 amount+OverInsert 报告收款，超时按协议层超时返回
func (h *SimCashHandler) WaitForCash(ctx context.Context, amount int64, timeout time.Duration) (*CashResult, error) {
	delay := h.InsertDelay
	if delay > timeout {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(timeout):
		}
		return &CashResult{
			Success:   false,
			Error:     "투입 시간 초과",
			ErrorCode: CodeTimeout,
		}, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}

	return &CashResult{
		Success:        true,
		ReceivedAmount: amount + h.OverInsert,
	}, nil
}

// DispenseChange 模拟找零永远成功
func (h *SimCashHandler) DispenseChange(_ context.Context, _ int64) error {
	return nil
}
