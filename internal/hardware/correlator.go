package hardware

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

type pendingResult struct {
	line string
	err  error
}

// PendingRequest 一次已发出、等待固件响应的请求
type PendingRequest struct {
	id      uint64
	command string
	matches func(line string) bool
	respCh  chan pendingResult
}

// Correlator 请求响应关联器
// 协议没有消息 ID，按先进先出配对：最早注册且匹配的请求拿到响应
// 每个请求恰好被 Dispatch、超时、取消或 FailAll 之一终结
type Correlator struct {
	mu      sync.Mutex
	pending []*PendingRequest
	nextID  uint64
	logger  *zap.Logger
}

// NewCorrelator 创建关联器
func NewCorrelator(logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{logger: logger}
}

// Register 登记一个等待响应的请求
// 必须在写串口之前调用，否则快速响应可能在登记前到达而丢失
func (c *Correlator) Register(command string, matches func(line string) bool) *PendingRequest {
	if matches == nil {
		matches = func(string) bool { return true }
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := &PendingRequest{
		id:      c.nextID,
		command: command,
		matches: matches,
		respCh:  make(chan pendingResult, 1),
	}
	c.pending = append(c.pending, req)
	return req
}

// Wait 阻塞等待请求的响应，超时或上下文取消时放弃
func (c *Correlator) Wait(ctx context.Context, req *PendingRequest, timeout time.Duration) (string, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case result := <-req.respCh:
		return result.line, result.err

	case <-timeoutCh:
		if c.remove(req) {
			return "", errors.Newf(errors.ErrSerialTimeout, "等待响应超时: %s", req.command)
		}
		// 已被移出队列说明响应正在派发途中，补收保证恰好一次
		result := <-req.respCh
		return result.line, result.err

	case <-ctx.Done():
		if c.remove(req) {
			return "", errors.Wrapf(ctx.Err(), errors.ErrCanceled, "等待响应被取消: %s", req.command)
		}
		result := <-req.respCh
		return result.line, result.err
	}
}

// Dispatch 将一行固件消息派发给最早登记且匹配的请求
// 返回 false 表示没有请求认领这行消息
func (c *Correlator) Dispatch(line string) bool {
	c.mu.Lock()
	for i, req := range c.pending {
		if req.matches(line) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			c.mu.Unlock()

			req.respCh <- pendingResult{line: line}
			return true
		}
	}
	c.mu.Unlock()
	return false
}

// Cancel 放弃一个已登记的请求（写入失败后的清理）
func (c *Correlator) Cancel(req *PendingRequest) {
	if c.remove(req) {
		return
	}
	// 响应已在途，取走丢弃
	select {
	case <-req.respCh:
	default:
	}
}

// FailAll 以同一错误终结所有等待中的请求，连接断开时调用
func (c *Correlator) FailAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	for _, req := range pending {
		req.respCh <- pendingResult{err: err}
	}

	c.logger.Warn("清空等待中的串口请求",
		zap.Int("count", len(pending)),
		zap.Error(err))
}

// PendingCount 返回等待中的请求数
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) remove(req *PendingRequest) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, p := range c.pending {
		if p.id == req.id {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return true
		}
	}
	return false
}
