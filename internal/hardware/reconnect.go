package hardware

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// ReconnectOptions 断线重连参数
type ReconnectOptions struct {
	Interval    time.Duration // 检查与首次重试间隔
	MaxInterval time.Duration // 退避上限
	MaxRetries  int           // 单轮最大重试次数，0 表示不限
}

// ReconnectManager 串口断线重连管理器
// 周期检查控制器连接状态，断开时按指数退避重连，
// USB 设备重新枚举换号时自动在同系列设备号里寻找
type ReconnectManager struct {
	controller *Controller
	logger     *zap.Logger
	options    ReconnectOptions

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	kickCh  chan struct{}
}

// NewReconnectManager 创建重连管理器
func NewReconnectManager(controller *Controller, options ReconnectOptions, logger *zap.Logger) *ReconnectManager {
	if options.Interval <= 0 {
		options.Interval = 5 * time.Second
	}
	if options.MaxInterval <= 0 {
		options.MaxInterval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReconnectManager{
		controller: controller,
		logger:     logger,
		options:    options,
	}
}

// Start 启动监控
func (m *ReconnectManager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.kickCh = make(chan struct{}, 1)
	stopCh := m.stopCh
	kickCh := m.kickCh
	m.mu.Unlock()

	go m.monitorLoop(stopCh, kickCh)
	m.logger.Info("串口重连监控已启动",
		zap.Duration("interval", m.options.Interval),
		zap.Duration("max_interval", m.options.MaxInterval))
}

// Stop 停止监控
func (m *ReconnectManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.logger.Info("串口重连监控已停止")
}

// Kick 通知立即尝试重连，不等下一个检查周期
func (m *ReconnectManager) Kick() {
	m.mu.Lock()
	kickCh := m.kickCh
	running := m.running
	m.mu.Unlock()

	if !running {
		return
	}
	select {
	case kickCh <- struct{}{}:
	default:
	}
}

func (m *ReconnectManager) monitorLoop(stopCh, kickCh chan struct{}) {
	ticker := time.NewTicker(m.options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-kickCh:
			m.attemptReconnect(stopCh)
		case <-ticker.C:
			if !m.controller.IsConnected() {
				m.attemptReconnect(stopCh)
			}
		}
	}
}

// attemptReconnect 指数退避重连，成功或到达上限为止
func (m *ReconnectManager) attemptReconnect(stopCh chan struct{}) {
	delay := m.options.Interval

	for attempt := 1; ; attempt++ {
		if m.controller.IsConnected() {
			return
		}

		device := m.findDevice(m.controller.Status().Port)
		err := m.controller.Initialize(device)
		if err == nil {
			m.logger.Info("串口重连成功",
				zap.String("device", device),
				zap.Int("attempt", attempt))
			return
		}

		m.logger.Warn("串口重连失败",
			zap.String("device", device),
			zap.Int("attempt", attempt),
			zap.Duration("next_delay", delay),
			zap.Error(err))

		if m.options.MaxRetries > 0 && attempt >= m.options.MaxRetries {
			m.logger.Error("重连超过最大次数，等待下一个检查周期",
				zap.Int("max_retries", m.options.MaxRetries))
			return
		}

		select {
		case <-stopCh:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > m.options.MaxInterval {
			delay = m.options.MaxInterval
		}
	}
}

// findDevice 配置的设备不存在时，在同系列设备号 0-9 里找实际插入的串口
func (m *ReconnectManager) findDevice(base string) string {
	if base == "" {
		return base
	}
	if _, err := os.Stat(base); err == nil {
		return base
	}

	trimmed := strings.TrimRightFunc(base, unicode.IsDigit)
	for i := 0; i < 10; i++ {
		candidate := fmt.Sprintf("%s%d", trimmed, i)
		if _, err := os.Stat(candidate); err == nil {
			m.logger.Info("发现替代串口设备",
				zap.String("configured", base),
				zap.String("found", candidate))
			return candidate
		}
	}
	return base
}
