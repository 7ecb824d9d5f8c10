package kiosk

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/database"
)

// runMonitor 周期性输出运行指标并巡检核心依赖
func (s *Service) runMonitor(ctx context.Context) {
	metricsInterval := s.cfg.Monitor.MetricsInterval
	if metricsInterval <= 0 {
		metricsInterval = time.Minute
	}
	healthInterval := s.cfg.Monitor.HealthCheckInterval
	if healthInterval <= 0 {
		healthInterval = 30 * time.Second
	}

	metricsTicker := time.NewTicker(metricsInterval)
	defer metricsTicker.Stop()
	healthTicker := time.NewTicker(healthInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-metricsTicker.C:
			s.logMetrics()
		case <-healthTicker.C:
			s.checkHealth()
		}
	}
}

// logMetrics 输出进程与业务指标
func (s *Service) logMetrics() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	report := s.controller.Status()
	s.log.Info("运行指标",
		zap.Int("goroutines", runtime.NumGoroutine()),
		zap.Uint64("heap_alloc_mb", mem.HeapAlloc/1024/1024),
		zap.Int("ws_online", s.hub.GetOnlineCount()),
		zap.String("hardware_state", report.State),
		zap.Int("pending_requests", report.PendingRequests))
}

// checkHealth 巡检数据库与出货控制板
func (s *Service) checkHealth() {
	if !database.IsConnected() {
		s.log.Error("健康巡检异常：数据库连接不可用")
	}

	if s.cfg.Hardware.Enabled && !s.controller.IsConnected() {
		s.log.Warn("健康巡检：出货控制板未连接",
			zap.String("state", s.controller.State().String()))
	}
}
