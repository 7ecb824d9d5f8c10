package telemetry

import (
	"context"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
)

// defaultStatusInterval 状态快照默认上报周期
const defaultStatusInterval = 30 * time.Second

// StatusFunc 取设备状态快照的回调
type StatusFunc func() hardware.StatusReport

// Reporter 周期性状态上报器
// 启动先发一次，之后按周期取快照发往状态主题
type Reporter struct {
	publisher Publisher
	status    StatusFunc
	interval  time.Duration
}

// NewReporter 创建周期性状态上报器
func NewReporter(publisher Publisher, status StatusFunc, interval time.Duration) *Reporter {
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &Reporter{
		publisher: publisher,
		status:    status,
		interval:  interval,
	}
}

// Run 持续上报直到上下文取消
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.publisher.PublishStatus(r.status())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.publisher.PublishStatus(r.status())
		}
	}
}
