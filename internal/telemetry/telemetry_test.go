package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
)

var (
	_ Publisher = (*MQTTPublisher)(nil)
	_ Publisher = NopPublisher{}
)

// capturePublisher 记录上报调用次数的测试桩
type capturePublisher struct {
	mu           sync.Mutex
	statusCount  int
	eventCount   int
	paymentCount int
}

func (c *capturePublisher) PublishStatus(hardware.StatusReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCount++
}

func (c *capturePublisher) PublishEvent(hardware.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eventCount++
}

func (c *capturePublisher) PublishPayment(*models.PaymentTransaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paymentCount++
}

func (c *capturePublisher) Close() {}

func (c *capturePublisher) statuses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCount
}

// TestFormatStatusPayload 状态消息含在线标志与硬件快照
func TestFormatStatusPayload(t *testing.T) {
	report := hardware.StatusReport{
		State:           "connected",
		Port:            "/dev/ttyUSB0",
		FirmwareReady:   true,
		FirmwareVersion: "1.2.0",
	}

	data, err := FormatStatusPayload("KIOSK-001", report)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "KIOSK-001", payload["kiosk_id"])
	assert.Equal(t, true, payload["online"])
	assert.NotEmpty(t, payload["timestamp"])

	hw, ok := payload["hardware"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "connected", hw["state"])
	assert.Equal(t, "1.2.0", hw["firmware_version"])
}

// TestFormatOfflinePayload 遗嘱消息只带设备号与离线标志
func TestFormatOfflinePayload(t *testing.T) {
	data, err := FormatOfflinePayload("KIOSK-001")
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "KIOSK-001", payload["kiosk_id"])
	assert.Equal(t, false, payload["online"])
	assert.NotContains(t, payload, "timestamp")
	assert.NotContains(t, payload, "hardware")
}

// TestFormatEventPayload 事件消息带分类名与事件原文
func TestFormatEventPayload(t *testing.T) {
	event := hardware.SensorEvent{Distance: 45.2, Detected: true}

	data, err := FormatEventPayload("KIOSK-001", event)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "sensor", payload["kind"])

	inner, ok := payload["event"].(map[string]interface{})
	require.True(t, ok)
	assert.InDelta(t, 45.2, inner["distance"], 0.001)
	assert.Equal(t, true, inner["is_detected"])
}

// TestFormatPaymentPayload 支付消息只含金额与脱敏字段
func TestFormatPaymentPayload(t *testing.T) {
	tx := &models.PaymentTransaction{
		OrderNo:       "ORDER-20260825-001",
		Method:        "card",
		Amount:        25000,
		Currency:      "KRW",
		Status:        models.TxStatusSuccess,
		TransactionID: "TX-9001",
		ApprovalNo:    "AP-1234",
		CardMasked:    "1234-56**-****-7890",
		ReceiptData:   "APPROVAL|1234567890|RAW-RECEIPT",
		Metadata:      models.JSONMap{"slot": "A3"},
	}

	data, err := FormatPaymentPayload("KIOSK-001", tx)
	require.NoError(t, err)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "ORDER-20260825-001", payload["order_no"])
	assert.Equal(t, "card", payload["method"])
	assert.EqualValues(t, 25000, payload["amount"])
	assert.Equal(t, models.TxStatusSuccess, payload["status"])
	assert.Equal(t, "1234-56**-****-7890", payload["card_masked"])

	// 回执原文与业务元数据不出本机
	assert.NotContains(t, string(data), "RAW-RECEIPT")
	assert.NotContains(t, payload, "metadata")
	assert.NotContains(t, payload, "receipt_data")
}

// TestReporterPublishesPeriodically 启动先发一次，之后按周期发
func TestReporterPublishesPeriodically(t *testing.T) {
	capture := &capturePublisher{}
	status := func() hardware.StatusReport {
		return hardware.StatusReport{State: "connected"}
	}

	reporter := NewReporter(capture, status, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		reporter.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return capture.statuses() >= 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("上报器未在取消后退出")
	}
}

// TestReporterDefaultInterval 非法周期回退到默认值
func TestReporterDefaultInterval(t *testing.T) {
	reporter := NewReporter(&capturePublisher{}, func() hardware.StatusReport {
		return hardware.StatusReport{}
	}, 0)

	assert.Equal(t, defaultStatusInterval, reporter.interval)
}
