package websocket

import (
	"context"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"go.uber.org/zap"
)

// EventSink 硬件事件的旁路接收端（MQTT遥测上报）
type EventSink interface {
	PublishEvent(event hardware.Event)
}

// EventPump 硬件事件转发泵
// 消费出货控制板的事件通道并广播给所有WebSocket订阅端，
// 消息类型直接沿用事件分类名，前端按type分发
type EventPump struct {
	hub    *Hub
	events <-chan hardware.Event
	sink   EventSink
	logger *zap.Logger
}

// NewEventPump 创建硬件事件转发泵
func NewEventPump(hub *Hub, events <-chan hardware.Event, logger *zap.Logger) *EventPump {
	return &EventPump{
		hub:    hub,
		events: events,
		logger: logger,
	}
}

// SetEventSink 挂接旁路接收端，需在Run之前调用
func (p *EventPump) SetEventSink(sink EventSink) {
	p.sink = sink
}

// Run 持续转发事件直到上下文取消或事件通道关闭
func (p *EventPump) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-p.events:
			if !ok {
				p.logger.Info("硬件事件通道已关闭，转发泵退出")
				return
			}
			p.hub.BroadcastEvent(string(event.Kind()), event)
			if p.sink != nil {
				p.sink.PublishEvent(event)
			}
		}
	}
}

// BroadcastPayment 广播支付交易结果
// 回执原文不下发，订阅端要打印小票走查询接口
func (p *EventPump) BroadcastPayment(tx *models.PaymentTransaction) {
	p.hub.BroadcastEvent(MessageTypePayment, map[string]interface{}{
		"order_no":       tx.OrderNo,
		"method":         tx.Method,
		"amount":         tx.Amount,
		"status":         tx.Status,
		"transaction_id": tx.TransactionID,
		"change_amount":  tx.ChangeAmount,
		"error_code":     tx.ErrorCode,
	})
}
