// Package telemetry 通过MQTT向机群管理后台上报设备状态、硬件事件与支付结果。
// 上报只入队不等待，broker不可用时直接丢弃，永远不阻塞业务协程。
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/hardware"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
)

// Publisher 遥测发布接口
type Publisher interface {
	// PublishStatus 上报设备状态快照（状态主题，retained在线标志）
	PublishStatus(report hardware.StatusReport)

	// PublishEvent 上报硬件事件（事件主题）
	PublishEvent(event hardware.Event)

	// PublishPayment 上报支付结果，只含金额与脱敏字段（支付主题）
	PublishPayment(tx *models.PaymentTransaction)

	// Close 停止发布并断开连接
	Close()
}

// NopPublisher 遥测禁用时的空实现
type NopPublisher struct{}

func (NopPublisher) PublishStatus(hardware.StatusReport)       {}
func (NopPublisher) PublishEvent(hardware.Event)               {}
func (NopPublisher) PublishPayment(*models.PaymentTransaction) {}
func (NopPublisher) Close()                                    {}

// StatusPayload 设备状态上报消息体
// Online=false的遗嘱消息不带Hardware与Timestamp
type StatusPayload struct {
	KioskID   string                 `json:"kiosk_id"`
	Timestamp string                 `json:"timestamp,omitempty"`
	Online    bool                   `json:"online"`
	Hardware  *hardware.StatusReport `json:"hardware,omitempty"`
}

// EventPayload 硬件事件上报消息体
type EventPayload struct {
	KioskID   string         `json:"kiosk_id"`
	Timestamp string         `json:"timestamp"`
	Kind      string         `json:"kind"`
	Event     hardware.Event `json:"event"`
}

// PaymentPayload 支付结果上报消息体
// 回执原文、错误详情与业务元数据不出本机
type PaymentPayload struct {
	KioskID       string `json:"kiosk_id"`
	Timestamp     string `json:"timestamp"`
	OrderNo       string `json:"order_no"`
	Method        string `json:"method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	ApprovalNo    string `json:"approval_no,omitempty"`
	CardMasked    string `json:"card_masked,omitempty"`
	ChangeAmount  int64  `json:"change_amount,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
}

// FormatStatusPayload 序列化设备状态消息
func FormatStatusPayload(kioskID string, report hardware.StatusReport) ([]byte, error) {
	return json.Marshal(StatusPayload{
		KioskID:   kioskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Online:    true,
		Hardware:  &report,
	})
}

// FormatOfflinePayload 序列化掉线遗嘱消息
// 遗嘱由broker在连接断开时代发，时间戳无意义故不带
func FormatOfflinePayload(kioskID string) ([]byte, error) {
	return json.Marshal(StatusPayload{
		KioskID: kioskID,
		Online:  false,
	})
}

// FormatEventPayload 序列化硬件事件消息
func FormatEventPayload(kioskID string, event hardware.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		KioskID:   kioskID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Kind:      string(event.Kind()),
		Event:     event,
	})
}

// FormatPaymentPayload 序列化支付结果消息
func FormatPaymentPayload(kioskID string, tx *models.PaymentTransaction) ([]byte, error) {
	return json.Marshal(PaymentPayload{
		KioskID:       kioskID,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		OrderNo:       tx.OrderNo,
		Method:        tx.Method,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		Status:        tx.Status,
		TransactionID: tx.TransactionID,
		ApprovalNo:    tx.ApprovalNo,
		CardMasked:    tx.CardMasked,
		ChangeAmount:  tx.ChangeAmount,
		ErrorCode:     tx.ErrorCode,
	})
}
