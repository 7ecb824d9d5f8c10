package models

import (
	"time"

	"gorm.io/gorm"
)

// 交易状态
const (
	TxStatusPending   = "pending"
	TxStatusSuccess   = "success"
	TxStatusFailed    = "failed"
	TxStatusCancelled = "cancelled"
)

// PaymentTransaction 支付交易表
// 每次 ProcessPayment 调用写一行，先 pending 后更新为终态
type PaymentTransaction struct {
	BaseModel
	OrderNo       string     `gorm:"uniqueIndex;size:64;not null" json:"order_no"`
	Method        string     `gorm:"size:20;not null;index" json:"method"` // card, mobile, qr, cash
	Amount        int64      `gorm:"not null" json:"amount"`               // 원
	Currency      string     `gorm:"size:10;default:'KRW'" json:"currency"`
	Status        string     `gorm:"size:20;default:'pending';index" json:"status"` // pending, success, failed, cancelled
	TransactionID string     `gorm:"size:100;index" json:"transaction_id"`
	ApprovalNo    string     `gorm:"size:50" json:"approval_no"`
	CardMasked    string     `gorm:"size:32" json:"card_masked"` // 已脱敏卡号
	ReceiptData   string     `gorm:"type:text" json:"receipt_data"`
	ChangeAmount  int64      `gorm:"default:0" json:"change_amount"` // 现金找零（원）
	ErrorCode     string     `gorm:"size:50;index" json:"error_code"`
	ErrorMessage  string     `gorm:"size:500" json:"error_message"`
	Metadata      JSONMap    `gorm:"type:json" json:"metadata"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

// TableName 指定表名
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// BeforeCreate 创建前的钩子
func (t *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.Status == "" {
		t.Status = TxStatusPending
	}
	if t.Currency == "" {
		t.Currency = "KRW"
	}
	return nil
}

// IsFinal 交易是否已到终态
func (t *PaymentTransaction) IsFinal() bool {
	return t.Status == TxStatusSuccess || t.Status == TxStatusFailed || t.Status == TxStatusCancelled
}

// MarkSuccess 标记交易成功
func (t *PaymentTransaction) MarkSuccess(transactionID, approvalNo string) {
	now := time.Now()
	t.Status = TxStatusSuccess
	t.TransactionID = transactionID
	t.ApprovalNo = approvalNo
	t.ProcessedAt = &now
}

// MarkFailed 标记交易失败
func (t *PaymentTransaction) MarkFailed(errorCode, errorMessage string) {
	now := time.Now()
	t.Status = TxStatusFailed
	t.ErrorCode = errorCode
	t.ErrorMessage = errorMessage
	t.ProcessedAt = &now
}

// MarkCancelled 标记交易已取消
func (t *PaymentTransaction) MarkCancelled() {
	now := time.Now()
	t.Status = TxStatusCancelled
	t.CancelledAt = &now
}

// PaymentTransactionQuery 查询参数
type PaymentTransactionQuery struct {
	OrderNo       string     `json:"order_no,omitempty"`
	Method        string     `json:"method,omitempty"`
	Status        string     `json:"status,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	ErrorCode     string     `json:"error_code,omitempty"`
	MinAmount     *int64     `json:"min_amount,omitempty"`
	MaxAmount     *int64     `json:"max_amount,omitempty"`
	StartTime     *time.Time `json:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
	OrderBy       string     `json:"order_by,omitempty"`
}

// PaymentStats 结算统计
type PaymentStats struct {
	TotalCount     int64 `json:"total_count"`
	SuccessCount   int64 `json:"success_count"`
	FailedCount    int64 `json:"failed_count"`
	CancelledCount int64 `json:"cancelled_count"`
	TotalAmount    int64 `json:"total_amount"`  // 成功交易金额合计
	TotalChange    int64 `json:"total_change"`  // 已吐找零合计
	CardCount      int64 `json:"card_count"`    // card + mobile
	QRCount        int64 `json:"qr_count"`
	CashCount      int64 `json:"cash_count"`
}
