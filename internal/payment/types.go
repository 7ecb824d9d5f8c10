package payment

import "strings"

// Method 支付方式
type Method string

const (
	MethodCard   Method = "card"
	MethodMobile Method = "mobile" // 手机 Pay，走刷卡终端通道
	MethodQR     Method = "qr"
	MethodCash   Method = "cash"
)

// ParseMethod 解析支付方式字符串
func ParseMethod(s string) (Method, bool) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case MethodCard:
		return MethodCard, true
	case MethodMobile:
		return MethodMobile, true
	case MethodQR:
		return MethodQR, true
	case MethodCash:
		return MethodCash, true
	default:
		return "", false
	}
}

// 透传给 UI 层的机读错误码
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeUnsupportedMethod      = "UNSUPPORTED_METHOD"
	CodeNotConnected           = "NOT_CONNECTED"
	CodeTerminalBusy           = "TERMINAL_BUSY"
	CodeNetworkError           = "NETWORK_ERROR"
	CodeAPIError               = "API_ERROR"
	CodeTimeout                = "TIMEOUT"
	CodePaymentProcessing      = "PAYMENT_PROCESSING_ERROR"
	CodeCancelProcessing       = "CANCEL_PROCESSING_ERROR"
	CodeCashCancelNotSupported = "CASH_CANCEL_NOT_SUPPORTED"
	CodeChangeDispense         = "CHANGE_DISPENSE_ERROR"
)

// Request 支付请求
type Request struct {
	OrderID  string            `json:"order_id"`
	Amount   int64             `json:"amount"` // 韩元，整数
	Method   Method            `json:"method"`
	Currency string            `json:"currency,omitempty"` // 默认 KRW
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Response 支付结果
// 预期内的失败（超时、拒绝、断开）一律表达为 Success=false 加错误码，不抛错误
type Response struct {
	Success        bool   `json:"success"`
	OrderID        string `json:"order_id,omitempty"`
	Method         Method `json:"method,omitempty"`
	TransactionID  string `json:"transaction_id,omitempty"`
	ApprovalNumber string `json:"approval_number,omitempty"`
	ReceiptData    string `json:"receipt_data,omitempty"`
	ChangeAmount   int64  `json:"change_amount,omitempty"`
	ErrorCode      string `json:"error_code,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// TerminalStatus 终端状态查询结果
type TerminalStatus struct {
	Method    Method `json:"method"`
	Available bool   `json:"available"`
	Status    string `json:"status"` // ready/busy/disconnected/error
	Detail    string `json:"detail,omitempty"`
}

// failure 构造失败响应
func failure(req *Request, code, message string) *Response {
	resp := &Response{
		Success:      false,
		ErrorCode:    code,
		ErrorMessage: message,
	}
	if req != nil {
		resp.OrderID = req.OrderID
		resp.Method = req.Method
	}
	return resp
}
