package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/errors"
)

// qrPaymentRequest 支付网关请求体
type qrPaymentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	OrderID  string `json:"orderId"`
	Method   string `json:"method"`
}

// qrPaymentResponse 支付网关应答体，成功与失败共用一个形状
type qrPaymentResponse struct {
	TransactionID  string `json:"transactionId"`
	ApprovalNumber string `json:"approvalNumber"`
	Message        string `json:"message"`
	ErrorCode      string `json:"errorCode"`
}

// QRTerminal 二维码支付终端
// 无状态 HTTP 调用：Connect 只是健康探测，每笔支付是独立的 POST
type QRTerminal struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger

	mu        sync.RWMutex
	reachable bool // 最近一次健康检查结果
}

// NewQRTerminal 创建二维码支付终端
func NewQRTerminal(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *QRTerminal {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QRTerminal{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Connect 探测支付网关健康状态
func (t *QRTerminal) Connect(ctx context.Context) error {
	if err := t.health(ctx); err != nil {
		t.setReachable(false)
		t.logger.Error("二维码网关健康检查失败", zap.Error(err))
		return err
	}

	t.setReachable(true)
	t.logger.Info("二维码网关就绪", zap.String("base_url", t.baseURL))
	return nil
}

// Disconnect 二维码通道无持久连接，只复位可达标记
func (t *QRTerminal) Disconnect() {
	t.setReachable(false)
	t.client.CloseIdleConnections()
	t.logger.Info("二维码网关已断开")
}

// ProcessPayment 发起一笔二维码支付
// 网络失败报 NETWORK_ERROR，网关拒绝透传其 errorCode，缺省 API_ERROR
func (t *QRTerminal) ProcessPayment(ctx context.Context, req *Request) *Response {
	if req == nil {
		return failure(nil, CodeInvalidRequest, "支付请求为空")
	}
	if req.Amount <= 0 || req.OrderID == "" {
		return failure(req, CodeInvalidRequest, "金额或订单号无效")
	}

	currency := req.Currency
	if currency == "" {
		currency = "KRW"
	}

	t.logger.Info("发起二维码支付",
		zap.String("order_id", req.OrderID),
		zap.Int64("amount", req.Amount))

	statusCode, body, err := t.post(ctx, "/payments", qrPaymentRequest{
		Amount:   req.Amount,
		Currency: currency,
		OrderID:  req.OrderID,
		Method:   string(MethodQR),
	})
	if err != nil {
		t.setReachable(false)
		t.logger.Warn("二维码支付网络失败",
			zap.String("order_id", req.OrderID),
			zap.Error(err))
		return failure(req, CodeNetworkError, "支付网关不可达: "+err.Error())
	}
	t.setReachable(true)

	var gateway qrPaymentResponse
	if unmarshalErr := json.Unmarshal(body, &gateway); unmarshalErr != nil && len(body) > 0 {
		t.logger.Warn("二维码网关应答无法解析",
			zap.Int("status_code", statusCode),
			zap.ByteString("body", body))
	}

	if statusCode >= 200 && statusCode < 300 {
		resp := &Response{
			Success:        true,
			OrderID:        req.OrderID,
			Method:         req.Method,
			TransactionID:  gateway.TransactionID,
			ApprovalNumber: gateway.ApprovalNumber,
		}
		t.logger.Info("二维码支付成功",
			zap.String("order_id", req.OrderID),
			zap.String("transaction_id", resp.TransactionID))
		return resp
	}

	code := gateway.ErrorCode
	if code == "" {
		code = CodeAPIError
	}
	message := gateway.Message
	if message == "" {
		message = fmt.Sprintf("网关返回 HTTP %d", statusCode)
	}

	t.logger.Warn("二维码支付被拒绝",
		zap.String("order_id", req.OrderID),
		zap.Int("status_code", statusCode),
		zap.String("error_code", code))
	return failure(req, code, message)
}

// CancelPayment 取消一笔二维码交易
func (t *QRTerminal) CancelPayment(ctx context.Context, transactionID string) *Response {
	if transactionID == "" {
		return failure(nil, CodeInvalidRequest, "交易号为空")
	}

	t.logger.Info("取消二维码交易", zap.String("transaction_id", transactionID))

	statusCode, body, err := t.post(ctx, "/payments/"+transactionID+"/cancel", nil)
	if err != nil {
		t.setReachable(false)
		return &Response{Success: false, Method: MethodQR, TransactionID: transactionID,
			ErrorCode: CodeNetworkError, ErrorMessage: "支付网关不可达: " + err.Error()}
	}
	t.setReachable(true)

	if statusCode >= 200 && statusCode < 300 {
		return &Response{Success: true, Method: MethodQR, TransactionID: transactionID}
	}

	var gateway qrPaymentResponse
	_ = json.Unmarshal(body, &gateway)
	code := gateway.ErrorCode
	if code == "" {
		code = CodeCancelProcessing
	}
	message := gateway.Message
	if message == "" {
		message = fmt.Sprintf("网关返回 HTTP %d", statusCode)
	}
	return &Response{Success: false, Method: MethodQR, TransactionID: transactionID,
		ErrorCode: code, ErrorMessage: message}
}

// Status 查询网关健康状态
func (t *QRTerminal) Status(ctx context.Context) TerminalStatus {
	status := TerminalStatus{Method: MethodQR}

	if err := t.health(ctx); err != nil {
		t.setReachable(false)
		status.Status = "error"
		status.Detail = err.Error()
		return status
	}

	t.setReachable(true)
	status.Available = true
	status.Status = "ready"
	return status
}

// health 带鉴权的健康探测
func (t *QRTerminal) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrNetworkRequest, "构造健康检查请求失败")
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrNetworkRequest, "支付网关不可达")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf(errors.ErrGatewayResponse, "健康检查返回 HTTP %d", resp.StatusCode)
	}
	return nil
}

// post 发送带鉴权的 JSON 请求，返回状态码与原始应答体
func (t *QRTerminal) post(ctx context.Context, path string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errors.Wrap(err, errors.ErrMessageFormat, "序列化请求体失败")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, body)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrNetworkRequest, "构造网关请求失败")
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, errors.ErrNetworkRequest, "支付网关请求失败")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, errors.ErrNetworkRequest, "读取网关应答失败")
	}
	return resp.StatusCode, data, nil
}

func (t *QRTerminal) setReachable(reachable bool) {
	t.mu.Lock()
	t.reachable = reachable
	t.mu.Unlock()
}
