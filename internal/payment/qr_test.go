package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newQRGateway(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *QRTerminal) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	terminal := NewQRTerminal(server.URL, "test-key", 2*time.Second, zap.NewNop())
	return server, terminal
}

func TestQRTerminalConnectHealth(t *testing.T) {
	var gotAuth string
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	require.NoError(t, terminal.Connect(context.Background()))
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestQRTerminalConnectUnhealthy(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := terminal.Connect(context.Background())
	require.Error(t, err)
}

func TestQRTerminalPaymentSuccess(t *testing.T) {
	var gotBody qrPaymentRequest
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/payments", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"transactionId":  "QTX1",
			"approvalNumber": "QAP1",
		})
	})

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER1",
		Amount:  8000,
		Method:  MethodQR,
	})

	require.True(t, resp.Success)
	assert.Equal(t, "QTX1", resp.TransactionID)
	assert.Equal(t, "QAP1", resp.ApprovalNumber)

	// 请求体为网关约定的驼峰字段，币种缺省 KRW
	assert.Equal(t, int64(8000), gotBody.Amount)
	assert.Equal(t, "KRW", gotBody.Currency)
	assert.Equal(t, "ORDER1", gotBody.OrderID)
	assert.Equal(t, "qr", gotBody.Method)
}

func TestQRTerminalPaymentAPIError(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":   "잔액부족",
			"errorCode": "INSUFFICIENT_BALANCE",
		})
	})

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER2",
		Amount:  8000,
		Method:  MethodQR,
	})

	require.False(t, resp.Success)
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.ErrorCode)
	assert.Equal(t, "잔액부족", resp.ErrorMessage)
}

func TestQRTerminalPaymentAPIErrorWithoutBody(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER3",
		Amount:  8000,
		Method:  MethodQR,
	})

	require.False(t, resp.Success)
	assert.Equal(t, CodeAPIError, resp.ErrorCode)
}

func TestQRTerminalPaymentNetworkError(t *testing.T) {
	server, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	server.Close() // 网关下线

	resp := terminal.ProcessPayment(context.Background(), &Request{
		OrderID: "ORDER4",
		Amount:  8000,
		Method:  MethodQR,
	})

	require.False(t, resp.Success)
	assert.Equal(t, CodeNetworkError, resp.ErrorCode)
}

func TestQRTerminalPaymentValidation(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("校验失败不应发出请求")
	})

	resp := terminal.ProcessPayment(context.Background(), nil)
	assert.Equal(t, CodeInvalidRequest, resp.ErrorCode)

	resp = terminal.ProcessPayment(context.Background(), &Request{OrderID: "", Amount: 100, Method: MethodQR})
	assert.Equal(t, CodeInvalidRequest, resp.ErrorCode)
}

func TestQRTerminalCancel(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/payments/QTX1/cancel", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	resp := terminal.CancelPayment(context.Background(), "QTX1")
	require.True(t, resp.Success)
	assert.Equal(t, "QTX1", resp.TransactionID)
}

func TestQRTerminalCancelRejected(t *testing.T) {
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"message":   "거래를 찾을 수 없음",
			"errorCode": "NOT_FOUND",
		})
	})

	resp := terminal.CancelPayment(context.Background(), "QTX404")
	require.False(t, resp.Success)
	assert.Equal(t, "NOT_FOUND", resp.ErrorCode)
}

func TestQRTerminalStatus(t *testing.T) {
	healthy := true
	_, terminal := newQRGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if healthy {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	status := terminal.Status(context.Background())
	assert.True(t, status.Available)
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, MethodQR, status.Method)

	healthy = false
	status = terminal.Status(context.Background())
	assert.False(t, status.Available)
	assert.Equal(t, "error", status.Status)
}
