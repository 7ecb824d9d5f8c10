package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/payment"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/service"
)

// PaymentHandler 支付处理器
// 支付执行与交易流水查询共用一个处理器
type PaymentHandler struct {
	paymentService *service.PaymentService
	logger         *zap.Logger
}

// NewPaymentHandler 创建支付处理器
func NewPaymentHandler(paymentService *service.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		logger:         logger,
	}
}

// ProcessPayment 发起支付
// @Summary 发起支付
// @Description 按支付方式分发到对应终端，预期内失败以success=false表达
// @Tags Payment
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body ProcessPaymentRequest true "支付请求"
// @Success 200 {object} payment.Response
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	resp := h.paymentService.Process(c.Request.Context(), &payment.Request{
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Method:   payment.Method(req.Method),
		Currency: req.Currency,
		Metadata: req.Metadata,
	})

	c.JSON(http.StatusOK, resp)
}

// CancelPayment 取消支付
// @Summary 取消支付
// @Description 取消进行中的交易并标记流水为已取消
// @Tags Payment
// @Security Bearer
// @Accept json
// @Produce json
// @Param request body CancelPaymentRequest true "取消请求"
// @Success 200 {object} payment.Response
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/payments/cancel [post]
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "请求参数错误",
			Details: err.Error(),
		})
		return
	}

	resp := h.paymentService.Cancel(c.Request.Context(),
		payment.Method(req.Method), req.TransactionID)

	c.JSON(http.StatusOK, resp)
}

// GetAllTerminalStatus 查询全部终端状态
// @Summary 查询全部支付终端状态
// @Tags Payment
// @Security Bearer
// @Success 200 {object} map[string]payment.TerminalStatus
// @Router /api/v1/payments/terminals [get]
func (h *PaymentHandler) GetAllTerminalStatus(c *gin.Context) {
	statuses := h.paymentService.AllTerminalStatus(c.Request.Context())

	// Method键转字符串，JSON序列化用
	result := make(map[string]payment.TerminalStatus, len(statuses))
	for method, status := range statuses {
		result[string(method)] = status
	}

	c.JSON(http.StatusOK, gin.H{
		"terminals": result,
		"count":     len(result),
	})
}

// GetTerminalStatus 查询单个终端状态
// @Summary 查询指定支付终端状态
// @Tags Payment
// @Security Bearer
// @Param method path string true "支付方式 card/mobile/qr/cash"
// @Success 200 {object} payment.TerminalStatus
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/payments/terminals/{method} [get]
func (h *PaymentHandler) GetTerminalStatus(c *gin.Context) {
	method := payment.Method(c.Param("method"))

	status, err := h.paymentService.TerminalStatus(c.Request.Context(), method)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "TERMINAL_NOT_FOUND",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// ConnectTerminals 重连全部支付终端
// @Summary 重连全部支付终端
// @Description 维护场景使用，逐终端汇报连接结果
// @Tags Payment
// @Security Bearer
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/payments/terminals/connect [post]
func (h *PaymentHandler) ConnectTerminals(c *gin.Context) {
	results := h.paymentService.Dispatcher().ConnectAll(c.Request.Context())

	connected := make([]string, 0, len(results))
	failures := make(map[string]string)
	for method, err := range results {
		if err != nil {
			failures[string(method)] = err.Error()
			continue
		}
		connected = append(connected, string(method))
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "终端重连完成",
		"connected": connected,
		"failures":  failures,
	})
}

// DisconnectTerminals 断开全部支付终端
// @Summary 断开全部支付终端
// @Description 换机、检修前断开终端连接，断开后需调用connect恢复
// @Tags Payment
// @Security Bearer
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/payments/terminals/disconnect [post]
func (h *PaymentHandler) DisconnectTerminals(c *gin.Context) {
	h.paymentService.Dispatcher().DisconnectAll()

	c.JSON(http.StatusOK, gin.H{
		"message": "全部终端已断开",
	})
}

// QueryTransactions 查询交易流水
// @Summary 查询交易流水
// @Description 支持按方式、状态、订单号、时间范围过滤
// @Tags Payment
// @Security Bearer
// @Param method query string false "支付方式"
// @Param status query string false "交易状态 pending/success/failed/cancelled"
// @Param order_no query string false "订单号"
// @Param start_time query string false "开始时间 RFC3339"
// @Param end_time query string false "结束时间 RFC3339"
// @Param limit query int false "返回条数" default(50)
// @Param offset query int false "偏移量" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/payments/transactions [get]
func (h *PaymentHandler) QueryTransactions(c *gin.Context) {
	query := &models.PaymentTransactionQuery{
		OrderNo:       c.Query("order_no"),
		Method:        c.Query("method"),
		Status:        c.Query("status"),
		TransactionID: c.Query("transaction_id"),
		ErrorCode:     c.Query("error_code"),
		OrderBy:       c.DefaultQuery("order_by", "created_at DESC"),
	}

	if limitStr := c.DefaultQuery("limit", "50"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			query.Limit = limit
		}
	}
	if offsetStr := c.DefaultQuery("offset", "0"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			query.Offset = offset
		}
	}

	if startStr := c.Query("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			query.StartTime = &start
		}
	}
	if endStr := c.Query("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			query.EndTime = &end
		}
	}

	transactions, total, err := h.paymentService.QueryTransactions(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询交易流水失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":        total,
		"limit":        query.Limit,
		"offset":       query.Offset,
		"transactions": transactions,
	})
}

// GetLatestTransactions 查询最近交易
// @Summary 查询最近交易
// @Tags Payment
// @Security Bearer
// @Param limit query int false "返回条数" default(20)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/payments/transactions/latest [get]
func (h *PaymentHandler) GetLatestTransactions(c *gin.Context) {
	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	transactions, err := h.paymentService.LatestTransactions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "QUERY_FAILED",
			Message: "查询最近交易失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(transactions),
		"transactions": transactions,
	})
}

// GetTransactionStats 交易统计
// @Summary 交易统计
// @Description 按时间范围统计成功率与金额汇总
// @Tags Payment
// @Security Bearer
// @Param start_time query string false "开始时间 RFC3339"
// @Param end_time query string false "结束时间 RFC3339"
// @Success 200 {object} models.PaymentStats
// @Router /api/v1/payments/transactions/stats [get]
func (h *PaymentHandler) GetTransactionStats(c *gin.Context) {
	var startTime, endTime *time.Time

	if startStr := c.Query("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			startTime = &start
		}
	}
	if endStr := c.Query("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			endTime = &end
		}
	}

	stats, err := h.paymentService.GetStats(c.Request.Context(), startTime, endTime)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    "STATS_FAILED",
			Message: "统计交易失败",
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetTransaction 按订单号查询交易
// @Summary 按订单号查询交易
// @Tags Payment
// @Security Bearer
// @Param order_no path string true "订单号"
// @Success 200 {object} models.PaymentTransaction
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/payments/transactions/{order_no} [get]
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	orderNo := c.Param("order_no")

	tx, err := h.paymentService.GetTransaction(c.Request.Context(), orderNo)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "TRANSACTION_NOT_FOUND",
			Message: "交易不存在",
		})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// 请求结构体

// ProcessPaymentRequest 支付请求
type ProcessPaymentRequest struct {
	OrderID  string            `json:"order_id" binding:"required"`
	Amount   int64             `json:"amount" binding:"required,gt=0"`
	Method   string            `json:"method" binding:"required"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// CancelPaymentRequest 取消支付请求
type CancelPaymentRequest struct {
	Method        string `json:"method" binding:"required"`
	TransactionID string `json:"transaction_id" binding:"required"`
}
