package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/payment"
	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/repository"
	"go.uber.org/zap"
)

// PaymentService 支付服务
// 包装支付分发器，每次支付先落一条pending交易，拿到结果后更新为终态
// 落库失败只记日志不影响支付结果返回
type PaymentService struct {
	dispatcher *payment.Service
	txRepo     repository.PaymentTransactionRepository
	log        *zap.Logger
	notifier   PaymentNotifier
}

// NewPaymentService 创建支付服务
func NewPaymentService(
	dispatcher *payment.Service,
	txRepo repository.PaymentTransactionRepository,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		dispatcher: dispatcher,
		txRepo:     txRepo,
		log:        log,
	}
}

// SetNotifier 挂接支付结果通知回调
func (s *PaymentService) SetNotifier(notifier PaymentNotifier) {
	s.notifier = notifier
}

// Dispatcher 返回底层支付分发器
func (s *PaymentService) Dispatcher() *payment.Service {
	return s.dispatcher
}

// Process 执行支付并记录交易
func (s *PaymentService) Process(ctx context.Context, req *payment.Request) *payment.Response {
	tx := &models.PaymentTransaction{
		OrderNo:  req.OrderID,
		Method:   string(req.Method),
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   models.TxStatusPending,
	}
	if len(req.Metadata) > 0 {
		tx.Metadata = make(models.JSONMap, len(req.Metadata))
		for k, v := range req.Metadata {
			tx.Metadata[k] = v
		}
	}

	if err := s.txRepo.Create(ctx, tx); err != nil {
		s.log.Error("支付交易落库失败",
			zap.Error(err),
			zap.String("order_no", req.OrderID))
		tx = nil
	}

	resp := s.dispatcher.ProcessPayment(ctx, req)

	if tx != nil {
		s.applyResult(ctx, tx, resp)
	}

	if s.notifier != nil && tx != nil {
		s.notifier(tx)
	}

	return resp
}

// Cancel 取消支付并记录结果
// 按交易号找到原交易，取消成功后标记为cancelled
func (s *PaymentService) Cancel(ctx context.Context, method payment.Method, transactionID string) *payment.Response {
	resp := s.dispatcher.CancelPayment(ctx, method, transactionID)

	if resp.Success {
		tx, err := s.txRepo.FindByTransactionID(ctx, transactionID)
		if err != nil {
			s.log.Warn("取消成功但找不到原交易",
				zap.String("transaction_id", transactionID))
			return resp
		}
		tx.MarkCancelled()
		if err := s.txRepo.Update(ctx, tx); err != nil {
			s.log.Error("更新取消状态失败",
				zap.Error(err),
				zap.String("transaction_id", transactionID))
		}
		if s.notifier != nil {
			s.notifier(tx)
		}
	}

	return resp
}

// applyResult 根据支付结果更新交易记录
func (s *PaymentService) applyResult(ctx context.Context, tx *models.PaymentTransaction, resp *payment.Response) {
	if resp.Success {
		tx.MarkSuccess(resp.TransactionID, resp.ApprovalNumber)
		tx.ReceiptData = resp.ReceiptData
		tx.ChangeAmount = resp.ChangeAmount
	} else {
		tx.MarkFailed(resp.ErrorCode, resp.ErrorMessage)
	}

	if err := s.txRepo.Update(ctx, tx); err != nil {
		s.log.Error("更新交易状态失败",
			zap.Error(err),
			zap.String("order_no", tx.OrderNo),
			zap.String("status", tx.Status))
	}
}

// TerminalStatus 查询单个终端状态
func (s *PaymentService) TerminalStatus(ctx context.Context, method payment.Method) (payment.TerminalStatus, error) {
	return s.dispatcher.TerminalStatus(ctx, method)
}

// AllTerminalStatus 查询全部终端状态
func (s *PaymentService) AllTerminalStatus(ctx context.Context) map[payment.Method]payment.TerminalStatus {
	return s.dispatcher.AllTerminalStatus(ctx)
}

// GetTransaction 按订单号查询交易
func (s *PaymentService) GetTransaction(ctx context.Context, orderNo string) (*models.PaymentTransaction, error) {
	tx, err := s.txRepo.FindByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, fmt.Errorf("查询交易失败: %w", err)
	}
	return tx, nil
}

// QueryTransactions 按条件查询交易
func (s *PaymentService) QueryTransactions(ctx context.Context, query *models.PaymentTransactionQuery) ([]*models.PaymentTransaction, int64, error) {
	return s.txRepo.Query(ctx, query)
}

// LatestTransactions 最近交易
func (s *PaymentService) LatestTransactions(ctx context.Context, limit int) ([]*models.PaymentTransaction, error) {
	return s.txRepo.GetLatest(ctx, limit)
}

// GetStats 结算统计
func (s *PaymentService) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.PaymentStats, error) {
	return s.txRepo.GetStats(ctx, startTime, endTime)
}
