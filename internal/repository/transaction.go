package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jimeKim/cvm-beautibox-kiosk-sub001/internal/models"
	"gorm.io/gorm"
)

// PaymentTransactionRepository 支付交易仓储接口
type PaymentTransactionRepository interface {
	BaseRepository
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	Update(ctx context.Context, tx *models.PaymentTransaction) error
	FindByID(ctx context.Context, id uint) (*models.PaymentTransaction, error)
	FindByOrderNo(ctx context.Context, orderNo string) (*models.PaymentTransaction, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error)
	Query(ctx context.Context, query *models.PaymentTransactionQuery) ([]*models.PaymentTransaction, int64, error)
	GetLatest(ctx context.Context, limit int) ([]*models.PaymentTransaction, error)
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.PaymentStats, error)
}

// paymentTransactionRepo 支付交易仓储实现
type paymentTransactionRepo struct {
	*BaseRepo
}

// NewPaymentTransactionRepository 创建支付交易仓储
func NewPaymentTransactionRepository(db *gorm.DB) PaymentTransactionRepository {
	return &paymentTransactionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Create 创建交易记录
func (r *paymentTransactionRepo) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

// Update 更新交易记录
func (r *paymentTransactionRepo) Update(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

// FindByID 根据ID查找交易
func (r *paymentTransactionRepo) FindByID(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).First(&tx, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("交易记录不存在")
		}
		return nil, err
	}
	return &tx, nil
}

// FindByOrderNo 根据订单号查找交易
func (r *paymentTransactionRepo) FindByOrderNo(ctx context.Context, orderNo string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("order_no = ?", orderNo).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("交易记录不存在")
		}
		return nil, err
	}
	return &tx, nil
}

// FindByTransactionID 根据终端交易号查找
func (r *paymentTransactionRepo) FindByTransactionID(ctx context.Context, transactionID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("交易记录不存在")
		}
		return nil, err
	}
	return &tx, nil
}

// Query 按条件查询交易
func (r *paymentTransactionRepo) Query(ctx context.Context, query *models.PaymentTransactionQuery) ([]*models.PaymentTransaction, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.PaymentTransaction{})

	if query.OrderNo != "" {
		db = db.Where("order_no = ?", query.OrderNo)
	}
	if query.Method != "" {
		db = db.Where("method = ?", query.Method)
	}
	if query.Status != "" {
		db = db.Where("status = ?", query.Status)
	}
	if query.TransactionID != "" {
		db = db.Where("transaction_id = ?", query.TransactionID)
	}
	if query.ErrorCode != "" {
		db = db.Where("error_code = ?", query.ErrorCode)
	}
	if query.MinAmount != nil {
		db = db.Where("amount >= ?", *query.MinAmount)
	}
	if query.MaxAmount != nil {
		db = db.Where("amount <= ?", *query.MaxAmount)
	}
	db = db.Scopes(TimeRange(query.StartTime, query.EndTime))

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := query.OrderBy
	if orderBy == "" {
		orderBy = "created_at DESC"
	}
	db = db.Order(orderBy)

	if query.Limit > 0 {
		db = db.Limit(query.Limit)
	}
	if query.Offset > 0 {
		db = db.Offset(query.Offset)
	}

	var txs []*models.PaymentTransaction
	if err := db.Find(&txs).Error; err != nil {
		return nil, 0, err
	}

	return txs, total, nil
}

// GetLatest 获取最新交易
func (r *paymentTransactionRepo) GetLatest(ctx context.Context, limit int) ([]*models.PaymentTransaction, error) {
	var txs []*models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// GetStats 获取结算统计
func (r *paymentTransactionRepo) GetStats(ctx context.Context, startTime, endTime *time.Time) (*models.PaymentStats, error) {
	stats := &models.PaymentStats{}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Model(&models.PaymentTransaction{}).
			Scopes(TimeRange(startTime, endTime))
	}

	if err := base().Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.TxStatusSuccess).
		Count(&stats.SuccessCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.TxStatusFailed).
		Count(&stats.FailedCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.TxStatusCancelled).
		Count(&stats.CancelledCount).Error; err != nil {
		return nil, err
	}

	// 金额只统计成功交易
	type amountSums struct {
		TotalAmount int64
		TotalChange int64
	}
	var sums amountSums
	if err := base().
		Select("COALESCE(SUM(amount), 0) as total_amount, COALESCE(SUM(change_amount), 0) as total_change").
		Where("status = ?", models.TxStatusSuccess).
		Scan(&sums).Error; err != nil {
		return nil, err
	}
	stats.TotalAmount = sums.TotalAmount
	stats.TotalChange = sums.TotalChange

	if err := base().Where("method IN ?", []string{"card", "mobile"}).
		Count(&stats.CardCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("method = ?", "qr").
		Count(&stats.QRCount).Error; err != nil {
		return nil, err
	}
	if err := base().Where("method = ?", "cash").
		Count(&stats.CashCount).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// WithTx 使用事务
func (r *paymentTransactionRepo) WithTx(tx *gorm.DB) BaseRepository {
	return &paymentTransactionRepo{
		BaseRepo: &BaseRepo{db: tx},
	}
}
