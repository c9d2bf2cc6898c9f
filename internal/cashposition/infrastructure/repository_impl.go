// Package infrastructure 现金头寸仓储实现
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/cashflow/internal/cashposition/domain"
	"github.com/wyfcoding/cashflow/pkg/money"
)

// GormAccountRepository 银行账户仓储实现
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository 创建账户仓储
func NewGormAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &GormAccountRepository{db: db}
}

// SumActiveBalances 汇总活跃账户余额
func (r *GormAccountRepository) SumActiveBalances(ctx context.Context, companyID string) (money.Amount, error) {
	var total sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&domain.BankAccount{}).
		Select("SUM(current_balance)").
		Where("company_id = ? AND is_active = ?", companyID, true).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return money.Amount(total.Int64), nil
}

// GormTransactionRepository 交易仓储实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewGormTransactionRepository 创建交易仓储
func NewGormTransactionRepository(db *gorm.DB) domain.TransactionRepository {
	return &GormTransactionRepository{db: db}
}

// ListByRange 取区间内交易
func (r *GormTransactionRepository) ListByRange(ctx context.Context, companyID string, start, end time.Time) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND transaction_date >= ? AND transaction_date <= ?", companyID, start, end).
		Order("transaction_date ASC").
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// SumOutflowsSince 汇总流出绝对值
func (r *GormTransactionRepository) SumOutflowsSince(ctx context.Context, companyID string, since time.Time) (money.Amount, error) {
	var total sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Select("SUM(-amount)").
		Where("company_id = ? AND amount < 0 AND transaction_date >= ?", companyID, since).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return money.Amount(total.Int64), nil
}

// EarliestDate 取最早交易日期
func (r *GormTransactionRepository) EarliestDate(ctx context.Context, companyID string) (time.Time, bool, error) {
	var tx domain.Transaction
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("transaction_date ASC").
		First(&tx).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return tx.TransactionDate, true, nil
}
