// Package infrastructure 营运资金仓储实现
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/cashflow/internal/workingcapital/domain"
	"github.com/wyfcoding/cashflow/pkg/database"
	"github.com/wyfcoding/cashflow/pkg/money"
)

// GormInvoiceRepository 发票仓储实现
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository 创建发票仓储
func NewGormInvoiceRepository(db *gorm.DB) domain.InvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// ListRecentPaid 按支付日期倒序取最近已付发票
func (r *GormInvoiceRepository) ListRecentPaid(ctx context.Context, companyID string, invType domain.InvoiceType, limit int) ([]domain.Invoice, error) {
	var invoices []domain.Invoice
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND type = ? AND status = ? AND paid_date IS NOT NULL", companyID, invType, domain.InvoicePaid).
		Order("paid_date DESC").
		Limit(limit).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

// SumOutstanding 汇总未结清发票金额
func (r *GormInvoiceRepository) SumOutstanding(ctx context.Context, companyID string, invType domain.InvoiceType) (money.Amount, error) {
	var total sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Select("SUM(amount)").
		Where("company_id = ? AND type = ? AND status IN ?", companyID, invType,
			[]domain.InvoiceStatus{domain.InvoiceSent, domain.InvoiceOverdue}).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return money.Amount(total.Int64), nil
}

// GormMetricRepository 指标仓储实现
type GormMetricRepository struct {
	db *gorm.DB
}

// NewGormMetricRepository 创建指标仓储
func NewGormMetricRepository(db *gorm.DB) domain.MetricRepository {
	return &GormMetricRepository{db: db}
}

// Upsert 持久化指标快照，同公司同日期覆盖
func (r *GormMetricRepository) Upsert(ctx context.Context, metric *domain.WorkingCapitalMetric) error {
	return database.Upsert(ctx, r.db, metric,
		[]string{"company_id", "metric_date"},
		[]string{"dso", "dpo", "ccc", "dso_sample_size", "dpo_sample_size", "ar_balance", "ap_balance", "cash_balance", "updated_at"},
	)
}

// Latest 取最近一次持久化的指标
func (r *GormMetricRepository) Latest(ctx context.Context, companyID string) (*domain.WorkingCapitalMetric, error) {
	var metric domain.WorkingCapitalMetric
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("metric_date DESC").
		First(&metric).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

// LatestOnOrBefore 取不晚于 date 的最近指标
func (r *GormMetricRepository) LatestOnOrBefore(ctx context.Context, companyID string, date time.Time) (*domain.WorkingCapitalMetric, error) {
	var metric domain.WorkingCapitalMetric
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND metric_date <= ?", companyID, date).
		Order("metric_date DESC").
		First(&metric).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}
