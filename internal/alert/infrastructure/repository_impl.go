// Package infrastructure 告警仓储与跨模块读适配器实现
package infrastructure

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/cashflow/internal/alert/domain"
	"github.com/wyfcoding/cashflow/pkg/money"
)

// GormAlertRepository 告警仓储实现
type GormAlertRepository struct {
	db *gorm.DB
}

// NewGormAlertRepository 创建告警仓储
func NewGormAlertRepository(db *gorm.DB) domain.AlertRepository {
	return &GormAlertRepository{db: db}
}

// Create 写入告警
func (r *GormAlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

// GetByID 按公司范围取告警
func (r *GormAlertRepository) GetByID(ctx context.Context, companyID, alertID string) (*domain.Alert, error) {
	var alert domain.Alert
	err := r.db.WithContext(ctx).
		Where("id = ? AND company_id = ?", alertID, companyID).
		First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// HasActiveRule 同规则是否已有 active 告警
func (r *GormAlertRepository) HasActiveRule(ctx context.Context, companyID string, rule domain.RuleType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("company_id = ? AND rule_type = ? AND status = ?", companyID, rule, domain.StatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByCompany 按公司列出告警，最新在前
func (r *GormAlertRepository) ListByCompany(ctx context.Context, companyID string, status *domain.Status, limit int) ([]domain.Alert, error) {
	query := r.db.WithContext(ctx).Where("company_id = ?", companyID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var alerts []domain.Alert
	if err := query.Order("created_at DESC").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// Update 持久化状态迁移
func (r *GormAlertRepository) Update(ctx context.Context, alert *domain.Alert) error {
	return r.db.WithContext(ctx).
		Model(alert).
		Select("status", "updated_at").
		Updates(alert).Error
}

// CountActive 统计公司当前 active 告警数
func (r *GormAlertRepository) CountActive(ctx context.Context, companyID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Alert{}).
		Where("company_id = ? AND status = ?", companyID, domain.StatusActive).
		Count(&count).Error
	return count, err
}

// GormMetricReader 从营运资金指标表读取最新切面
type GormMetricReader struct {
	db *gorm.DB
}

// NewGormMetricReader 创建指标读适配器
func NewGormMetricReader(db *gorm.DB) domain.MetricReader {
	return &GormMetricReader{db: db}
}

type metricRow struct {
	MetricDate time.Time        `gorm:"column:metric_date"`
	DSO        *decimal.Decimal `gorm:"column:dso"`
	DPO        *decimal.Decimal `gorm:"column:dpo"`
	CCC        *decimal.Decimal `gorm:"column:ccc"`
	ARBalance  int64            `gorm:"column:ar_balance"`
	APBalance  int64            `gorm:"column:ap_balance"`
}

// LatestSnapshot 取公司最新的指标行，没有则返回 nil
func (r *GormMetricReader) LatestSnapshot(ctx context.Context, companyID string) (*domain.MetricSnapshot, error) {
	var row metricRow
	err := r.db.WithContext(ctx).
		Table("working_capital_metrics").
		Where("company_id = ?", companyID).
		Order("metric_date DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.MetricSnapshot{
		MetricDate: row.MetricDate,
		DSO:        row.DSO,
		DPO:        row.DPO,
		CCC:        row.CCC,
		ARBalance:  money.Amount(row.ARBalance),
		APBalance:  money.Amount(row.APBalance),
	}, nil
}

// GormInvoiceReader 从发票表读取逾期应收
type GormInvoiceReader struct {
	db *gorm.DB
}

// NewGormInvoiceReader 创建发票读适配器
func NewGormInvoiceReader(db *gorm.DB) domain.InvoiceReader {
	return &GormInvoiceReader{db: db}
}

// OverdueReceivables 逾期口径以发票状态为准，不重算到期日
func (r *GormInvoiceReader) OverdueReceivables(ctx context.Context, companyID string) (int64, money.Amount, error) {
	type aggregate struct {
		Count int64         `gorm:"column:cnt"`
		Total sql.NullInt64 `gorm:"column:total"`
	}
	var agg aggregate
	err := r.db.WithContext(ctx).
		Table("invoices").
		Select("COUNT(*) AS cnt, SUM(amount) AS total").
		Where("company_id = ? AND type = ? AND status = ?",
			companyID, "receivable", "overdue").
		Scan(&agg).Error
	if err != nil {
		return 0, 0, err
	}
	return agg.Count, money.Amount(agg.Total.Int64), nil
}

// GormForecastReader 从预测表读取现金短缺点
type GormForecastReader struct {
	db *gorm.DB
}

// NewGormForecastReader 创建预测读适配器
func NewGormForecastReader(db *gorm.DB) domain.ForecastReader {
	return &GormForecastReader{db: db}
}

type shortfallRow struct {
	ForecastDate     time.Time `gorm:"column:forecast_date"`
	PredictedBalance int64     `gorm:"column:predicted_balance"`
}

// FirstShortfall 在最近一次 completed 运行的基线情景里找首个
// 预测余额低于阈值的日期。没有 completed 运行或没有短缺都返回 nil。
func (r *GormForecastReader) FirstShortfall(ctx context.Context, companyID string, threshold money.Amount) (*domain.Shortfall, error) {
	var runID string
	err := r.db.WithContext(ctx).
		Table("forecast_runs").
		Select("id").
		Where("company_id = ? AND status = ?", companyID, "completed").
		Order("completed_at DESC").
		Limit(1).
		Scan(&runID).Error
	if err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, nil
	}

	var row shortfallRow
	err = r.db.WithContext(ctx).
		Table("forecasts").
		Select("forecast_date, predicted_balance").
		Where("company_id = ? AND forecast_run_id = ? AND scenario = ? AND predicted_balance < ?",
			companyID, runID, "baseline", threshold.Int64()).
		Order("forecast_date ASC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &domain.Shortfall{
		Date:    row.ForecastDate,
		Balance: money.Amount(row.PredictedBalance),
	}, nil
}
