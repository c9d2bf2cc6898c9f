package domain

import (
	"context"
	"time"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// InvoiceRepository 发票只读仓储
type InvoiceRepository interface {
	// ListRecentPaid 按支付日期倒序取最近 limit 张已付发票
	ListRecentPaid(ctx context.Context, companyID string, invType InvoiceType, limit int) ([]Invoice, error)
	// SumOutstanding 汇总未结清（sent/overdue）发票金额
	SumOutstanding(ctx context.Context, companyID string, invType InvoiceType) (money.Amount, error)
}

// MetricRepository 营运资金指标仓储
type MetricRepository interface {
	// Upsert 持久化指标快照，同公司同日期覆盖
	Upsert(ctx context.Context, metric *WorkingCapitalMetric) error
	// Latest 取最近一次持久化的指标
	Latest(ctx context.Context, companyID string) (*WorkingCapitalMetric, error)
	// LatestOnOrBefore 取不晚于 date 的最近指标，用于趋势比较
	LatestOnOrBefore(ctx context.Context, companyID string, date time.Time) (*WorkingCapitalMetric, error)
}

// BalanceReader 现金余额读取口，避免对现金头寸模块的直接依赖
type BalanceReader interface {
	SumActiveBalances(ctx context.Context, companyID string) (money.Amount, error)
}
