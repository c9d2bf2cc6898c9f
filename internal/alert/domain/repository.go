package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// AlertRepository 告警仓储接口
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	GetByID(ctx context.Context, companyID, alertID string) (*Alert, error)
	HasActiveRule(ctx context.Context, companyID string, rule RuleType) (bool, error)
	ListByCompany(ctx context.Context, companyID string, status *Status, limit int) ([]Alert, error)
	Update(ctx context.Context, alert *Alert) error
	CountActive(ctx context.Context, companyID string) (int64, error)
}

// MetricSnapshot 告警规则需要的营运资金指标切面
type MetricSnapshot struct {
	MetricDate time.Time
	DSO        *decimal.Decimal
	DPO        *decimal.Decimal
	CCC        *decimal.Decimal
	ARBalance  money.Amount
	APBalance  money.Amount
}

// MetricReader 营运资金指标读端口
type MetricReader interface {
	LatestSnapshot(ctx context.Context, companyID string) (*MetricSnapshot, error)
}

// InvoiceReader 发票读端口
type InvoiceReader interface {
	// OverdueReceivables 返回状态为 overdue 的应收发票笔数与合计金额
	OverdueReceivables(ctx context.Context, companyID string) (int64, money.Amount, error)
}

// BalanceReader 当前现金余额读端口
type BalanceReader interface {
	SumActiveBalances(ctx context.Context, companyID string) (money.Amount, error)
}

// ForecastReader 预测读端口。FirstShortfall 在最近一次 completed 运行的
// 基线情景里找首个预测余额低于阈值的日期，没有则返回 nil。
type ForecastReader interface {
	FirstShortfall(ctx context.Context, companyID string, threshold money.Amount) (*Shortfall, error)
}
