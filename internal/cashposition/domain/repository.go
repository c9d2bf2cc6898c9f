package domain

import (
	"context"
	"time"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// AccountRepository 银行账户只读仓储
type AccountRepository interface {
	// SumActiveBalances 汇总公司所有活跃账户的 current_balance
	SumActiveBalances(ctx context.Context, companyID string) (money.Amount, error)
}

// TransactionRepository 交易只读仓储
type TransactionRepository interface {
	// ListByRange 取区间内（含两端）的交易，按日期升序
	ListByRange(ctx context.Context, companyID string, start, end time.Time) ([]Transaction, error)
	// SumOutflowsSince 汇总自 since 以来的流出绝对值
	SumOutflowsSince(ctx context.Context, companyID string, since time.Time) (money.Amount, error)
	// EarliestDate 取公司最早一笔交易的日期，无交易时 ok 为 false
	EarliestDate(ctx context.Context, companyID string) (time.Time, bool, error)
}
