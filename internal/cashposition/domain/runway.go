package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// ProjectRunway 由当前余额与尾随窗口内的总流出计算烧钱速度与跑道。
// totalOutflow 以正数传入（流出的绝对值之和），windowDays 是流出窗口长度。
// 流出为零时返回无限哨兵，避免除零后的数值歧义向下游扩散。
func ProjectRunway(now time.Time, currentBalance money.Amount, totalOutflow money.Amount, windowDays int) RunwayProjection {
	windowMonths := decimal.NewFromInt(int64(windowDays)).Div(decimal.NewFromInt(30))
	burn := decimal.NewFromInt(totalOutflow.Int64()).Div(windowMonths)

	avgMonthlyBurn := money.Amount(burn.Round(0).IntPart())

	if !burn.IsPositive() {
		return RunwayProjection{
			CurrentBalance: currentBalance,
			AvgMonthlyBurn: avgMonthlyBurn,
			IsInfinite:     true,
		}
	}

	months := decimal.NewFromInt(currentBalance.Int64()).Div(burn)
	days := months.Mul(decimal.NewFromInt(30)).Round(0).IntPart()
	zeroDate := now.AddDate(0, 0, int(days))

	return RunwayProjection{
		CurrentBalance:    currentBalance,
		AvgMonthlyBurn:    avgMonthlyBurn,
		IsInfinite:        false,
		RunwayMonths:      months.Round(1),
		RunwayDays:        days,
		ProjectedZeroDate: &zeroDate,
	}
}
