package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// LatencyDays 发票从开具到支付的整天数，不足一天向上取整
func LatencyDays(inv Invoice) int64 {
	if inv.PaidDate == nil {
		return 0
	}
	hours := inv.PaidDate.Sub(inv.IssueDate).Hours()
	return int64(math.Ceil(hours / 24))
}

// WeightedAverageDays 按金额加权的平均支付时延，保留一位小数。
// 样本为空时 ok 为 false，指标缺席而不是零。
func WeightedAverageDays(invoices []Invoice) (decimal.Decimal, bool) {
	var weighted, total decimal.Decimal
	for _, inv := range invoices {
		amount := decimal.NewFromInt(inv.Amount.Int64())
		weighted = weighted.Add(decimal.NewFromInt(LatencyDays(inv)).Mul(amount))
		total = total.Add(amount)
	}
	if !total.IsPositive() {
		return decimal.Decimal{}, false
	}
	return weighted.Div(total).Round(1), true
}

// CashConversionCycle CCC = DSO − DPO。本系统不跟踪库存，故无库存天数项。
func CashConversionCycle(dso, dpo decimal.Decimal) decimal.Decimal {
	return dso.Sub(dpo).Round(1)
}

// ClassifyTrend 将当前值与上一期比较。严格相等视为 stable。
func ClassifyTrend(current decimal.Decimal, previous *decimal.Decimal) Trend {
	if previous == nil {
		return TrendStable
	}
	switch current.Cmp(*previous) {
	case 1:
		return TrendIncreasing
	case -1:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
