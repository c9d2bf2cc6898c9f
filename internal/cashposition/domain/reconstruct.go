// 余额重建：以当前余额为锚点，用交易增量倒推历史序列。
// 已知局限：序列是对“当前记录的交易集合”的重算，事后补录或修改交易会
// 无声地改变历史曲线；数据模型没有留存可区分的快照。
package domain

import (
	"sort"
	"time"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// DayKey 将时间截断为 UTC 日期，聚合时忽略时间部分
func DayKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekKey 返回所在 ISO 周的周一
func WeekKey(t time.Time) time.Time {
	d := DayKey(t)
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return d.AddDate(0, 0, -(weekday - 1))
}

// MonthKey 返回所在月份的第一天
func MonthKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Reconstruct 由当前总余额与区间内交易重建余额序列。
// presentTotal 是所有活跃账户 current_balance 之和，作为最近一天的权威余额；
// 自最近的交易日起倒序回溯，balance_at(d) 已包含当日变动，再减去当日变动
// 得到更早一天的余额。只有发生过交易的日期会出现在日级序列中，缺失日不插值。
// 纯函数：相同输入必然产生逐字节相同的输出。
func Reconstruct(presentTotal money.Amount, txs []Transaction, granularity Granularity) []BalancePoint {
	if len(txs) == 0 {
		return []BalancePoint{}
	}

	dailyChange := make(map[time.Time]money.Amount)
	for _, tx := range txs {
		day := DayKey(tx.TransactionDate)
		dailyChange[day] = dailyChange[day].Add(tx.Amount)
	}

	days := make([]time.Time, 0, len(dailyChange))
	for day := range dailyChange {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	// 倒序回溯
	series := make([]BalancePoint, 0, len(days))
	running := presentTotal
	for _, day := range days {
		series = append(series, BalancePoint{
			Date:      day,
			Balance:   running,
			NetChange: dailyChange[day],
		})
		running = running.Sub(dailyChange[day])
	}

	// 升序输出
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })

	switch granularity {
	case GranularityWeekly:
		return rebucket(series, WeekKey)
	case GranularityMonthly:
		return rebucket(series, MonthKey)
	default:
		return series
	}
}

// rebucket 将日级序列聚合为周期序列：周期余额取周期内最后观察到的余额，
// 净变动为周期内日净变动之和。
func rebucket(daily []BalancePoint, keyFn func(time.Time) time.Time) []BalancePoint {
	if len(daily) == 0 {
		return daily
	}

	out := make([]BalancePoint, 0)
	var current *BalancePoint
	for _, p := range daily {
		key := keyFn(p.Date)
		if current == nil || !current.Date.Equal(key) {
			if current != nil {
				out = append(out, *current)
			}
			current = &BalancePoint{Date: key, Balance: p.Balance, NetChange: p.NetChange}
			continue
		}
		current.Balance = p.Balance
		current.NetChange = current.NetChange.Add(p.NetChange)
	}
	out = append(out, *current)
	return out
}
