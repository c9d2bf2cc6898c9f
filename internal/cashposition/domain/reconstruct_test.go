package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/cashflow/pkg/money"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tx(date time.Time, amount int64) Transaction {
	return Transaction{
		ID:              "tx-" + date.Format("20060102"),
		CompanyID:       "co-1",
		BankAccountID:   "acc-1",
		Amount:          money.Amount(amount),
		TransactionDate: date,
	}
}

func TestReconstructEmptyWithoutTransactions(t *testing.T) {
	series := Reconstruct(money.Amount(100000), nil, GranularityDaily)
	assert.NotNil(t, series)
	assert.Empty(t, series)
}

func TestReconstructBackwardWalk(t *testing.T) {
	// 当前余额 1000，3 日 +200，1 日 -300
	txs := []Transaction{
		tx(day(2026, 3, 1), -300),
		tx(day(2026, 3, 3), 200),
	}

	series := Reconstruct(money.Amount(1000), txs, GranularityDaily)
	require.Len(t, series, 2)

	// 升序输出，每个点的余额已含当日变动
	assert.Equal(t, day(2026, 3, 1), series[0].Date)
	assert.Equal(t, money.Amount(800), series[0].Balance)
	assert.Equal(t, money.Amount(-300), series[0].NetChange)

	assert.Equal(t, day(2026, 3, 3), series[1].Date)
	assert.Equal(t, money.Amount(1000), series[1].Balance)
	assert.Equal(t, money.Amount(200), series[1].NetChange)
}

func TestReconstructAggregatesSameDay(t *testing.T) {
	txs := []Transaction{
		tx(time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC), 100),
		tx(time.Date(2026, 3, 5, 17, 45, 0, 0, time.UTC), -40),
	}

	series := Reconstruct(money.Amount(500), txs, GranularityDaily)
	require.Len(t, series, 1)
	assert.Equal(t, money.Amount(60), series[0].NetChange)
	assert.Equal(t, money.Amount(500), series[0].Balance)
}

func TestReconstructSkipsGapDays(t *testing.T) {
	txs := []Transaction{
		tx(day(2026, 3, 1), 100),
		tx(day(2026, 3, 10), 100),
	}

	series := Reconstruct(money.Amount(1000), txs, GranularityDaily)
	require.Len(t, series, 2)
	assert.Equal(t, day(2026, 3, 1), series[0].Date)
	assert.Equal(t, day(2026, 3, 10), series[1].Date)
}

func TestReconstructIdempotent(t *testing.T) {
	txs := []Transaction{
		tx(day(2026, 1, 2), -500),
		tx(day(2026, 1, 15), 1200),
		tx(day(2026, 2, 1), -300),
	}

	first := Reconstruct(money.Amount(10000), txs, GranularityDaily)
	second := Reconstruct(money.Amount(10000), txs, GranularityDaily)
	assert.Equal(t, first, second)
}

func TestReconstructNetChangeConsistency(t *testing.T) {
	// 相邻点满足 balance[i] = balance[i-1] + netChange[i]
	txs := []Transaction{
		tx(day(2026, 4, 1), 250),
		tx(day(2026, 4, 2), -100),
		tx(day(2026, 4, 7), 600),
		tx(day(2026, 4, 9), -50),
	}

	series := Reconstruct(money.Amount(7000), txs, GranularityDaily)
	require.Len(t, series, 4)
	for i := 1; i < len(series); i++ {
		assert.Equal(t, series[i-1].Balance.Add(series[i].NetChange), series[i].Balance,
			"consistency broken at %s", series[i].Date)
	}
	assert.Equal(t, money.Amount(7000), series[len(series)-1].Balance)
}

func TestReconstructWeeklyRebucket(t *testing.T) {
	// 2026-03-02 是周一；3 日与 5 日同周，9 日下一周
	txs := []Transaction{
		tx(day(2026, 3, 3), 100),
		tx(day(2026, 3, 5), -30),
		tx(day(2026, 3, 9), 50),
	}

	series := Reconstruct(money.Amount(1000), txs, GranularityWeekly)
	require.Len(t, series, 2)

	assert.Equal(t, day(2026, 3, 2), series[0].Date)
	// 周余额取周期内最后观察到的余额
	assert.Equal(t, money.Amount(950), series[0].Balance)
	assert.Equal(t, money.Amount(70), series[0].NetChange)

	assert.Equal(t, day(2026, 3, 9), series[1].Date)
	assert.Equal(t, money.Amount(1000), series[1].Balance)
	assert.Equal(t, money.Amount(50), series[1].NetChange)
}

func TestReconstructMonthlyRebucket(t *testing.T) {
	txs := []Transaction{
		tx(day(2026, 1, 10), 100),
		tx(day(2026, 1, 25), 200),
		tx(day(2026, 2, 3), -50),
	}

	series := Reconstruct(money.Amount(2000), txs, GranularityMonthly)
	require.Len(t, series, 2)

	assert.Equal(t, day(2026, 1, 1), series[0].Date)
	assert.Equal(t, money.Amount(2050), series[0].Balance)
	assert.Equal(t, money.Amount(300), series[0].NetChange)

	assert.Equal(t, day(2026, 2, 1), series[1].Date)
	assert.Equal(t, money.Amount(2000), series[1].Balance)
	assert.Equal(t, money.Amount(-50), series[1].NetChange)
}

func TestWeekKeyIsoMonday(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"monday maps to itself", day(2026, 3, 2), day(2026, 3, 2)},
		{"wednesday", day(2026, 3, 4), day(2026, 3, 2)},
		{"sunday belongs to preceding monday", day(2026, 3, 8), day(2026, 3, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekKey(tt.in))
		})
	}
}

func TestGranularityValid(t *testing.T) {
	assert.True(t, GranularityDaily.Valid())
	assert.True(t, GranularityWeekly.Valid())
	assert.True(t, GranularityMonthly.Valid())
	assert.False(t, Granularity("hourly").Valid())
	assert.False(t, Granularity("").Valid())
}
