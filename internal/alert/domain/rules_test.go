package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/cashflow/pkg/money"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func findRule(recs []Recommendation, rule RuleType) *Recommendation {
	for i := range recs {
		if recs[i].RuleType == rule {
			return &recs[i]
		}
	}
	return nil
}

func TestNoRulesFireOnHealthyInput(t *testing.T) {
	recs := EvaluateRules(RuleInput{
		DSO:            dec("30.0"),
		DPO:            dec("35.0"),
		CCC:            dec("-5.0"),
		CurrentBalance: money.Amount(100000),
	})
	assert.Empty(t, recs)
}

func TestRulesSilentWithoutMetrics(t *testing.T) {
	// 指标缺席时对应规则静默跳过，不视为违例
	recs := EvaluateRules(RuleInput{CurrentBalance: money.Amount(100000)})
	assert.Empty(t, recs)
}

func TestDSOThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name     string
		dso      string
		fires    bool
		severity Severity
	}{
		{"exactly 45 does not fire", "45.0", false, ""},
		{"just above 45 warns", "45.1", true, SeverityWarning},
		{"exactly 60 stays warning", "60.0", true, SeverityWarning},
		{"above 60 critical", "60.1", true, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := EvaluateRules(RuleInput{DSO: dec(tt.dso), ARBalance: money.Amount(500000)})
			rec := findRule(recs, RuleDSOHigh)
			if !tt.fires {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, tt.severity, rec.Severity)
			assert.Equal(t, AlertWorkingCapital, rec.AlertType)
		})
	}
}

func TestDPOLowRule(t *testing.T) {
	recs := EvaluateRules(RuleInput{DPO: dec("20.0"), APBalance: money.Amount(300000)})
	rec := findRule(recs, RuleDPOLow)

	require.NotNil(t, rec)
	assert.Equal(t, SeverityWarning, rec.Severity)
	assert.Equal(t, PriorityMedium, rec.Priority)

	// 边界 30 不触发
	recs = EvaluateRules(RuleInput{DPO: dec("30.0")})
	assert.Nil(t, findRule(recs, RuleDPOLow))
}

func TestCCCHighRule(t *testing.T) {
	recs := EvaluateRules(RuleInput{CCC: dec("75.0")})
	rec := findRule(recs, RuleCCCHigh)

	require.NotNil(t, rec)
	assert.Equal(t, SeverityCritical, rec.Severity)
	assert.Equal(t, PriorityHigh, rec.Priority)

	recs = EvaluateRules(RuleInput{CCC: dec("60.0")})
	assert.Nil(t, findRule(recs, RuleCCCHigh))
}

func TestOverdueReceivablesRule(t *testing.T) {
	recs := EvaluateRules(RuleInput{
		OverdueReceivableCount:  3,
		OverdueReceivableAmount: money.Amount(150000),
	})
	rec := findRule(recs, RuleOverdueReceivables)

	require.NotNil(t, rec)
	assert.Equal(t, AlertLatePaymentRisk, rec.AlertType)
	assert.Equal(t, SeverityCritical, rec.Severity)
	assert.Contains(t, rec.Message, "3")

	recs = EvaluateRules(RuleInput{OverdueReceivableCount: 0})
	assert.Nil(t, findRule(recs, RuleOverdueReceivables))
}

func TestCashShortageRule(t *testing.T) {
	date := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	recs := EvaluateRules(RuleInput{
		CurrentBalance: money.Amount(100000),
		Shortfall:      &Shortfall{Date: date, Balance: money.Amount(15000)},
	})
	rec := findRule(recs, RuleForecastCashShortage)

	require.NotNil(t, rec)
	assert.Equal(t, AlertCashShortage, rec.AlertType)
	assert.Equal(t, SeverityCritical, rec.Severity)
	require.NotNil(t, rec.PredictedDate)
	assert.Equal(t, date, *rec.PredictedDate)
	require.NotNil(t, rec.PredictedAmount)
	assert.Equal(t, money.Amount(15000), *rec.PredictedAmount)
}

func TestShortfallThreshold(t *testing.T) {
	assert.Equal(t, money.Amount(20000), ShortfallThreshold(money.Amount(100000)))
	assert.Equal(t, money.Amount(0), ShortfallThreshold(money.Amount(0)))
}

func TestMultipleRulesFireTogether(t *testing.T) {
	recs := EvaluateRules(RuleInput{
		DSO:                     dec("70.0"),
		DPO:                     dec("10.0"),
		CCC:                     dec("60.1"),
		ARBalance:               money.Amount(500000),
		APBalance:               money.Amount(200000),
		OverdueReceivableCount:  1,
		OverdueReceivableAmount: money.Amount(50000),
	})
	assert.Len(t, recs, 4)
}
