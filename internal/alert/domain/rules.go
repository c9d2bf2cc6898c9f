package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/pkg/money"
)

// 规则阈值。边界值不触发，比较一律用严格不等。
var (
	dsoWarningThreshold  = decimal.NewFromInt(45)
	dsoCriticalThreshold = decimal.NewFromInt(60)
	dpoLowThreshold      = decimal.NewFromInt(30)
	cccHighThreshold     = decimal.NewFromInt(60)
)

// Priority 建议优先级
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Recommendation 规则评估产出。既是 dry-run 建议的载体，
// 也是创建告警的输入。
type Recommendation struct {
	RuleType        RuleType      `json:"type"`
	AlertType       AlertType     `json:"alertType"`
	Severity        Severity      `json:"severity"`
	Priority        Priority      `json:"priority"`
	Title           string        `json:"title"`
	Message         string        `json:"message"`
	PotentialImpact string        `json:"potentialImpact"`
	PredictedDate   *time.Time    `json:"predictedDate,omitempty"`
	PredictedAmount *money.Amount `json:"predictedAmount,omitempty"`
}

// Shortfall 基线预测中首个现金短缺日
type Shortfall struct {
	Date    time.Time
	Balance money.Amount
}

// RuleInput 规则评估的全部输入，由应用层从各读模型汇集。
// 指标为 nil 表示样本不足未产出，对应规则静默跳过。
type RuleInput struct {
	DSO *decimal.Decimal
	DPO *decimal.Decimal
	CCC *decimal.Decimal

	ARBalance money.Amount
	APBalance money.Amount

	OverdueReceivableCount  int64
	OverdueReceivableAmount money.Amount

	CurrentBalance money.Amount
	Shortfall      *Shortfall
}

// EvaluateRules 对输入执行全部告警规则，返回命中的建议。
// 纯函数，不读库不写库。
func EvaluateRules(input RuleInput) []Recommendation {
	recs := make([]Recommendation, 0, 5)

	if r := evaluateDSO(input); r != nil {
		recs = append(recs, *r)
	}
	if r := evaluateDPO(input); r != nil {
		recs = append(recs, *r)
	}
	if r := evaluateCCC(input); r != nil {
		recs = append(recs, *r)
	}
	if r := evaluateOverdueReceivables(input); r != nil {
		recs = append(recs, *r)
	}
	if r := evaluateCashShortage(input); r != nil {
		recs = append(recs, *r)
	}
	return recs
}

// evaluateDSO DSO 超过 45 天告警，超过 60 天升级为 critical。
// 潜在收益按把 DSO 压回 45 天可释放的应收比例估算。
func evaluateDSO(input RuleInput) *Recommendation {
	if input.DSO == nil || !input.DSO.GreaterThan(dsoWarningThreshold) {
		return nil
	}

	severity := SeverityWarning
	if input.DSO.GreaterThan(dsoCriticalThreshold) {
		severity = SeverityCritical
	}

	impact := money.Amount(0)
	if input.DSO.IsPositive() {
		freed := decimal.New(input.ARBalance.Int64(), 0).
			Mul(input.DSO.Sub(dsoWarningThreshold)).
			Div(*input.DSO)
		impact = money.Amount(freed.IntPart())
	}

	return &Recommendation{
		RuleType:  RuleDSOHigh,
		AlertType: AlertWorkingCapital,
		Severity:  severity,
		Priority:  priorityFor(severity),
		Title:     "回款周期偏长",
		Message: fmt.Sprintf("应收账款平均回款周期为 %s 天，超过 45 天目标。建议加强催收并收紧信用账期。",
			input.DSO.StringFixed(1)),
		PotentialImpact: fmt.Sprintf("压回 45 天可提前释放约 %s 现金", impact.Major().StringFixed(2)),
	}
}

// evaluateDPO DPO 低于 30 天告警，付款过快损失了免费账期。
func evaluateDPO(input RuleInput) *Recommendation {
	if input.DPO == nil || !input.DPO.LessThan(dpoLowThreshold) {
		return nil
	}

	impact := money.Amount(0)
	if input.DPO.IsPositive() {
		retained := decimal.New(input.APBalance.Int64(), 0).
			Mul(dpoLowThreshold.Sub(*input.DPO)).
			Div(*input.DPO)
		impact = money.Amount(retained.IntPart())
	}

	return &Recommendation{
		RuleType:  RuleDPOLow,
		AlertType: AlertWorkingCapital,
		Severity:  SeverityWarning,
		Priority:  PriorityMedium,
		Title:     "付款周期偏短",
		Message: fmt.Sprintf("应付账款平均付款周期为 %s 天，低于 30 天。建议与供应商协商更长账期。",
			input.DPO.StringFixed(1)),
		PotentialImpact: fmt.Sprintf("延至 30 天可多保留约 %s 在途现金", impact.Major().StringFixed(2)),
	}
}

// evaluateCCC 现金转换周期超过 60 天为流动性风险
func evaluateCCC(input RuleInput) *Recommendation {
	if input.CCC == nil || !input.CCC.GreaterThan(cccHighThreshold) {
		return nil
	}

	return &Recommendation{
		RuleType:  RuleCCCHigh,
		AlertType: AlertWorkingCapital,
		Severity:  SeverityCritical,
		Priority:  PriorityHigh,
		Title:     "现金转换周期过长",
		Message: fmt.Sprintf("现金转换周期为 %s 天，超过 60 天。资金在运营环节占压时间过长，流动性承压。",
			input.CCC.StringFixed(1)),
		PotentialImpact: "缩短 CCC 可直接降低营运资金占用",
	}
}

// evaluateOverdueReceivables 存在逾期应收即告警
func evaluateOverdueReceivables(input RuleInput) *Recommendation {
	if input.OverdueReceivableCount <= 0 {
		return nil
	}

	return &Recommendation{
		RuleType:  RuleOverdueReceivables,
		AlertType: AlertLatePaymentRisk,
		Severity:  SeverityCritical,
		Priority:  PriorityHigh,
		Title:     "存在逾期应收账款",
		Message: fmt.Sprintf("有 %d 笔应收账款已逾期，合计 %s。建议立即启动催收流程。",
			input.OverdueReceivableCount, input.OverdueReceivableAmount.Major().StringFixed(2)),
		PotentialImpact: fmt.Sprintf("收回逾期款项可补充 %s 现金", input.OverdueReceivableAmount.Major().StringFixed(2)),
	}
}

// evaluateCashShortage 基线预测余额低于当前余额 20% 即告警
func evaluateCashShortage(input RuleInput) *Recommendation {
	if input.Shortfall == nil {
		return nil
	}

	date := input.Shortfall.Date
	balance := input.Shortfall.Balance
	return &Recommendation{
		RuleType:  RuleForecastCashShortage,
		AlertType: AlertCashShortage,
		Severity:  SeverityCritical,
		Priority:  PriorityHigh,
		Title:     "预测现金短缺",
		Message: fmt.Sprintf("基线预测 %s 现金余额将降至 %s，低于当前余额的 20%%。建议提前安排融资或压缩支出。",
			date.Format("2006-01-02"), balance.Major().StringFixed(2)),
		PotentialImpact: "提前行动可避免现金断裂",
		PredictedDate:   &date,
		PredictedAmount: &balance,
	}
}

func priorityFor(severity Severity) Priority {
	switch severity {
	case SeverityCritical:
		return PriorityHigh
	case SeverityWarning:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// ShortfallThreshold 现金短缺阈值，当前余额的 20%
func ShortfallThreshold(currentBalance money.Amount) money.Amount {
	return money.Amount(currentBalance.Int64() / 5)
}
