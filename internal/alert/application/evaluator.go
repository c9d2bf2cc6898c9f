// Package application 告警评估与生命周期服务
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/cashflow/internal/alert/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/metrics"
	"github.com/wyfcoding/cashflow/pkg/mq"
)

// TopicAlertCreated 告警创建事件主题
const TopicAlertCreated = "alert.created"

// alertTTLDays 未处理告警的过期天数
const alertTTLDays = 30

// Evaluator 告警评估服务。规则本身是纯函数，本服务负责汇集输入、
// 去重落库和生命周期迁移。
type Evaluator struct {
	alertRepo      domain.AlertRepository
	metricReader   domain.MetricReader
	invoiceReader  domain.InvoiceReader
	balanceReader  domain.BalanceReader
	forecastReader domain.ForecastReader
	events         mq.EventPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
}

// NewEvaluator 创建评估服务
func NewEvaluator(
	alertRepo domain.AlertRepository,
	metricReader domain.MetricReader,
	invoiceReader domain.InvoiceReader,
	balanceReader domain.BalanceReader,
	forecastReader domain.ForecastReader,
	events mq.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Evaluator {
	if events == nil {
		events = mq.NoopEventPublisher{}
	}
	return &Evaluator{
		alertRepo:      alertRepo,
		metricReader:   metricReader,
		invoiceReader:  invoiceReader,
		balanceReader:  balanceReader,
		forecastReader: forecastReader,
		events:         events,
		metrics:        m,
		logger:         logger.With("module", "alert"),
		now:            time.Now,
	}
}

// Recommendations 只评估不落库，返回当前命中的全部建议
func (e *Evaluator) Recommendations(ctx context.Context, companyID string) ([]domain.Recommendation, error) {
	input, err := e.collectInput(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return domain.EvaluateRules(*input), nil
}

// Evaluate 执行规则并为命中且尚无同规则活跃告警的建议创建告警。
// 返回本次新建的告警。
func (e *Evaluator) Evaluate(ctx context.Context, companyID string) ([]domain.Alert, error) {
	input, err := e.collectInput(ctx, companyID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	created := make([]domain.Alert, 0)
	for _, rec := range domain.EvaluateRules(*input) {
		exists, err := e.alertRepo.HasActiveRule(ctx, companyID, rec.RuleType)
		if err != nil {
			return nil, apperr.Integrity("failed to check active alerts").WithCause(err)
		}
		if exists {
			continue
		}

		expires := now.AddDate(0, 0, alertTTLDays)
		alert := domain.Alert{
			ID:              uuid.NewString(),
			CompanyID:       companyID,
			AlertType:       rec.AlertType,
			RuleType:        rec.RuleType,
			Severity:        rec.Severity,
			Status:          domain.StatusActive,
			Title:           rec.Title,
			Message:         rec.Message,
			PredictedDate:   rec.PredictedDate,
			PredictedAmount: rec.PredictedAmount,
			ExpiresAt:       &expires,
			Metadata: map[string]any{
				"priority":        rec.Priority,
				"potentialImpact": rec.PotentialImpact,
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.alertRepo.Create(ctx, &alert); err != nil {
			return nil, apperr.Integrity("failed to create alert").WithCause(err)
		}

		if e.metrics != nil {
			e.metrics.AlertsEmittedTotal.WithLabelValues(string(rec.AlertType)).Inc()
		}
		e.publishCreated(ctx, &alert)
		created = append(created, alert)
	}

	e.refreshActiveGauge(ctx, companyID)
	e.logger.InfoContext(ctx, "alert evaluation finished",
		"company_id", companyID, "created", len(created))
	return created, nil
}

// collectInput 从各读模型汇集规则输入。预测读取失败只降级跳过
// 现金短缺规则，不让整体评估失败。
func (e *Evaluator) collectInput(ctx context.Context, companyID string) (*domain.RuleInput, error) {
	input := domain.RuleInput{}

	snapshot, err := e.metricReader.LatestSnapshot(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load working capital metrics").WithCause(err)
	}
	if snapshot != nil {
		input.DSO = snapshot.DSO
		input.DPO = snapshot.DPO
		input.CCC = snapshot.CCC
		input.ARBalance = snapshot.ARBalance
		input.APBalance = snapshot.APBalance
	}

	count, amount, err := e.invoiceReader.OverdueReceivables(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load overdue receivables").WithCause(err)
	}
	input.OverdueReceivableCount = count
	input.OverdueReceivableAmount = amount

	balance, err := e.balanceReader.SumActiveBalances(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load current balance").WithCause(err)
	}
	input.CurrentBalance = balance

	shortfall, err := e.forecastReader.FirstShortfall(ctx, companyID, domain.ShortfallThreshold(balance))
	if err != nil {
		e.logger.WarnContext(ctx, "forecast unavailable, skipping cash shortage rule",
			"company_id", companyID, "error", err)
	} else {
		input.Shortfall = shortfall
	}

	return &input, nil
}

// List 按公司列出告警，可选状态过滤
func (e *Evaluator) List(ctx context.Context, companyID string, status *domain.Status, limit int) ([]domain.Alert, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	alerts, err := e.alertRepo.ListByCompany(ctx, companyID, status, limit)
	if err != nil {
		return nil, apperr.Integrity("failed to list alerts").WithCause(err)
	}
	return alerts, nil
}

// Acknowledge 确认告警
func (e *Evaluator) Acknowledge(ctx context.Context, companyID, alertID string) (*domain.Alert, error) {
	return e.transition(ctx, companyID, alertID, (*domain.Alert).Acknowledge)
}

// Resolve 解决告警
func (e *Evaluator) Resolve(ctx context.Context, companyID, alertID string) (*domain.Alert, error) {
	return e.transition(ctx, companyID, alertID, (*domain.Alert).Resolve)
}

// Dismiss 忽略告警
func (e *Evaluator) Dismiss(ctx context.Context, companyID, alertID string) (*domain.Alert, error) {
	return e.transition(ctx, companyID, alertID, (*domain.Alert).Dismiss)
}

// transition 公司范围内取告警并应用状态迁移。跨公司访问与不存在
// 同样返回 NotFound，不泄露他方告警的存在性。
func (e *Evaluator) transition(ctx context.Context, companyID, alertID string, apply func(*domain.Alert) error) (*domain.Alert, error) {
	alert, err := e.alertRepo.GetByID(ctx, companyID, alertID)
	if err != nil {
		return nil, apperr.Integrity("failed to load alert").WithCause(err)
	}
	if alert == nil {
		return nil, apperr.NotFound("alert not found").WithField("alertId", alertID)
	}

	if err := apply(alert); err != nil {
		return nil, err
	}
	alert.UpdatedAt = e.now()

	if err := e.alertRepo.Update(ctx, alert); err != nil {
		return nil, apperr.Integrity("failed to update alert").WithCause(err)
	}

	e.refreshActiveGauge(ctx, companyID)
	return alert, nil
}

func (e *Evaluator) publishCreated(ctx context.Context, alert *domain.Alert) {
	event := map[string]any{
		"alertId":   alert.ID,
		"companyId": alert.CompanyID,
		"alertType": alert.AlertType,
		"severity":  alert.Severity,
		"title":     alert.Title,
		"createdAt": alert.CreatedAt,
	}
	if err := e.events.Publish(ctx, TopicAlertCreated, alert.CompanyID, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish alert event",
			"alert_id", alert.ID, "error", err)
	}
}

func (e *Evaluator) refreshActiveGauge(ctx context.Context, companyID string) {
	if e.metrics == nil {
		return
	}
	count, err := e.alertRepo.CountActive(ctx, companyID)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to count active alerts",
			"company_id", companyID, "error", err)
		return
	}
	e.metrics.AlertsActive.WithLabelValues(companyID).Set(float64(count))
}
