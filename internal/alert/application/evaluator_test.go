package application

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/cashflow/internal/alert/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/metrics"
	"github.com/wyfcoding/cashflow/pkg/money"
)

type fakeAlertRepo struct {
	alerts map[string]*domain.Alert
}

func newFakeAlertRepo() *fakeAlertRepo {
	return &fakeAlertRepo{alerts: make(map[string]*domain.Alert)}
}

func (f *fakeAlertRepo) Create(_ context.Context, alert *domain.Alert) error {
	copied := *alert
	f.alerts[alert.ID] = &copied
	return nil
}

func (f *fakeAlertRepo) GetByID(_ context.Context, companyID, alertID string) (*domain.Alert, error) {
	a, ok := f.alerts[alertID]
	if !ok || a.CompanyID != companyID {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAlertRepo) HasActiveRule(_ context.Context, companyID string, rule domain.RuleType) (bool, error) {
	for _, a := range f.alerts {
		if a.CompanyID == companyID && a.RuleType == rule && a.Status == domain.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAlertRepo) ListByCompany(_ context.Context, companyID string, status *domain.Status, _ int) ([]domain.Alert, error) {
	var out []domain.Alert
	for _, a := range f.alerts {
		if a.CompanyID != companyID {
			continue
		}
		if status != nil && a.Status != *status {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeAlertRepo) Update(_ context.Context, alert *domain.Alert) error {
	copied := *alert
	f.alerts[alert.ID] = &copied
	return nil
}

func (f *fakeAlertRepo) CountActive(_ context.Context, companyID string) (int64, error) {
	var n int64
	for _, a := range f.alerts {
		if a.CompanyID == companyID && a.Status == domain.StatusActive {
			n++
		}
	}
	return n, nil
}

type fakeMetricReader struct{ snapshot *domain.MetricSnapshot }

func (f *fakeMetricReader) LatestSnapshot(_ context.Context, _ string) (*domain.MetricSnapshot, error) {
	return f.snapshot, nil
}

type fakeInvoiceReader struct {
	count  int64
	amount money.Amount
}

func (f *fakeInvoiceReader) OverdueReceivables(_ context.Context, _ string) (int64, money.Amount, error) {
	return f.count, f.amount, nil
}

type fakeBalanceReader struct{ balance money.Amount }

func (f *fakeBalanceReader) SumActiveBalances(_ context.Context, _ string) (money.Amount, error) {
	return f.balance, nil
}

type fakeForecastReader struct{ shortfall *domain.Shortfall }

func (f *fakeForecastReader) FirstShortfall(_ context.Context, _ string, _ money.Amount) (*domain.Shortfall, error) {
	return f.shortfall, nil
}

func highDSOSnapshot() *domain.MetricSnapshot {
	dso := decimal.RequireFromString("70.0")
	return &domain.MetricSnapshot{DSO: &dso, ARBalance: money.Amount(500000)}
}

func newTestEvaluator(repo *fakeAlertRepo, metric *fakeMetricReader, invoice *fakeInvoiceReader, forecast *fakeForecastReader) *Evaluator {
	return NewEvaluator(repo, metric, invoice,
		&fakeBalanceReader{balance: money.Amount(100000)}, forecast,
		nil, metrics.New("test"), slog.Default())
}

func TestEvaluateCreatesAlertsForViolations(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{count: 2, amount: money.Amount(80000)}, &fakeForecastReader{})

	created, err := e.Evaluate(context.Background(), "co-1")

	require.NoError(t, err)
	require.Len(t, created, 2)
	for _, a := range created {
		assert.Equal(t, domain.StatusActive, a.Status)
		assert.Equal(t, "co-1", a.CompanyID)
		assert.NotEmpty(t, a.ID)
	}
}

func TestEvaluateDoesNotDuplicateActiveAlerts(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeForecastReader{})

	first, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// 同规则仍然违例，但已有 active 告警，不再新建
	second, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestEvaluateRecreatesAfterResolution(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeForecastReader{})

	first, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = e.Resolve(context.Background(), "co-1", first[0].ID)
	require.NoError(t, err)

	// 解决后规则再次违例可以重新告警
	again, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	assert.Len(t, again, 1)
}

func TestRecommendationsDoNotPersist(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeForecastReader{})

	recs, err := e.Recommendations(context.Background(), "co-1")

	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.RuleDSOHigh, recs[0].RuleType)
	assert.Empty(t, repo.alerts)
}

func TestEvaluateIncludesForecastShortage(t *testing.T) {
	repo := newFakeAlertRepo()
	shortfall := &domain.Shortfall{
		Date:    time.Date(2026, 9, 20, 0, 0, 0, 0, time.UTC),
		Balance: money.Amount(12000),
	}
	e := newTestEvaluator(repo, &fakeMetricReader{}, &fakeInvoiceReader{},
		&fakeForecastReader{shortfall: shortfall})

	created, err := e.Evaluate(context.Background(), "co-1")

	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, domain.AlertCashShortage, created[0].AlertType)
	require.NotNil(t, created[0].PredictedDate)
	assert.Equal(t, shortfall.Date, *created[0].PredictedDate)
}

func TestEvaluateWithoutMetricsRegistry(t *testing.T) {
	repo := newFakeAlertRepo()
	e := NewEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeBalanceReader{balance: money.Amount(100000)},
		&fakeForecastReader{}, nil, nil, slog.Default())

	created, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	require.Len(t, created, 1)

	_, err = e.Acknowledge(context.Background(), "co-1", created[0].ID)
	require.NoError(t, err)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeForecastReader{})

	created, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)
	alertID := created[0].ID

	acked, err := e.Acknowledge(context.Background(), "co-1", alertID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAcknowledged, acked.Status)

	resolved, err := e.Resolve(context.Background(), "co-1", alertID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusResolved, resolved.Status)

	// 终态后再迁移是冲突
	_, err = e.Dismiss(context.Background(), "co-1", alertID)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
}

func TestTransitionsAreCompanyScoped(t *testing.T) {
	repo := newFakeAlertRepo()
	e := newTestEvaluator(repo, &fakeMetricReader{snapshot: highDSOSnapshot()},
		&fakeInvoiceReader{}, &fakeForecastReader{})

	created, err := e.Evaluate(context.Background(), "co-1")
	require.NoError(t, err)

	// 他公司访问与不存在同样是 404，不泄露存在性
	_, err = e.Acknowledge(context.Background(), "co-2", created[0].ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	_, err = e.Acknowledge(context.Background(), "co-1", "no-such-alert")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
