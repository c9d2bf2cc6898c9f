package application

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/cashflow/internal/forecast/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
)

type fakeRunRepo struct {
	createErr error
	created   []*domain.ForecastRun
	saved     []*domain.ForecastRun
	active    *domain.ForecastRun
	latest    *domain.ForecastRun
	byID      *domain.ForecastRun
	stale     []domain.ForecastRun
}

func (f *fakeRunRepo) CreateExclusive(_ context.Context, run *domain.ForecastRun) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunRepo) GetByID(_ context.Context, companyID, runID string) (*domain.ForecastRun, error) {
	if f.byID == nil || f.byID.ID != runID || f.byID.CompanyID != companyID {
		return nil, nil
	}
	return f.byID, nil
}

func (f *fakeRunRepo) GetActive(_ context.Context, _ string) (*domain.ForecastRun, error) {
	return f.active, nil
}

func (f *fakeRunRepo) LatestCompleted(_ context.Context, _ string) (*domain.ForecastRun, error) {
	return f.latest, nil
}

func (f *fakeRunRepo) Save(_ context.Context, run *domain.ForecastRun) error {
	copied := *run
	f.saved = append(f.saved, &copied)
	return nil
}

func (f *fakeRunRepo) ListStalePending(_ context.Context, _ time.Time, _ int) ([]domain.ForecastRun, error) {
	return f.stale, nil
}

type fakeForecastRepo struct {
	byScenario []domain.Forecast
	byRun      []domain.Forecast
	inserted   []domain.Forecast
}

func (f *fakeForecastRepo) BatchInsert(_ context.Context, rows []domain.Forecast) error {
	f.inserted = append(f.inserted, rows...)
	return nil
}

func (f *fakeForecastRepo) ListByRunScenario(_ context.Context, _, _ string, _ domain.Scenario, _, _ *time.Time) ([]domain.Forecast, error) {
	return f.byScenario, nil
}

func (f *fakeForecastRepo) ListByRun(_ context.Context, _, _ string) ([]domain.Forecast, error) {
	return f.byRun, nil
}

type fakeHistory struct {
	earliest time.Time
	hasData  bool
}

func (f *fakeHistory) EarliestDate(_ context.Context, _ string) (time.Time, bool, error) {
	return f.earliest, f.hasData, nil
}

type fakeWorker struct {
	err      error
	requests []domain.HandoffRequest
}

func (f *fakeWorker) RequestForecast(_ context.Context, req domain.HandoffRequest) error {
	f.requests = append(f.requests, req)
	return f.err
}

// passthroughTx 不开真事务，直接回调
type passthroughTx struct{}

func (passthroughTx) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func longHistory() *fakeHistory {
	return &fakeHistory{earliest: time.Now().AddDate(-1, 0, 0), hasData: true}
}

func newOrchestrator(runs *fakeRunRepo, forecasts *fakeForecastRepo, history *fakeHistory, worker *fakeWorker) *Orchestrator {
	return NewOrchestrator(runs, forecasts, history, worker, passthroughTx{}, nil, nil, nil, DefaultConfig(), slog.Default())
}

func TestGenerateRejectsHorizonOutOfRange(t *testing.T) {
	o := newOrchestrator(&fakeRunRepo{}, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	for _, horizon := range []int{0, 6, 366, -10} {
		_, err := o.Generate(context.Background(), "co-1", horizon, domain.TriggerManual)
		require.Error(t, err, "horizon %d", horizon)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	}
}

func TestGenerateAcceptsHorizonBoundaries(t *testing.T) {
	for _, horizon := range []int{domain.MinHorizonDays, domain.MaxHorizonDays} {
		runs := &fakeRunRepo{}
		o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

		result, err := o.Generate(context.Background(), "co-1", horizon, domain.TriggerManual)
		require.NoError(t, err)
		assert.NotEmpty(t, result.ForecastRunID)
		require.Len(t, runs.created, 1)
	}
}

func TestGenerateRequiresHistory(t *testing.T) {
	tests := []struct {
		name    string
		history *fakeHistory
	}{
		{"no transactions at all", &fakeHistory{}},
		{"under ninety days", &fakeHistory{earliest: time.Now().AddDate(0, 0, -30), hasData: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &fakeRunRepo{}
			o := newOrchestrator(runs, &fakeForecastRepo{}, tt.history, &fakeWorker{})

			_, err := o.Generate(context.Background(), "co-1", 90, domain.TriggerManual)
			require.Error(t, err)
			assert.True(t, apperr.IsKind(err, apperr.KindPrecondition))
			// 前置失败不留任何持久化痕迹
			assert.Empty(t, runs.created)
			assert.Empty(t, runs.saved)
		})
	}
}

func TestGenerateConflictOnActiveRun(t *testing.T) {
	existing := domain.NewForecastRun("run-active", "co-1", 90, domain.TriggerManual, time.Now())
	runs := &fakeRunRepo{createErr: domain.ErrActiveRunExists, active: existing}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	_, err := o.Generate(context.Background(), "co-1", 90, domain.TriggerManual)

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "run-active", appErr.Fields["forecastRunId"])
}

func TestGenerateHandoffSuccessStartsRun(t *testing.T) {
	runs := &fakeRunRepo{}
	worker := &fakeWorker{}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), worker)

	result, err := o.Generate(context.Background(), "co-1", 90, domain.TriggerManual)

	require.NoError(t, err)
	assert.Equal(t, string(domain.RunRunning), result.Status)
	require.Len(t, worker.requests, 1)
	assert.Equal(t, result.ForecastRunID, worker.requests[0].ForecastRunID)
	assert.Equal(t, 90, worker.requests[0].HorizonDays)

	require.NotEmpty(t, runs.saved)
	assert.Equal(t, domain.RunRunning, runs.saved[len(runs.saved)-1].Status)
}

func TestGenerateHandoffFailureLeavesPending(t *testing.T) {
	runs := &fakeRunRepo{}
	worker := &fakeWorker{err: errors.New("connection refused")}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), worker)

	result, err := o.Generate(context.Background(), "co-1", 90, domain.TriggerManual)

	// 交接失败不是请求失败：运行已创建，保持 pending 等待对账
	require.NoError(t, err)
	assert.Equal(t, string(domain.RunPending), result.Status)

	require.Len(t, runs.saved, 1)
	assert.Equal(t, domain.RunPending, runs.saved[0].Status)
	assert.Equal(t, 1, runs.saved[0].HandoffAttempts)
}

func TestGenerateHonorsConfiguredMinHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistoryDays = 30
	history := &fakeHistory{earliest: time.Now().AddDate(0, 0, -45), hasData: true}
	runs := &fakeRunRepo{}
	o := NewOrchestrator(runs, &fakeForecastRepo{}, history, &fakeWorker{},
		passthroughTx{}, nil, nil, nil, cfg, slog.Default())

	// 默认 90 天门槛会拒绝 45 天历史，调低后放行
	_, err := o.Generate(context.Background(), "co-1", 90, domain.TriggerManual)
	require.NoError(t, err)
	require.Len(t, runs.created, 1)
}

func TestCompleteFinalizesRunAndInsertsForecasts(t *testing.T) {
	run := domain.NewForecastRun("run-1", "co-1", 90, domain.TriggerManual, time.Now())
	require.NoError(t, run.Start())
	runs := &fakeRunRepo{byID: run}
	forecasts := &fakeForecastRepo{}
	o := newOrchestrator(runs, forecasts, longHistory(), &fakeWorker{})

	mape := 4.2
	date := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	err := o.Complete(context.Background(), "co-1", "run-1", CompletionResult{
		Succeeded:        true,
		ModelVersion:     "prophet-1.2",
		ProcessingTimeMs: 1800,
		AccuracyMetrics:  &domain.AccuracyMetrics{MAPE: &mape},
		Points: []ForecastPoint{
			{Date: date, Scenario: domain.ScenarioBaseline, PredictedBalance: 42000, ConfidenceLevel: 0.8},
			{Date: date.AddDate(0, 0, 1), Scenario: domain.ScenarioBaseline, PredictedBalance: 41000, ConfidenceLevel: 0.8},
		},
	})

	require.NoError(t, err)
	require.NotEmpty(t, runs.saved)
	final := runs.saved[len(runs.saved)-1]
	assert.Equal(t, domain.RunCompleted, final.Status)
	assert.Nil(t, final.Active)
	assert.Equal(t, "prophet-1.2", final.ModelVersion)
	require.NotNil(t, final.AccuracyMetrics)

	require.Len(t, forecasts.inserted, 2)
	for _, row := range forecasts.inserted {
		assert.Equal(t, "co-1", row.CompanyID)
		assert.Equal(t, "run-1", row.ForecastRunID)
		assert.NotEmpty(t, row.ID)
	}
}

func TestCompleteFailureMarksRunFailed(t *testing.T) {
	run := domain.NewForecastRun("run-1", "co-1", 90, domain.TriggerManual, time.Now())
	runs := &fakeRunRepo{byID: run}
	forecasts := &fakeForecastRepo{}
	o := newOrchestrator(runs, forecasts, longHistory(), &fakeWorker{})

	err := o.Complete(context.Background(), "co-1", "run-1", CompletionResult{
		Succeeded:    false,
		ErrorMessage: "model diverged",
	})

	require.NoError(t, err)
	require.Len(t, runs.saved, 1)
	assert.Equal(t, domain.RunFailed, runs.saved[0].Status)
	assert.Equal(t, "model diverged", runs.saved[0].ErrorMessage)
	assert.Nil(t, runs.saved[0].Active)
	assert.Empty(t, forecasts.inserted)
}

func TestCompleteRejectsUnknownScenario(t *testing.T) {
	run := domain.NewForecastRun("run-1", "co-1", 90, domain.TriggerManual, time.Now())
	runs := &fakeRunRepo{byID: run}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	err := o.Complete(context.Background(), "co-1", "run-1", CompletionResult{
		Succeeded: true,
		Points:    []ForecastPoint{{Scenario: domain.Scenario("expected")}},
	})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Empty(t, runs.saved)
}

func TestCompleteUnknownRunNotFound(t *testing.T) {
	o := newOrchestrator(&fakeRunRepo{}, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	err := o.Complete(context.Background(), "co-1", "no-such-run", CompletionResult{Succeeded: true})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestCompleteConflictOnTerminalRun(t *testing.T) {
	run := domain.NewForecastRun("run-1", "co-1", 90, domain.TriggerManual, time.Now())
	require.NoError(t, run.Fail("handoff retry budget exhausted", time.Now()))
	runs := &fakeRunRepo{byID: run}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	err := o.Complete(context.Background(), "co-1", "run-1", CompletionResult{Succeeded: true})

	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	assert.Empty(t, runs.saved)
}

func TestLatestRejectsUnknownScenario(t *testing.T) {
	o := newOrchestrator(&fakeRunRepo{}, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	_, err := o.Latest(context.Background(), "co-1", domain.Scenario("expected"), nil, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestLatestEmptyWithoutCompletedRun(t *testing.T) {
	o := newOrchestrator(&fakeRunRepo{}, &fakeForecastRepo{}, longHistory(), &fakeWorker{})

	forecasts, err := o.Latest(context.Background(), "co-1", domain.ScenarioBaseline, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, forecasts)
}

func TestLatestScopedToRunScenario(t *testing.T) {
	completed := domain.NewForecastRun("run-done", "co-1", 90, domain.TriggerManual, time.Now())
	runs := &fakeRunRepo{latest: completed}
	forecasts := &fakeForecastRepo{byScenario: []domain.Forecast{
		{ID: "f1", ForecastRunID: "run-done", Scenario: domain.ScenarioBaseline},
	}}
	o := newOrchestrator(runs, forecasts, longHistory(), &fakeWorker{})

	out, err := o.Latest(context.Background(), "co-1", domain.ScenarioBaseline, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "run-done", out[0].ForecastRunID)
}

func TestCompareGroupsByDateAndScenario(t *testing.T) {
	completed := domain.NewForecastRun("run-done", "co-1", 90, domain.TriggerManual, time.Now())
	date := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	forecasts := &fakeForecastRepo{byRun: []domain.Forecast{
		{ForecastDate: date, Scenario: domain.ScenarioPessimistic, PredictedBalance: 100},
		{ForecastDate: date, Scenario: domain.ScenarioBaseline, PredictedBalance: 200},
		{ForecastDate: date, Scenario: domain.ScenarioOptimistic, PredictedBalance: 300},
	}}
	o := newOrchestrator(&fakeRunRepo{latest: completed}, forecasts, longHistory(), &fakeWorker{})

	comparison, err := o.Compare(context.Background(), "co-1")
	require.NoError(t, err)
	require.Contains(t, comparison, "2026-07-01")
	assert.Len(t, comparison["2026-07-01"], 3)
}

func TestSweepRetriesStalePending(t *testing.T) {
	stale := domain.NewForecastRun("run-stale", "co-1", 90, domain.TriggerManual, time.Now().Add(-10*time.Minute))
	stale.CreatedAt = time.Now().Add(-10 * time.Minute)
	runs := &fakeRunRepo{stale: []domain.ForecastRun{*stale}}
	worker := &fakeWorker{}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), worker)

	o.Sweep(context.Background())

	require.Len(t, worker.requests, 1)
	assert.Equal(t, "run-stale", worker.requests[0].ForecastRunID)
	require.NotEmpty(t, runs.saved)
	assert.Equal(t, domain.RunRunning, runs.saved[len(runs.saved)-1].Status)
}

func TestSweepFailsRunAfterBudgetExhausted(t *testing.T) {
	stale := domain.NewForecastRun("run-stale", "co-1", 90, domain.TriggerManual, time.Now())
	stale.CreatedAt = time.Now().Add(-10 * time.Minute)
	stale.HandoffAttempts = DefaultConfig().MaxHandoffAttempts
	runs := &fakeRunRepo{stale: []domain.ForecastRun{*stale}}
	worker := &fakeWorker{}
	o := newOrchestrator(runs, &fakeForecastRepo{}, longHistory(), worker)

	o.Sweep(context.Background())

	assert.Empty(t, worker.requests)
	require.Len(t, runs.saved, 1)
	assert.Equal(t, domain.RunFailed, runs.saved[0].Status)
	assert.Nil(t, runs.saved[0].Active)
}
