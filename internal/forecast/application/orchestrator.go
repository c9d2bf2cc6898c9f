// Package application 预测运行编排服务
// 1) 创建路径：校验 horizon 与历史长度，唯一约束保证同公司至多一个在途运行
// 2) 交接是 fire-and-forget：失败只记日志，运行保持 pending 等待对账重试
// 3) 展示查询只对最近一次 completed 运行可见
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wyfcoding/cashflow/internal/forecast/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/cache"
	"github.com/wyfcoding/cashflow/pkg/metrics"
	"github.com/wyfcoding/cashflow/pkg/money"
	"github.com/wyfcoding/cashflow/pkg/mq"
)

// Kafka 主题
const (
	TopicRunCreated   = "forecast.run.created"
	TopicRunCompleted = "forecast.run.completed"
)

// Config 编排器配置
type Config struct {
	// 交接 HTTP 超时
	HandoffTimeout time.Duration
	// pending 超过该时长视为滞留
	StaleAfter time.Duration
	// 滞留超过该时长直接标记 failed
	FailAfter time.Duration
	// 对账扫描间隔
	SweepInterval time.Duration
	// 交接重试预算
	MaxHandoffAttempts int
	// 创建运行所需的最少交易历史（天）
	MinHistoryDays int
}

// DefaultConfig 默认编排配置
func DefaultConfig() Config {
	return Config{
		HandoffTimeout:     5 * time.Second,
		StaleAfter:         5 * time.Minute,
		FailAfter:          time.Hour,
		SweepInterval:      time.Minute,
		MaxHandoffAttempts: 5,
		MinHistoryDays:     domain.MinHistoryDays,
	}
}

// TransactionManager 事务边界，生产实现为 database.TransactionManager
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Orchestrator 预测运行编排器
type Orchestrator struct {
	runRepo      domain.RunRepository
	forecastRepo domain.ForecastRepository
	history      domain.HistoryReader
	worker       domain.WorkerClient
	txManager    TransactionManager
	cache        *cache.RedisCache
	events       mq.EventPublisher
	metrics      *metrics.Metrics
	config       Config
	logger       *slog.Logger
	now          func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(
	runRepo domain.RunRepository,
	forecastRepo domain.ForecastRepository,
	history domain.HistoryReader,
	worker domain.WorkerClient,
	txManager TransactionManager,
	redisCache *cache.RedisCache,
	events mq.EventPublisher,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if events == nil {
		events = mq.NoopEventPublisher{}
	}
	if cfg.MinHistoryDays <= 0 {
		cfg.MinHistoryDays = domain.MinHistoryDays
	}
	return &Orchestrator{
		runRepo:      runRepo,
		forecastRepo: forecastRepo,
		history:      history,
		worker:       worker,
		txManager:    txManager,
		cache:        redisCache,
		events:       events,
		metrics:      m,
		config:       cfg,
		logger:       logger.With("module", "forecast"),
		now:          time.Now,
	}
}

// GenerateResult 创建请求的响应：202 语义，生成被接受而非完成
type GenerateResult struct {
	ForecastRunID string `json:"forecastRunId"`
	Status        string `json:"status"`
}

func activeLockKey(companyID string) string {
	return fmt.Sprintf("forecast:active:%s", companyID)
}

// Generate 创建运行并交接给预测 worker
func (o *Orchestrator) Generate(ctx context.Context, companyID string, horizonDays int, trigger domain.TriggerType) (*GenerateResult, error) {
	if horizonDays < domain.MinHorizonDays || horizonDays > domain.MaxHorizonDays {
		return nil, apperr.Validation("horizonDays must be between %d and %d", domain.MinHorizonDays, domain.MaxHorizonDays).
			WithField("horizonDays", fmt.Sprintf("got %d", horizonDays))
	}

	now := o.now()

	earliest, ok, err := o.history.EarliestDate(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to inspect transaction history").WithCause(err)
	}
	if !ok || now.Sub(earliest) < time.Duration(o.config.MinHistoryDays)*24*time.Hour {
		return nil, apperr.Precondition("at least %d days of transaction history are required", o.config.MinHistoryDays)
	}

	// Redis SetNX 快路径：先挡掉大部分并发竞争，权威约束在数据库唯一索引
	if o.cache != nil {
		acquired, lockErr := o.cache.SetNX(ctx, activeLockKey(companyID), "1", 10*time.Second)
		if lockErr == nil {
			if !acquired {
				return nil, o.conflictWithActive(ctx, companyID)
			}
			defer func() { _ = o.cache.Delete(ctx, activeLockKey(companyID)) }()
		}
	}

	run := domain.NewForecastRun(uuid.New().String(), companyID, horizonDays, trigger, now)
	if err := o.runRepo.CreateExclusive(ctx, run); err != nil {
		if errors.Is(err, domain.ErrActiveRunExists) {
			return nil, o.conflictWithActive(ctx, companyID)
		}
		return nil, apperr.Integrity("failed to create forecast run").WithCause(err)
	}

	o.logger.InfoContext(ctx, "forecast run created",
		"company_id", companyID,
		"run_id", run.ID,
		"horizon_days", horizonDays,
		"trigger", string(trigger),
	)

	// 事件发布失败不影响创建结果
	if err := o.events.Publish(ctx, TopicRunCreated, companyID, map[string]any{
		"forecastRunId": run.ID,
		"companyId":     companyID,
		"horizonDays":   horizonDays,
		"triggerType":   trigger,
	}); err != nil {
		o.logger.WarnContext(ctx, "run created event publish failed", "run_id", run.ID, "error", err)
	}

	o.handoff(ctx, run)

	return &GenerateResult{ForecastRunID: run.ID, Status: string(run.Status)}, nil
}

func (o *Orchestrator) conflictWithActive(ctx context.Context, companyID string) error {
	conflict := apperr.Conflict("a forecast run is already in progress for this company")
	if active, err := o.runRepo.GetActive(ctx, companyID); err == nil && active != nil {
		conflict = conflict.WithField("forecastRunId", active.ID)
	}
	return conflict
}

// handoff 同步通知 worker，带超时。失败只记录：运行保持 pending，
// 由对账扫描重试，永远不会在未确认交接的情况下进入 running。
func (o *Orchestrator) handoff(ctx context.Context, run *domain.ForecastRun) {
	handoffCtx, cancel := context.WithTimeout(ctx, o.config.HandoffTimeout)
	defer cancel()

	run.HandoffAttempts++

	err := o.worker.RequestForecast(handoffCtx, domain.HandoffRequest{
		ForecastRunID: run.ID,
		CompanyID:     run.CompanyID,
		HorizonDays:   run.ForecastHorizonDays,
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.HandoffFailuresTotal.Inc()
		}
		o.logger.WarnContext(ctx, "worker handoff failed, run stays pending",
			"run_id", run.ID,
			"attempt", run.HandoffAttempts,
			"error", err,
		)
		if saveErr := o.runRepo.Save(ctx, run); saveErr != nil {
			o.logger.ErrorContext(ctx, "failed to record handoff attempt", "run_id", run.ID, "error", saveErr)
		}
		return
	}

	if err := run.Start(); err != nil {
		o.logger.ErrorContext(ctx, "unexpected state on handoff ack", "run_id", run.ID, "error", err)
		return
	}
	if err := o.runRepo.Save(ctx, run); err != nil {
		o.logger.ErrorContext(ctx, "failed to persist running transition", "run_id", run.ID, "error", err)
	}
}

// ForecastPoint 完成回写中的单日单情景预测
type ForecastPoint struct {
	Date             time.Time
	Scenario         domain.Scenario
	PredictedBalance money.Amount
	PredictedInflow  money.Amount
	PredictedOutflow money.Amount
	ConfidenceLower  money.Amount
	ConfidenceUpper  money.Amount
	ConfidenceLevel  float64
}

// CompletionResult worker 的完成回写载荷
type CompletionResult struct {
	Succeeded        bool
	ErrorMessage     string
	ModelVersion     string
	ProcessingTimeMs int64
	AccuracyMetrics  *domain.AccuracyMetrics
	Points           []ForecastPoint
}

// Complete 事务化落库 worker 的输出：预测行与终态在同一事务内写入
func (o *Orchestrator) Complete(ctx context.Context, companyID, runID string, result CompletionResult) error {
	for _, p := range result.Points {
		if !p.Scenario.Valid() {
			return apperr.Validation("unknown scenario: %s", p.Scenario)
		}
	}

	now := o.now()

	err := o.txManager.Transaction(ctx, func(txCtx context.Context) error {
		run, err := o.runRepo.GetByID(txCtx, companyID, runID)
		if err != nil {
			return apperr.Integrity("failed to load forecast run").WithCause(err)
		}
		if run == nil {
			return apperr.NotFound("forecast run not found")
		}

		if !result.Succeeded {
			if err := run.Fail(result.ErrorMessage, now); err != nil {
				return err
			}
			return o.runRepo.Save(txCtx, run)
		}

		if err := run.Complete(result.AccuracyMetrics, result.ProcessingTimeMs, result.ModelVersion, now); err != nil {
			return err
		}

		rows := make([]domain.Forecast, 0, len(result.Points))
		for _, p := range result.Points {
			rows = append(rows, domain.Forecast{
				ID:               uuid.New().String(),
				CompanyID:        companyID,
				ForecastRunID:    run.ID,
				ForecastDate:     p.Date,
				Scenario:         p.Scenario,
				PredictedBalance: p.PredictedBalance,
				PredictedInflow:  p.PredictedInflow,
				PredictedOutflow: p.PredictedOutflow,
				ConfidenceLower:  p.ConfidenceLower,
				ConfidenceUpper:  p.ConfidenceUpper,
				ConfidenceLevel:  p.ConfidenceLevel,
			})
		}
		if err := o.forecastRepo.BatchInsert(txCtx, rows); err != nil {
			return apperr.Integrity("failed to insert forecasts").WithCause(err)
		}
		return o.runRepo.Save(txCtx, run)
	})
	if err != nil {
		return err
	}

	status := domain.RunCompleted
	if !result.Succeeded {
		status = domain.RunFailed
	}
	if o.metrics != nil {
		o.metrics.ForecastRunsTotal.WithLabelValues(string(status)).Inc()
	}
	o.logger.InfoContext(ctx, "forecast run finalized",
		"run_id", runID,
		"status", string(status),
		"points", len(result.Points),
	)

	if err := o.events.Publish(ctx, TopicRunCompleted, companyID, map[string]any{
		"forecastRunId": runID,
		"companyId":     companyID,
		"status":        status,
	}); err != nil {
		o.logger.WarnContext(ctx, "run completed event publish failed", "run_id", runID, "error", err)
	}

	return nil
}

// Latest 最近一次 completed 运行中指定情景的预测。
// pending/running/failed 运行对展示查询不可见。
func (o *Orchestrator) Latest(ctx context.Context, companyID string, scenario domain.Scenario, from, to *time.Time) ([]domain.Forecast, error) {
	if !scenario.Valid() {
		return nil, apperr.Validation("unknown scenario: %s", scenario).
			WithField("scenario", "must be one of pessimistic, baseline, optimistic")
	}

	run, err := o.runRepo.LatestCompleted(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load latest completed run").WithCause(err)
	}
	if run == nil {
		return []domain.Forecast{}, nil
	}

	forecasts, err := o.forecastRepo.ListByRunScenario(ctx, companyID, run.ID, scenario, from, to)
	if err != nil {
		return nil, apperr.Integrity("failed to load forecasts").WithCause(err)
	}
	return forecasts, nil
}

// ScenarioComparison 日期 → 情景 → 预测余额
type ScenarioComparison map[string]map[domain.Scenario]money.Amount

// Compare 聚合最近一次 completed 运行的全部情景
func (o *Orchestrator) Compare(ctx context.Context, companyID string) (ScenarioComparison, error) {
	run, err := o.runRepo.LatestCompleted(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load latest completed run").WithCause(err)
	}
	if run == nil {
		return ScenarioComparison{}, nil
	}

	forecasts, err := o.forecastRepo.ListByRun(ctx, companyID, run.ID)
	if err != nil {
		return nil, apperr.Integrity("failed to load forecasts").WithCause(err)
	}

	comparison := make(ScenarioComparison)
	for _, f := range forecasts {
		key := f.ForecastDate.Format("2006-01-02")
		if comparison[key] == nil {
			comparison[key] = make(map[domain.Scenario]money.Amount)
		}
		comparison[key][f.Scenario] = f.PredictedBalance
	}
	return comparison, nil
}

// Sweep 对账扫描：重试滞留的 pending 运行，超出预算的标记 failed
func (o *Orchestrator) Sweep(ctx context.Context) {
	now := o.now()

	stale, err := o.runRepo.ListStalePending(ctx, now.Add(-o.config.StaleAfter), 50)
	if err != nil {
		o.logger.ErrorContext(ctx, "stale run sweep failed", "error", err)
		return
	}

	for i := range stale {
		run := &stale[i]
		exhausted := run.HandoffAttempts >= o.config.MaxHandoffAttempts ||
			now.Sub(run.CreatedAt) > o.config.FailAfter
		if exhausted {
			if err := run.Fail("handoff retry budget exhausted", now); err != nil {
				continue
			}
			if err := o.runRepo.Save(ctx, run); err != nil {
				o.logger.ErrorContext(ctx, "failed to fail stale run", "run_id", run.ID, "error", err)
				continue
			}
			if o.metrics != nil {
				o.metrics.ForecastRunsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
			}
			o.logger.WarnContext(ctx, "stale forecast run marked failed", "run_id", run.ID, "attempts", run.HandoffAttempts)
			continue
		}

		o.logger.InfoContext(ctx, "retrying handoff for stale run", "run_id", run.ID, "attempt", run.HandoffAttempts+1)
		o.handoff(ctx, run)
	}
}

// RunSweeper 周期执行对账扫描，ctx 取消时退出
func (o *Orchestrator) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(o.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			o.Sweep(ctx)
		}
	}
}
