// Package domain 预测运行领域模型
// 1) ForecastRun 状态机：pending → running → {completed, failed}，终态不可变
// 2) Forecast 行 write-once，由外部预测 worker 产出、经本模块事务化落库
// 3) (company_id, active) 唯一索引保证同一公司至多一个在途运行
package domain

import (
	"time"

	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/money"
)

// RunStatus 预测运行状态
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// TriggerType 触发方式
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
)

// Scenario 预测情景
type Scenario string

const (
	ScenarioPessimistic Scenario = "pessimistic"
	ScenarioBaseline    Scenario = "baseline"
	ScenarioOptimistic  Scenario = "optimistic"
)

// Valid 判断情景是否合法
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioPessimistic, ScenarioBaseline, ScenarioOptimistic:
		return true
	}
	return false
}

// Horizon 边界
const (
	MinHorizonDays = 7
	MaxHorizonDays = 365
	// DataRangeDays 运行输入的数据回溯窗口
	DataRangeDays = 365
	// MinHistoryDays 创建运行所需的最少交易历史
	MinHistoryDays = 90
)

// AccuracyMetrics worker 在基线情景上回测得到的精度指标
type AccuracyMetrics struct {
	MAPE *float64 `json:"mape"`
	RMSE *float64 `json:"rmse"`
	MAE  *float64 `json:"mae"`
}

// ForecastRun 一次预测管线的执行记录
type ForecastRun struct {
	ID          string      `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID   string      `gorm:"column:company_id;type:char(36);not null;uniqueIndex:uk_company_active"`
	Status      RunStatus   `gorm:"column:status;type:varchar(16);not null;index"`
	TriggerType TriggerType `gorm:"column:trigger_type;type:varchar(16);not null"`
	// Active 在 pending/running 时为 1，进入终态置 NULL。
	// 与 company_id 的联合唯一索引即创建路径的 compare-and-swap。
	Active              *uint8           `gorm:"column:active;uniqueIndex:uk_company_active"`
	ModelVersion        string           `gorm:"column:model_version;type:varchar(32)"`
	ForecastHorizonDays int              `gorm:"column:forecast_horizon_days;not null"`
	DataRangeStart      time.Time        `gorm:"column:data_range_start;not null"`
	DataRangeEnd        time.Time        `gorm:"column:data_range_end;not null"`
	AccuracyMetrics     *AccuracyMetrics `gorm:"column:accuracy_metrics;serializer:json"`
	ProcessingTimeMs    *int64           `gorm:"column:processing_time_ms"`
	ErrorMessage        string           `gorm:"column:error_message;type:varchar(1024)"`
	HandoffAttempts     int              `gorm:"column:handoff_attempts;not null;default:0"`
	CreatedAt           time.Time        `gorm:"column:created_at"`
	UpdatedAt           time.Time        `gorm:"column:updated_at"`
	CompletedAt         *time.Time       `gorm:"column:completed_at"`
}

// TableName 指定表名
func (ForecastRun) TableName() string { return "forecast_runs" }

// NewForecastRun 创建 pending 运行
func NewForecastRun(id, companyID string, horizonDays int, trigger TriggerType, now time.Time) *ForecastRun {
	active := uint8(1)
	return &ForecastRun{
		ID:                  id,
		CompanyID:           companyID,
		Status:              RunPending,
		TriggerType:         trigger,
		Active:              &active,
		ForecastHorizonDays: horizonDays,
		DataRangeStart:      now.AddDate(0, 0, -DataRangeDays),
		DataRangeEnd:        now,
	}
}

// IsTerminal 是否已到终态
func (r *ForecastRun) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}

// Start 确认交接后进入 running
func (r *ForecastRun) Start() error {
	if r.Status != RunPending {
		return apperr.Conflict("forecast run %s is %s, cannot start", r.ID, r.Status)
	}
	r.Status = RunRunning
	return nil
}

// Complete 标记运行完成。只允许从 pending/running 迁移。
func (r *ForecastRun) Complete(metrics *AccuracyMetrics, processingTimeMs int64, modelVersion string, now time.Time) error {
	if r.IsTerminal() {
		return apperr.Conflict("forecast run %s is already %s", r.ID, r.Status)
	}
	r.Status = RunCompleted
	r.Active = nil
	r.AccuracyMetrics = metrics
	r.ProcessingTimeMs = &processingTimeMs
	r.ModelVersion = modelVersion
	r.CompletedAt = &now
	return nil
}

// Fail 标记运行失败
func (r *ForecastRun) Fail(reason string, now time.Time) error {
	if r.IsTerminal() {
		return apperr.Conflict("forecast run %s is already %s", r.ID, r.Status)
	}
	r.Status = RunFailed
	r.Active = nil
	r.ErrorMessage = reason
	r.CompletedAt = &now
	return nil
}

// Forecast 单日单情景的预测值，插入后不再更新
type Forecast struct {
	ID               string       `gorm:"column:id;primaryKey;type:char(36)"`
	CompanyID        string       `gorm:"column:company_id;index;type:char(36);not null"`
	ForecastRunID    string       `gorm:"column:forecast_run_id;index;type:char(36);not null"`
	ForecastDate     time.Time    `gorm:"column:forecast_date;not null"`
	Scenario         Scenario     `gorm:"column:scenario;type:varchar(16);not null"`
	PredictedBalance money.Amount `gorm:"column:predicted_balance;not null"`
	PredictedInflow  money.Amount `gorm:"column:predicted_inflow;not null"`
	PredictedOutflow money.Amount `gorm:"column:predicted_outflow;not null"`
	ConfidenceLower  money.Amount `gorm:"column:confidence_lower;not null"`
	ConfidenceUpper  money.Amount `gorm:"column:confidence_upper;not null"`
	ConfidenceLevel  float64      `gorm:"column:confidence_level;not null"`
	CreatedAt        time.Time    `gorm:"column:created_at"`
}

// TableName 指定表名
func (Forecast) TableName() string { return "forecasts" }
