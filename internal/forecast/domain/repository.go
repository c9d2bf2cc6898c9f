package domain

import (
	"context"
	"errors"
	"time"
)

// ErrActiveRunExists 同一公司已有在途运行。仓储在唯一键冲突时返回此错误。
var ErrActiveRunExists = errors.New("an active forecast run already exists for this company")

// RunRepository 预测运行仓储
type RunRepository interface {
	// CreateExclusive 插入 pending 运行。同公司已有 active 运行时返回
	// ErrActiveRunExists；竞争下恰有一个请求胜出由存储层唯一约束保证。
	CreateExclusive(ctx context.Context, run *ForecastRun) error
	// GetByID 按公司范围取运行，跨公司不可见
	GetByID(ctx context.Context, companyID, runID string) (*ForecastRun, error)
	// GetActive 取公司当前在途运行，无则返回 nil
	GetActive(ctx context.Context, companyID string) (*ForecastRun, error)
	// LatestCompleted 取公司最近一次 completed 运行，无则返回 nil
	LatestCompleted(ctx context.Context, companyID string) (*ForecastRun, error)
	// Save 持久化运行的状态迁移
	Save(ctx context.Context, run *ForecastRun) error
	// ListStalePending 取创建时间早于 olderThan 的 pending 运行，供对账扫描
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]ForecastRun, error)
}

// ForecastRepository 预测值仓储
type ForecastRepository interface {
	// BatchInsert 批量写入某次运行的预测行
	BatchInsert(ctx context.Context, forecasts []Forecast) error
	// ListByRunScenario 取某次运行某情景的预测，按日期升序；日期区间可选
	ListByRunScenario(ctx context.Context, companyID, runID string, scenario Scenario, from, to *time.Time) ([]Forecast, error)
	// ListByRun 取某次运行的全部预测
	ListByRun(ctx context.Context, companyID, runID string) ([]Forecast, error)
}

// HistoryReader 交易历史读取口，用于创建前置校验
type HistoryReader interface {
	// EarliestDate 取公司最早一笔交易的日期，无交易时 ok 为 false
	EarliestDate(ctx context.Context, companyID string) (time.Time, bool, error)
}

// HandoffRequest 外发给预测 worker 的交接载荷
type HandoffRequest struct {
	ForecastRunID string `json:"forecastRunId"`
	CompanyID     string `json:"companyId"`
	HorizonDays   int    `json:"horizonDays"`
}

// WorkerClient 外部预测 worker 客户端
type WorkerClient interface {
	// RequestForecast 通知 worker 开始生成。调用方不等待生成完成。
	RequestForecast(ctx context.Context, req HandoffRequest) error
}
