// Package infrastructure 预测运行仓储与 worker 客户端实现
package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/wyfcoding/cashflow/internal/forecast/domain"
	"github.com/wyfcoding/cashflow/pkg/database"
)

const mysqlDuplicateEntry = 1062

// baseRepository 基础仓储，支持从 context 透传事务句柄
type baseRepository struct {
	db *gorm.DB
}

func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	if tx := database.TxFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

// GormRunRepository 预测运行仓储实现
type GormRunRepository struct {
	baseRepository
}

// NewGormRunRepository 创建运行仓储
func NewGormRunRepository(db *gorm.DB) domain.RunRepository {
	return &GormRunRepository{baseRepository{db: db}}
}

// CreateExclusive 插入 pending 运行。(company_id, active) 唯一索引使并发
// 创建恰有一个胜出，冲突翻译为 ErrActiveRunExists。
func (r *GormRunRepository) CreateExclusive(ctx context.Context, run *domain.ForecastRun) error {
	err := r.getDB(ctx).WithContext(ctx).Create(run).Error
	if err == nil {
		return nil
	}
	if isDuplicateKey(err) {
		return domain.ErrActiveRunExists
	}
	return err
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}

// GetByID 按公司范围取运行
func (r *GormRunRepository) GetByID(ctx context.Context, companyID, runID string) (*domain.ForecastRun, error) {
	var run domain.ForecastRun
	err := r.getDB(ctx).WithContext(ctx).
		Where("id = ? AND company_id = ?", runID, companyID).
		First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetActive 取公司当前在途运行
func (r *GormRunRepository) GetActive(ctx context.Context, companyID string) (*domain.ForecastRun, error) {
	var run domain.ForecastRun
	err := r.getDB(ctx).WithContext(ctx).
		Where("company_id = ? AND active = 1", companyID).
		First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// LatestCompleted 取最近一次 completed 运行
func (r *GormRunRepository) LatestCompleted(ctx context.Context, companyID string) (*domain.ForecastRun, error) {
	var run domain.ForecastRun
	err := r.getDB(ctx).WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, domain.RunCompleted).
		Order("completed_at DESC").
		First(&run).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Save 持久化状态迁移。Active 字段需要显式写 NULL，使用 Select 全列保存。
func (r *GormRunRepository) Save(ctx context.Context, run *domain.ForecastRun) error {
	return r.getDB(ctx).WithContext(ctx).
		Model(run).
		Select("status", "active", "model_version", "accuracy_metrics", "processing_time_ms",
			"error_message", "handoff_attempts", "completed_at", "updated_at").
		Updates(run).Error
}

// ListStalePending 取滞留的 pending 运行
func (r *GormRunRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.ForecastRun, error) {
	var runs []domain.ForecastRun
	err := r.getDB(ctx).WithContext(ctx).
		Where("status = ? AND created_at < ?", domain.RunPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// GormForecastRepository 预测值仓储实现
type GormForecastRepository struct {
	baseRepository
}

// NewGormForecastRepository 创建预测值仓储
func NewGormForecastRepository(db *gorm.DB) domain.ForecastRepository {
	return &GormForecastRepository{baseRepository{db: db}}
}

// BatchInsert 批量写入预测行
func (r *GormForecastRepository) BatchInsert(ctx context.Context, forecasts []domain.Forecast) error {
	if len(forecasts) == 0 {
		return nil
	}
	return r.getDB(ctx).WithContext(ctx).CreateInBatches(forecasts, 500).Error
}

// ListByRunScenario 取某次运行某情景的预测
func (r *GormForecastRepository) ListByRunScenario(ctx context.Context, companyID, runID string, scenario domain.Scenario, from, to *time.Time) ([]domain.Forecast, error) {
	query := r.getDB(ctx).WithContext(ctx).
		Where("company_id = ? AND forecast_run_id = ? AND scenario = ?", companyID, runID, scenario)
	if from != nil {
		query = query.Where("forecast_date >= ?", *from)
	}
	if to != nil {
		query = query.Where("forecast_date <= ?", *to)
	}

	var forecasts []domain.Forecast
	if err := query.Order("forecast_date ASC").Find(&forecasts).Error; err != nil {
		return nil, err
	}
	return forecasts, nil
}

// ListByRun 取某次运行的全部预测
func (r *GormForecastRepository) ListByRun(ctx context.Context, companyID, runID string) ([]domain.Forecast, error) {
	var forecasts []domain.Forecast
	err := r.getDB(ctx).WithContext(ctx).
		Where("company_id = ? AND forecast_run_id = ?", companyID, runID).
		Order("forecast_date ASC, scenario ASC").
		Find(&forecasts).Error
	if err != nil {
		return nil, err
	}
	return forecasts, nil
}
