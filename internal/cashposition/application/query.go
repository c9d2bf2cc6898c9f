// Package application 现金头寸查询服务
package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/wyfcoding/cashflow/internal/cashposition/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/metrics"
)

// BurnWindowDays 跑道测算的默认尾随流出窗口
const BurnWindowDays = 90

// Config 查询服务配置
type Config struct {
	// 跑道测算的尾随流出窗口（天）
	BurnWindowDays int
}

// DefaultConfig 默认查询配置
func DefaultConfig() Config {
	return Config{BurnWindowDays: BurnWindowDays}
}

// QueryService 现金头寸查询服务
type QueryService struct {
	accountRepo domain.AccountRepository
	txRepo      domain.TransactionRepository
	metrics     *metrics.Metrics
	config      Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewQueryService 创建查询服务
func NewQueryService(
	accountRepo domain.AccountRepository,
	txRepo domain.TransactionRepository,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *QueryService {
	if cfg.BurnWindowDays <= 0 {
		cfg.BurnWindowDays = BurnWindowDays
	}
	return &QueryService{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		metrics:     m,
		config:      cfg,
		logger:      logger.With("module", "cashposition"),
		now:         time.Now,
	}
}

// History 重建区间内的余额序列。两次聚合查询（总余额、区间交易）之间的
// 轻微时间偏差是可接受的最终一致，不视为正确性问题。
func (s *QueryService) History(ctx context.Context, companyID string, start, end time.Time, granularity domain.Granularity) ([]domain.BalancePoint, error) {
	if !granularity.Valid() {
		return nil, apperr.Validation("unsupported granularity: %s", granularity).
			WithField("granularity", "must be one of daily, weekly, monthly")
	}
	if end.Before(start) {
		return nil, apperr.Validation("endDate must not precede startDate").
			WithField("endDate", "must be on or after startDate")
	}

	began := s.now()

	presentTotal, err := s.accountRepo.SumActiveBalances(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to sum account balances").WithCause(err)
	}

	txs, err := s.txRepo.ListByRange(ctx, companyID, start, end)
	if err != nil {
		return nil, apperr.Integrity("failed to load transactions").WithCause(err)
	}

	series := domain.Reconstruct(presentTotal, txs, granularity)

	if s.metrics != nil {
		s.metrics.ReconstructionDuration.Observe(s.now().Sub(began).Seconds())
	}
	s.logger.InfoContext(ctx, "balance series reconstructed",
		"company_id", companyID,
		"granularity", string(granularity),
		"points", len(series),
	)

	return series, nil
}

// Runway 计算当前现金跑道
func (s *QueryService) Runway(ctx context.Context, companyID string) (domain.RunwayProjection, error) {
	now := s.now()

	currentBalance, err := s.accountRepo.SumActiveBalances(ctx, companyID)
	if err != nil {
		return domain.RunwayProjection{}, apperr.Integrity("failed to sum account balances").WithCause(err)
	}

	outflow, err := s.txRepo.SumOutflowsSince(ctx, companyID, now.AddDate(0, 0, -s.config.BurnWindowDays))
	if err != nil {
		return domain.RunwayProjection{}, apperr.Integrity("failed to sum outflows").WithCause(err)
	}

	projection := domain.ProjectRunway(now, currentBalance, outflow, s.config.BurnWindowDays)

	s.logger.InfoContext(ctx, "runway projected",
		"company_id", companyID,
		"infinite", projection.IsInfinite,
		"runway_days", projection.RunwayDays,
	)

	return projection, nil
}
