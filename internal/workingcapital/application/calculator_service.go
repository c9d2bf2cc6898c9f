// Package application 营运资金指标服务
// 1) 按金额加权计算 DSO/DPO，CCC = DSO − DPO
// 2) 每次计算向 working_capital_metrics 落一行（同日覆盖）
// 3) 最近指标走 Redis 短缓存，miss 回源数据库
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/cashflow/internal/workingcapital/domain"
	"github.com/wyfcoding/cashflow/pkg/apperr"
	"github.com/wyfcoding/cashflow/pkg/cache"
	"github.com/wyfcoding/cashflow/pkg/metrics"
	"github.com/wyfcoding/cashflow/pkg/money"
)

const (
	// InvoiceSampleSize 每类发票的默认采样数量
	InvoiceSampleSize = 100
	// TrendLookbackDays 趋势比较所需的最小历史间隔
	TrendLookbackDays = 30

	metricCacheTTL = 5 * time.Minute
)

// Config 指标服务配置
type Config struct {
	// 每类发票的采样数量
	InvoiceSampleSize int
	// 最近指标的缓存 TTL
	MetricCacheTTL time.Duration
}

// DefaultConfig 默认指标服务配置
func DefaultConfig() Config {
	return Config{
		InvoiceSampleSize: InvoiceSampleSize,
		MetricCacheTTL:    metricCacheTTL,
	}
}

// MetricsResult 对外的指标计算结果。指标缺席时对应指针为 nil，
// 样本数始终随指标一并报告。
type MetricsResult struct {
	MetricDate    time.Time        `json:"metricDate"`
	DSO           *decimal.Decimal `json:"dso"`
	DPO           *decimal.Decimal `json:"dpo"`
	CCC           *decimal.Decimal `json:"ccc"`
	DSOSampleSize int              `json:"dsoSampleSize"`
	DPOSampleSize int              `json:"dpoSampleSize"`
	DSOTrend      domain.Trend     `json:"dsoTrend"`
	DPOTrend      domain.Trend     `json:"dpoTrend"`
	CCCTrend      domain.Trend     `json:"cccTrend"`
	ARBalance     money.Amount     `json:"arBalance"`
	APBalance     money.Amount     `json:"apBalance"`
	CashBalance   money.Amount     `json:"cashBalance"`
}

// CalculatorService 营运资金指标服务
type CalculatorService struct {
	invoiceRepo domain.InvoiceRepository
	metricRepo  domain.MetricRepository
	balances    domain.BalanceReader
	cache       *cache.RedisCache
	metrics     *metrics.Metrics
	config      Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewCalculatorService 创建指标服务
func NewCalculatorService(
	invoiceRepo domain.InvoiceRepository,
	metricRepo domain.MetricRepository,
	balances domain.BalanceReader,
	redisCache *cache.RedisCache,
	m *metrics.Metrics,
	cfg Config,
	logger *slog.Logger,
) *CalculatorService {
	if cfg.InvoiceSampleSize <= 0 {
		cfg.InvoiceSampleSize = InvoiceSampleSize
	}
	if cfg.MetricCacheTTL <= 0 {
		cfg.MetricCacheTTL = metricCacheTTL
	}
	return &CalculatorService{
		invoiceRepo: invoiceRepo,
		metricRepo:  metricRepo,
		balances:    balances,
		cache:       redisCache,
		metrics:     m,
		config:      cfg,
		logger:      logger.With("module", "workingcapital"),
		now:         time.Now,
	}
}

func metricCacheKey(companyID string) string {
	return fmt.Sprintf("wc:metrics:%s", companyID)
}

// Calculate 计算并持久化当日指标
func (s *CalculatorService) Calculate(ctx context.Context, companyID string) (*MetricsResult, error) {
	now := s.now().UTC()
	metricDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	receivables, err := s.invoiceRepo.ListRecentPaid(ctx, companyID, domain.InvoiceReceivable, s.config.InvoiceSampleSize)
	if err != nil {
		return nil, apperr.Integrity("failed to load paid receivables").WithCause(err)
	}
	payables, err := s.invoiceRepo.ListRecentPaid(ctx, companyID, domain.InvoicePayable, s.config.InvoiceSampleSize)
	if err != nil {
		return nil, apperr.Integrity("failed to load paid payables").WithCause(err)
	}

	result := &MetricsResult{
		MetricDate:    metricDate,
		DSOSampleSize: len(receivables),
		DPOSampleSize: len(payables),
		DSOTrend:      domain.TrendStable,
		DPOTrend:      domain.TrendStable,
		CCCTrend:      domain.TrendStable,
	}

	if dso, ok := domain.WeightedAverageDays(receivables); ok {
		result.DSO = &dso
	}
	if dpo, ok := domain.WeightedAverageDays(payables); ok {
		result.DPO = &dpo
	}
	if result.DSO != nil && result.DPO != nil {
		ccc := domain.CashConversionCycle(*result.DSO, *result.DPO)
		result.CCC = &ccc
	}

	if result.ARBalance, err = s.invoiceRepo.SumOutstanding(ctx, companyID, domain.InvoiceReceivable); err != nil {
		return nil, apperr.Integrity("failed to sum outstanding receivables").WithCause(err)
	}
	if result.APBalance, err = s.invoiceRepo.SumOutstanding(ctx, companyID, domain.InvoicePayable); err != nil {
		return nil, apperr.Integrity("failed to sum outstanding payables").WithCause(err)
	}
	if result.CashBalance, err = s.balances.SumActiveBalances(ctx, companyID); err != nil {
		return nil, apperr.Integrity("failed to sum cash balances").WithCause(err)
	}

	// 趋势：与至少 30 天前的最近一次持久化指标比较
	previous, err := s.metricRepo.LatestOnOrBefore(ctx, companyID, metricDate.AddDate(0, 0, -TrendLookbackDays))
	if err != nil {
		return nil, apperr.Integrity("failed to load previous metric").WithCause(err)
	}
	if previous != nil {
		if result.DSO != nil {
			result.DSOTrend = domain.ClassifyTrend(*result.DSO, previous.DSO)
		}
		if result.DPO != nil {
			result.DPOTrend = domain.ClassifyTrend(*result.DPO, previous.DPO)
		}
		if result.CCC != nil {
			result.CCCTrend = domain.ClassifyTrend(*result.CCC, previous.CCC)
		}
	}

	row := &domain.WorkingCapitalMetric{
		ID:            uuid.New().String(),
		CompanyID:     companyID,
		MetricDate:    metricDate,
		DSO:           result.DSO,
		DPO:           result.DPO,
		CCC:           result.CCC,
		DSOSampleSize: result.DSOSampleSize,
		DPOSampleSize: result.DPOSampleSize,
		ARBalance:     result.ARBalance,
		APBalance:     result.APBalance,
		CashBalance:   result.CashBalance,
	}
	if err := s.metricRepo.Upsert(ctx, row); err != nil {
		return nil, apperr.Integrity("failed to persist working capital metric").WithCause(err)
	}

	if s.metrics != nil {
		s.metrics.WorkingCapitalCalcsTotal.Inc()
	}
	if s.cache != nil {
		// 缓存失败不影响计算结果
		if err := s.cache.SetJSON(ctx, metricCacheKey(companyID), result, s.config.MetricCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "metric cache write failed", "company_id", companyID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "working capital metrics calculated",
		"company_id", companyID,
		"dso_sample", result.DSOSampleSize,
		"dpo_sample", result.DPOSampleSize,
	)

	return result, nil
}

// Latest 返回最近一次计算的指标；从未计算过时返回全空指标
func (s *CalculatorService) Latest(ctx context.Context, companyID string) (*MetricsResult, error) {
	if s.cache != nil {
		var cached MetricsResult
		if hit, err := s.cache.GetJSON(ctx, metricCacheKey(companyID), &cached); err == nil && hit {
			return &cached, nil
		}
	}

	row, err := s.metricRepo.Latest(ctx, companyID)
	if err != nil {
		return nil, apperr.Integrity("failed to load latest metric").WithCause(err)
	}
	if row == nil {
		return &MetricsResult{
			DSOTrend: domain.TrendStable,
			DPOTrend: domain.TrendStable,
			CCCTrend: domain.TrendStable,
		}, nil
	}

	return &MetricsResult{
		MetricDate:    row.MetricDate,
		DSO:           row.DSO,
		DPO:           row.DPO,
		CCC:           row.CCC,
		DSOSampleSize: row.DSOSampleSize,
		DPOSampleSize: row.DPOSampleSize,
		DSOTrend:      domain.TrendStable,
		DPOTrend:      domain.TrendStable,
		CCCTrend:      domain.TrendStable,
		ARBalance:     row.ARBalance,
		APBalance:     row.APBalance,
		CashBalance:   row.CashBalance,
	}, nil
}
